package chain

import (
	"context"
	"errors"
	"testing"

	flowagent "github.com/frostholm/flowagent"
)

func TestEvaluateConditionLocally(t *testing.T) {
	chainCtx := flowagent.ChainContext{
		"weather_data": map[string]interface{}{
			"temperature": 25.0,
			"conditions":  "clear",
		},
		"count": 3.0,
	}

	tests := []struct {
		condition string
		want      bool
	}{
		{"", true},
		{"   ", true},
		{"{{weather_data.temperature}} > 20", true},
		{"{{weather_data.temperature}} < 20", false},
		{"{{weather_data.conditions}} == \"clear\"", true},
		{"{{weather_data.conditions}} == \"rain\"", false},
		{"weather_data.temperature >= 25 && count < 5", true},
		{"count > 10", false},
	}

	collab := &cannedCollaborator{response: "false"}
	o := newTestOrchestrator(&fakeExecutor{}, collab, nil)

	for _, tt := range tests {
		got := o.evaluateCondition(context.Background(), tt.condition, chainCtx)
		if got != tt.want {
			t.Errorf("evaluateCondition(%q) = %v, want %v", tt.condition, got, tt.want)
		}
	}
	if collab.calls != 0 {
		t.Errorf("local conditions reached the collaborator %d times", collab.calls)
	}
}

func TestEvaluateConditionFallsBackToCollaborator(t *testing.T) {
	chainCtx := flowagent.ChainContext{"weather_data": map[string]interface{}{"conditions": "clear"}}

	collab := &cannedCollaborator{response: " True \n"}
	o := newTestOrchestrator(&fakeExecutor{}, collab, nil)

	// Not expressible locally: references a path that does not resolve.
	if !o.evaluateCondition(context.Background(), "the weather described in {{missing.summary}} is pleasant", chainCtx) {
		t.Error("expected collaborator verdict true")
	}
	if collab.calls != 1 {
		t.Errorf("collaborator calls = %d, want 1", collab.calls)
	}
}

func TestEvaluateConditionCollaboratorFailureSkips(t *testing.T) {
	collab := &cannedCollaborator{err: errors.New("model offline")}
	o := newTestOrchestrator(&fakeExecutor{}, collab, nil)

	if o.evaluateCondition(context.Background(), "is it a good day for {{missing.thing}}", flowagent.ChainContext{}) {
		t.Error("expected false when the collaborator cannot judge the condition")
	}
}

func TestLiteralRendering(t *testing.T) {
	if got := literal("clear"); got != `"clear"` {
		t.Errorf("literal string = %s", got)
	}
	if got := literal(nil); got != "false" {
		t.Errorf("literal nil = %s", got)
	}
	if got := literal(12.5); got != "12.5" {
		t.Errorf("literal float = %s", got)
	}
	if got := literal(true); got != "true" {
		t.Errorf("literal bool = %s", got)
	}
}
