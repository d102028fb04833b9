package router

import (
	"context"
	"testing"

	flowagent "github.com/frostholm/flowagent"
	"github.com/frostholm/flowagent/internal/registry"
)

// scriptedCollaborator returns canned responses in order and counts calls.
type scriptedCollaborator struct {
	responses []string
	errs      []error
	calls     int
}

func (c *scriptedCollaborator) Query(ctx context.Context, prompt string) (string, error) {
	i := c.calls
	c.calls++
	var response string
	if i < len(c.responses) {
		response = c.responses[i]
	}
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	return response, err
}

type staticMemory struct {
	language string
	history  []flowagent.Message
}

func (m *staticMemory) AddMessage(role, content string) {}

func (m *staticMemory) AddToolUsage(string, string, []interface{}, string) {}

func (m *staticMemory) History(maxItems int) []flowagent.Message { return m.history }

func (m *staticMemory) RelevantContext() string { return "" }

func (m *staticMemory) DetectLanguage() string { return m.language }

func handlerStub(ctx context.Context, args []interface{}) (interface{}, error) {
	return "ok", nil
}

func testRegistry() *registry.Registry {
	return registry.Build(
		flowagent.Capability{
			Name:        "weather",
			Description: "weather",
			Operations: []flowagent.Operation{
				{Name: "get_weather", Params: []flowagent.Param{{Name: "location"}}, Handler: handlerStub},
			},
		},
		flowagent.Capability{
			Name:        "currency",
			Description: "currency",
			Operations: []flowagent.Operation{
				{
					Name: "convert_currency",
					Params: []flowagent.Param{
						{Name: "amount"},
						{Name: "from_currency"},
						{Name: "to_currency"},
					},
					Handler: handlerStub,
				},
			},
		},
		flowagent.Capability{
			Name:        "astronomy",
			Description: "astronomy",
			Operations: []flowagent.Operation{
				{
					Name: "get_celestial_events",
					Params: []flowagent.Param{
						{Name: "date", Optional: true},
						{Name: "location", Optional: true},
					},
					Handler: handlerStub,
				},
			},
		},
	)
}

func TestClassifyExitSkipsCollaborator(t *testing.T) {
	collab := &scriptedCollaborator{}
	r := New(testRegistry(), collab, &staticMemory{})

	for _, keyword := range []string{"exit", "quit", "q", "  QUIT  "} {
		cls := r.Classify(context.Background(), keyword)
		if cls.Kind != flowagent.KindExit {
			t.Errorf("Classify(%q) kind = %s, want exit", keyword, cls.Kind)
		}
	}
	if collab.calls != 0 {
		t.Errorf("expected zero collaborator calls for exit keywords, got %d", collab.calls)
	}
}

func TestClassifyToolRequest(t *testing.T) {
	collab := &scriptedCollaborator{
		responses: []string{
			`{"location": "London"}`,
			`{"type": "tool_request", "tool": "weather information", "function": "get_weather", "args": ["London"], "language": "en"}`,
		},
	}
	r := New(testRegistry(), collab, &staticMemory{language: "en"})

	cls := r.Classify(context.Background(), "what's the weather in London")
	if cls.Kind != flowagent.KindToolRequest {
		t.Fatalf("kind = %s, want tool_request", cls.Kind)
	}
	if cls.Capability != "weather" {
		t.Errorf("capability = %q, want weather (normalized from alias)", cls.Capability)
	}
	if cls.Operation != "get_weather" {
		t.Errorf("operation = %q, want get_weather", cls.Operation)
	}
}

func TestClassifyDegradesOnMalformedResponse(t *testing.T) {
	collab := &scriptedCollaborator{
		responses: []string{
			`{"location": "London"}`,
			`the model rambled and returned no JSON at all`,
		},
	}
	r := New(testRegistry(), collab, &staticMemory{language: "en"})

	cls := r.Classify(context.Background(), "what's the weather in London")
	if cls.Kind != flowagent.KindCasual {
		t.Errorf("kind = %s, want casual degradation", cls.Kind)
	}
	if cls.Explanation == "" {
		t.Error("expected explanation on degraded classification")
	}
}

func TestClassifyStripsCodeFence(t *testing.T) {
	collab := &scriptedCollaborator{
		responses: []string{
			"```json\n{\"location\": \"Paris\"}\n```",
			"```json\n{\"type\": \"tool_request\", \"tool\": \"weather\", \"function\": \"get_weather\", \"args\": [\"Paris\"]}\n```",
		},
	}
	r := New(testRegistry(), collab, &staticMemory{language: "en"})

	cls := r.Classify(context.Background(), "weather in Paris")
	if cls.Kind != flowagent.KindToolRequest || cls.Capability != "weather" {
		t.Errorf("unexpected classification: %+v", cls)
	}
}

func TestClassifyUnknownKindBecomesCasual(t *testing.T) {
	collab := &scriptedCollaborator{
		responses: []string{
			`{}`,
			`{"type": "something_else"}`,
		},
	}
	r := New(testRegistry(), collab, &staticMemory{language: "en"})

	cls := r.Classify(context.Background(), "hmm")
	if cls.Kind != flowagent.KindCasual {
		t.Errorf("kind = %s, want casual for unknown type", cls.Kind)
	}
}

func TestCurrencyClassificationEndToEnd(t *testing.T) {
	collab := &scriptedCollaborator{
		responses: []string{
			`{"amount": 100, "from_currency": "USD", "to_currency": "EUR"}`,
			`{"type": "tool_request", "tool": "currency", "function": "convert_currency", "args": ["USD", "EUR"]}`,
		},
	}
	r := New(testRegistry(), collab, &staticMemory{language: "en"})

	cls := r.Classify(context.Background(), "convert 100 USD to EUR")
	if cls.Capability != "currency" || cls.Operation != "convert_currency" {
		t.Fatalf("unexpected routing: %+v", cls)
	}
	if len(cls.Args) != 3 {
		t.Fatalf("args = %v, want 3 elements", cls.Args)
	}
	if cls.Args[0] != 100.0 || cls.Args[1] != "USD" || cls.Args[2] != "EUR" {
		t.Errorf("args = %v, want [100 USD EUR]", cls.Args)
	}
}

func TestNormalizeCapabilityName(t *testing.T) {
	r := New(testRegistry(), &scriptedCollaborator{}, &staticMemory{})

	tests := []struct {
		in   string
		want string
	}{
		{"weather", "weather"},
		{"Weather Information", "weather"},
		{"the weather tool", "weather"},
		{"currency converter", "currency"},
		{"air quality information", "air_quality"},
		{"completely unknown", "completely unknown"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := r.NormalizeCapabilityName(tt.in); got != tt.want {
			t.Errorf("NormalizeCapabilityName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractEntitiesFailuresYieldEmpty(t *testing.T) {
	r := New(testRegistry(), &scriptedCollaborator{responses: []string{"no json here"}}, &staticMemory{})

	entities := r.ExtractEntities(context.Background(), "hello", "en")
	if len(entities) != 0 {
		t.Errorf("expected empty entities on parse failure, got %v", entities)
	}
}
