package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	flowagent "github.com/frostholm/flowagent"
	"github.com/frostholm/flowagent/internal/registry"
)

// fakeExecutor records every invocation and delegates to a scripted handler.
type fakeExecutor struct {
	calls   []string
	handler func(capability, operation string, args []interface{}) (interface{}, error)
}

func (e *fakeExecutor) Execute(ctx context.Context, capability, operation string, args []interface{}) (interface{}, error) {
	e.calls = append(e.calls, capability+"."+operation)
	if e.handler == nil {
		return "ok", nil
	}
	return e.handler(capability, operation, args)
}

// cannedCollaborator returns the same response for every prompt.
type cannedCollaborator struct {
	response string
	err      error
	calls    int
}

func (c *cannedCollaborator) Query(ctx context.Context, prompt string) (string, error) {
	c.calls++
	return c.response, c.err
}

// mapCache is an in-process cache without TTL handling.
type mapCache struct {
	entries map[string]interface{}
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]interface{})}
}

func (c *mapCache) Get(ctx context.Context, key string) (interface{}, error) {
	v, ok := c.entries[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}) error {
	c.entries[key] = value
	return nil
}

// usageMemory records tool usage entries and ignores messages.
type usageMemory struct {
	usages []string
}

func (m *usageMemory) AddMessage(role, content string) {}

func (m *usageMemory) AddToolUsage(capability, operation string, args []interface{}, result string) {
	m.usages = append(m.usages, capability+"."+operation)
}

func (m *usageMemory) History(maxItems int) []flowagent.Message { return nil }
func (m *usageMemory) RelevantContext() string                  { return "" }
func (m *usageMemory) DetectLanguage() string                   { return "en" }

func chainRegistry() *registry.Registry {
	return registry.Build(
		flowagent.Capability{
			Name:        "weather",
			Description: "weather",
			Operations: []flowagent.Operation{
				{
					Name:   "get_weather",
					Params: []flowagent.Param{{Name: "location"}},
					Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
						return nil, nil
					},
				},
			},
		},
		flowagent.Capability{
			Name:        "search",
			Description: "search",
			Operations: []flowagent.Operation{
				{
					Name:   "search_web",
					Params: []flowagent.Param{{Name: "query"}, {Name: "num_results", Optional: true}},
					Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
						return nil, nil
					},
				},
			},
		},
	)
}

func newTestOrchestrator(exec *fakeExecutor, collab flowagent.Collaborator, cache flowagent.Cache) *ChainOrchestrator {
	return New(chainRegistry(), exec, collab, cache, nil,
		WithMaxAttempts(3),
		WithRetryDelay(time.Millisecond),
		WithStepTimeout(time.Second),
	)
}

func TestDefineRejectsEmptyChain(t *testing.T) {
	o := newTestOrchestrator(&fakeExecutor{}, &cannedCollaborator{}, nil)
	if err := o.Define(nil); err == nil {
		t.Fatal("expected validation error for empty chain")
	}
}

func TestDefineRejectsUnknownOperation(t *testing.T) {
	o := newTestOrchestrator(&fakeExecutor{}, &cannedCollaborator{}, nil)
	err := o.Define([]flowagent.ChainStep{
		{Capability: "weather", Operation: "get_forecast", OutputKey: "out"},
	})
	var flowErr *flowagent.FlowError
	if !errors.As(err, &flowErr) || flowErr.Code != flowagent.ErrCodeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestDefineRejectsMissingOutputKey(t *testing.T) {
	o := newTestOrchestrator(&fakeExecutor{}, &cannedCollaborator{}, nil)
	err := o.Define([]flowagent.ChainStep{
		{Capability: "weather", Operation: "get_weather"},
	})
	if err == nil {
		t.Fatal("expected validation error for missing output key")
	}
}

func TestDefineRejectsDuplicateOutputKey(t *testing.T) {
	o := newTestOrchestrator(&fakeExecutor{}, &cannedCollaborator{}, nil)
	err := o.Define([]flowagent.ChainStep{
		{Capability: "weather", Operation: "get_weather", OutputKey: "result"},
		{Capability: "search", Operation: "search_web", OutputKey: "result"},
	})
	if err == nil {
		t.Fatal("expected validation error for duplicate output key")
	}
}

func TestDefineRejectsForwardPlaceholder(t *testing.T) {
	o := newTestOrchestrator(&fakeExecutor{}, &cannedCollaborator{}, nil)
	err := o.Define([]flowagent.ChainStep{
		{
			Capability:  "search",
			Operation:   "search_web",
			InputParams: map[string]interface{}{"query": "{{weather_data.conditions}}"},
			OutputKey:   "articles",
		},
		{Capability: "weather", Operation: "get_weather", OutputKey: "weather_data"},
	})
	if err == nil {
		t.Fatal("expected validation error for placeholder referencing a later step")
	}
}

func TestExecutePipesOutputsBetweenSteps(t *testing.T) {
	exec := &fakeExecutor{
		handler: func(capability, operation string, args []interface{}) (interface{}, error) {
			if capability == "weather" {
				return map[string]interface{}{"conditions": "heavy rain"}, nil
			}
			if len(args) == 0 || args[0] != "heavy rain umbrella" {
				return nil, fmt.Errorf("unexpected search args: %v", args)
			}
			return []interface{}{"result one"}, nil
		},
	}
	o := newTestOrchestrator(exec, &cannedCollaborator{}, nil)

	steps := []flowagent.ChainStep{
		{
			Capability:  "weather",
			Operation:   "get_weather",
			InputParams: map[string]interface{}{"location": "Bergen"},
			OutputKey:   "weather_data",
		},
		{
			Capability:  "search",
			Operation:   "search_web",
			InputParams: map[string]interface{}{"query": "{{weather_data.conditions}} umbrella"},
			OutputKey:   "articles",
		},
	}

	chainCtx, err := o.Execute(context.Background(), steps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(chainCtx) != 2 {
		t.Fatalf("context has %d entries, want 2", len(chainCtx))
	}
	articles, ok := chainCtx["articles"].([]interface{})
	if !ok || len(articles) != 1 {
		t.Errorf("articles = %v, want one search result", chainCtx["articles"])
	}
	if len(exec.calls) != 2 {
		t.Errorf("executor calls = %v, want two", exec.calls)
	}
}

func TestExecuteSkipsStepOnFalseCondition(t *testing.T) {
	exec := &fakeExecutor{
		handler: func(capability, operation string, args []interface{}) (interface{}, error) {
			return map[string]interface{}{"temperature": 5.0}, nil
		},
	}
	collab := &cannedCollaborator{response: "True"}
	o := newTestOrchestrator(exec, collab, nil)

	steps := []flowagent.ChainStep{
		{
			Capability:  "weather",
			Operation:   "get_weather",
			InputParams: map[string]interface{}{"location": "Oslo"},
			OutputKey:   "weather_data",
		},
		{
			Capability:  "search",
			Operation:   "search_web",
			InputParams: map[string]interface{}{"query": "beach tips"},
			OutputKey:   "beach_articles",
			Condition:   "{{weather_data.temperature}} > 20",
		},
	}

	chainCtx, err := o.Execute(context.Background(), steps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, present := chainCtx["beach_articles"]; present {
		t.Error("skipped step wrote to the chain context")
	}
	if len(exec.calls) != 1 {
		t.Errorf("executor calls = %v, want only the weather step", exec.calls)
	}
	if collab.calls != 0 {
		t.Errorf("condition was sent to the collaborator despite local evaluation, calls = %d", collab.calls)
	}
}

func TestExecuteRecordsFailureAndContinues(t *testing.T) {
	exec := &fakeExecutor{
		handler: func(capability, operation string, args []interface{}) (interface{}, error) {
			if capability == "weather" {
				return nil, errors.New("upstream unavailable")
			}
			return "searched", nil
		},
	}
	collab := &cannedCollaborator{response: "Try the search capability instead."}
	o := newTestOrchestrator(exec, collab, nil)

	steps := []flowagent.ChainStep{
		{
			Capability:  "weather",
			Operation:   "get_weather",
			InputParams: map[string]interface{}{"location": "Oslo"},
			OutputKey:   "weather_data",
		},
		{
			Capability:  "search",
			Operation:   "search_web",
			InputParams: map[string]interface{}{"query": "Oslo weather"},
			OutputKey:   "articles",
		},
	}

	chainCtx, err := o.Execute(context.Background(), steps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	failure, ok := chainCtx["weather_data"].(flowagent.StepFailure)
	if !ok {
		t.Fatalf("weather_data = %T, want StepFailure", chainCtx["weather_data"])
	}
	if failure.Error == "" {
		t.Error("failure record has no error message")
	}
	if failure.Alternative != "Try the search capability instead." {
		t.Errorf("alternative = %q", failure.Alternative)
	}
	if chainCtx["articles"] != "searched" {
		t.Errorf("articles = %v, chain did not continue past the failure", chainCtx["articles"])
	}

	// Three weather attempts, then one search call.
	weatherCalls := 0
	for _, call := range exec.calls {
		if call == "weather.get_weather" {
			weatherCalls++
		}
	}
	if weatherCalls != 3 {
		t.Errorf("weather attempts = %d, want 3", weatherCalls)
	}
}

func TestExecuteReusesCachedResults(t *testing.T) {
	exec := &fakeExecutor{
		handler: func(capability, operation string, args []interface{}) (interface{}, error) {
			return map[string]interface{}{"conditions": "clear"}, nil
		},
	}
	o := newTestOrchestrator(exec, &cannedCollaborator{}, newMapCache())

	steps := []flowagent.ChainStep{
		{
			Capability:  "weather",
			Operation:   "get_weather",
			InputParams: map[string]interface{}{"location": "Lisbon"},
			OutputKey:   "weather_data",
		},
	}

	if _, err := o.Execute(context.Background(), steps); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	chainCtx, err := o.Execute(context.Background(), steps)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	if len(exec.calls) != 1 {
		t.Errorf("executor calls = %d, want 1 with the second run served from cache", len(exec.calls))
	}
	result, ok := chainCtx["weather_data"].(map[string]interface{})
	if !ok || result["conditions"] != "clear" {
		t.Errorf("cached result = %v", chainCtx["weather_data"])
	}
}

func TestExecuteRecordsCachedStepsToMemory(t *testing.T) {
	handlerCalls := 0
	reg := registry.Build(flowagent.Capability{
		Name:        "weather",
		Description: "weather",
		Operations: []flowagent.Operation{
			{
				Name:   "get_weather",
				Params: []flowagent.Param{{Name: "location"}},
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					handlerCalls++
					return map[string]interface{}{"conditions": "clear"}, nil
				},
			},
		},
	})
	mem := &usageMemory{}
	o := New(reg, registry.NewExecutor(reg, mem), &cannedCollaborator{}, newMapCache(), mem,
		WithRetryDelay(time.Millisecond),
		WithStepTimeout(time.Second),
	)

	steps := []flowagent.ChainStep{
		{
			Capability:  "weather",
			Operation:   "get_weather",
			InputParams: map[string]interface{}{"location": "Lisbon"},
			OutputKey:   "weather_data",
		},
	}

	if _, err := o.Execute(context.Background(), steps); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := o.Execute(context.Background(), steps); err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	if handlerCalls != 1 {
		t.Fatalf("handler calls = %d, want 1 with the second run served from cache", handlerCalls)
	}
	// One record from the executor on the fresh call, one from the
	// orchestrator on the cache hit.
	if len(mem.usages) != 2 {
		t.Fatalf("usage records = %v, want 2", mem.usages)
	}
	for _, usage := range mem.usages {
		if usage != "weather.get_weather" {
			t.Errorf("usage record = %q", usage)
		}
	}
}

func TestExecuteUnresolvablePlaceholderBecomesStepFailure(t *testing.T) {
	exec := &fakeExecutor{}
	o := newTestOrchestrator(exec, &cannedCollaborator{}, nil)

	steps := []flowagent.ChainStep{
		{
			Capability:  "search",
			Operation:   "search_web",
			InputParams: map[string]interface{}{"query": "{{missing.value}}"},
			OutputKey:   "articles",
		},
	}

	chainCtx, err := o.Execute(context.Background(), steps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := chainCtx["articles"].(flowagent.StepFailure); !ok {
		t.Fatalf("articles = %T, want StepFailure", chainCtx["articles"])
	}
	if len(exec.calls) != 0 {
		t.Errorf("executor was invoked with unresolved arguments: %v", exec.calls)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(&fakeExecutor{}, &cannedCollaborator{}, nil)
	_, err := o.Execute(ctx, []flowagent.ChainStep{
		{Capability: "weather", Operation: "get_weather", OutputKey: "weather_data"},
	})

	var flowErr *flowagent.FlowError
	if !errors.As(err, &flowErr) || flowErr.Code != flowagent.ErrCodeCancelled {
		t.Fatalf("err = %v, want cancellation error", err)
	}
}

func TestGenerateParsesPlannedChain(t *testing.T) {
	collab := &cannedCollaborator{response: "```json\n[\n" +
		`  {"tool_name": "weather", "function_name": "get_weather", "input_params": {"location": "Oslo"}, "output_key": "weather_data"},` + "\n" +
		`  {"tool_name": "search", "function_name": "search_web", "input_params": {"query": "{{weather_data.conditions}}"}, "output_key": "articles"}` + "\n]\n```"}
	o := newTestOrchestrator(&fakeExecutor{}, collab, nil)

	steps, err := o.Generate(context.Background(), "weather in Oslo and related news")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(steps))
	}
	if steps[0].Capability != "weather" || steps[1].OutputKey != "articles" {
		t.Errorf("unexpected steps: %+v", steps)
	}
}

func TestGenerateDegradesOnMalformedPlan(t *testing.T) {
	for name, response := range map[string]string{
		"prose":           "I cannot plan this request.",
		"invalid json":    "[{broken}]",
		"unknown op":      `[{"tool_name": "weather", "function_name": "nope", "output_key": "out"}]`,
		"missing outputs": `[{"tool_name": "weather", "function_name": "get_weather"}]`,
	} {
		o := newTestOrchestrator(&fakeExecutor{}, &cannedCollaborator{response: response}, nil)
		steps, err := o.Generate(context.Background(), "anything")
		if err != nil {
			t.Errorf("%s: Generate returned error %v, want nil", name, err)
		}
		if steps != nil {
			t.Errorf("%s: steps = %v, want nil for fallback routing", name, steps)
		}
	}
}

func TestDefineJSONAcceptsEitherKeyNaming(t *testing.T) {
	o := newTestOrchestrator(&fakeExecutor{}, &cannedCollaborator{}, nil)

	for name, plan := range map[string]string{
		"planner keys": `[{"tool_name": "weather", "function_name": "get_weather", "input_params": {"location": "Oslo"}, "output_key": "weather_data"}]`,
		"file keys":    `[{"capability": "weather", "operation": "get_weather", "input_params": {"location": "Oslo"}, "output_key": "weather_data"}]`,
		"fenced":       "```json\n" + `[{"capability": "weather", "operation": "get_weather", "output_key": "weather_data"}]` + "\n```",
	} {
		steps, err := o.DefineJSON(plan)
		if err != nil {
			t.Fatalf("%s: DefineJSON: %v", name, err)
		}
		if len(steps) != 1 {
			t.Fatalf("%s: steps = %d, want 1", name, len(steps))
		}
		if steps[0].Capability != "weather" || steps[0].Operation != "get_weather" {
			t.Errorf("%s: step = %+v", name, steps[0])
		}
	}
}

func TestDefineJSONRejectsUnusablePlans(t *testing.T) {
	o := newTestOrchestrator(&fakeExecutor{}, &cannedCollaborator{}, nil)

	for name, plan := range map[string]string{
		"prose":        "no plan here",
		"invalid json": "[{broken}]",
		"unknown op":   `[{"capability": "weather", "operation": "nope", "output_key": "out"}]`,
	} {
		if _, err := o.DefineJSON(plan); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRenderWrapsCollaboratorFailure(t *testing.T) {
	collab := &cannedCollaborator{err: errors.New("model offline")}
	o := newTestOrchestrator(&fakeExecutor{}, collab, nil)

	_, err := o.Render(context.Background(), "query", flowagent.ChainContext{"weather_data": "sunny"})
	var flowErr *flowagent.FlowError
	if !errors.As(err, &flowErr) || flowErr.Code != flowagent.ErrCodeRendering {
		t.Fatalf("err = %v, want rendering error", err)
	}
}

func TestRenderTrimsResponse(t *testing.T) {
	collab := &cannedCollaborator{response: "  It is sunny in Lisbon.\n"}
	o := newTestOrchestrator(&fakeExecutor{}, collab, nil)

	answer, err := o.Render(context.Background(), "weather in Lisbon", flowagent.ChainContext{"weather_data": "sunny"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if answer != "It is sunny in Lisbon." {
		t.Errorf("answer = %q", answer)
	}
}
