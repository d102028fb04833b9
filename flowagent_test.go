package flowagent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubRouter struct {
	classification Classification
	calls          int
}

func (r *stubRouter) Classify(ctx context.Context, query string) Classification {
	r.calls++
	return r.classification
}

type stubExecutor struct {
	result interface{}
	err    error
	calls  int
}

func (e *stubExecutor) Execute(ctx context.Context, capability, operation string, args []interface{}) (interface{}, error) {
	e.calls++
	return e.result, e.err
}

type stubOrchestrator struct {
	steps     []ChainStep
	chainCtx  ChainContext
	rendered  string
	renderErr error
}

func (o *stubOrchestrator) Generate(ctx context.Context, query string) ([]ChainStep, error) {
	return o.steps, nil
}

func (o *stubOrchestrator) Execute(ctx context.Context, steps []ChainStep) (ChainContext, error) {
	return o.chainCtx, nil
}

func (o *stubOrchestrator) Render(ctx context.Context, query string, chainCtx ChainContext) (string, error) {
	return o.rendered, o.renderErr
}

type stubRegistry struct{}

func (r *stubRegistry) Resolve(capability, operation string) (Operation, error) {
	return Operation{}, NewOperationNotFoundError("registry", capability, operation)
}

func (r *stubRegistry) Get(name string) (Capability, bool) { return Capability{}, false }

func (r *stubRegistry) List() []Capability { return nil }

type recordedMessage struct {
	role    string
	content string
}

type stubMemory struct {
	messages []recordedMessage
}

func (m *stubMemory) AddMessage(role, content string) {
	m.messages = append(m.messages, recordedMessage{role, content})
}

func (m *stubMemory) AddToolUsage(capability, operation string, args []interface{}, result string) {}

func (m *stubMemory) History(maxItems int) []Message { return nil }

func (m *stubMemory) RelevantContext() string { return "" }

func (m *stubMemory) DetectLanguage() string { return "en" }

type stubCollaborator struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (c *stubCollaborator) Query(ctx context.Context, prompt string) (string, error) {
	c.calls++
	c.prompts = append(c.prompts, prompt)
	return c.response, c.err
}

type agentFixture struct {
	router       *stubRouter
	executor     *stubExecutor
	orchestrator *stubOrchestrator
	memory       *stubMemory
	collaborator *stubCollaborator
}

func newTestAgent(t *testing.T, fixture *agentFixture) *Agent {
	t.Helper()
	agent, err := New(
		WithConfig(Config{EnableEventBus: false}),
		WithRegistry(&stubRegistry{}),
		WithExecutor(fixture.executor),
		WithRouter(fixture.router),
		WithOrchestrator(fixture.orchestrator),
		WithMemory(fixture.memory),
		WithCollaborator(fixture.collaborator),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return agent
}

func defaultFixture() *agentFixture {
	return &agentFixture{
		router:       &stubRouter{},
		executor:     &stubExecutor{},
		orchestrator: &stubOrchestrator{},
		memory:       &stubMemory{},
		collaborator: &stubCollaborator{},
	}
}

func TestNewRequiresEveryComponent(t *testing.T) {
	fixture := defaultFixture()

	_, err := New(
		WithConfig(Config{EnableEventBus: false}),
		WithRegistry(&stubRegistry{}),
		WithExecutor(fixture.executor),
		WithRouter(fixture.router),
		WithOrchestrator(fixture.orchestrator),
		WithMemory(fixture.memory),
	)
	if err == nil || !strings.Contains(err.Error(), "collaborator") {
		t.Fatalf("err = %v, want missing collaborator error", err)
	}

	if _, err := New(WithConfig(Config{EnableEventBus: false})); err == nil {
		t.Fatal("expected error for empty agent")
	}
}

func TestProcessQueryExit(t *testing.T) {
	fixture := defaultFixture()
	fixture.router.classification = Classification{Kind: KindExit}
	agent := newTestAgent(t, fixture)

	reply, err := agent.ProcessQuery(context.Background(), "quit")
	if !errors.Is(err, ErrExit) {
		t.Fatalf("err = %v, want ErrExit", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
	if fixture.executor.calls != 0 || fixture.collaborator.calls != 0 {
		t.Error("exit request reached executor or collaborator")
	}
}

func TestProcessQueryToolRequest(t *testing.T) {
	fixture := defaultFixture()
	fixture.router.classification = Classification{
		Kind:       KindToolRequest,
		Capability: "weather",
		Operation:  "get_weather",
		Args:       []interface{}{"Oslo"},
	}
	fixture.executor.result = map[string]interface{}{"conditions": "cloudy"}
	fixture.orchestrator.rendered = "It is cloudy in Oslo."
	agent := newTestAgent(t, fixture)

	reply, err := agent.ProcessQuery(context.Background(), "weather in Oslo")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if reply != "It is cloudy in Oslo." {
		t.Errorf("reply = %q", reply)
	}
	if fixture.executor.calls != 1 {
		t.Errorf("executor calls = %d, want 1", fixture.executor.calls)
	}

	// Both sides of the exchange are recorded.
	if len(fixture.memory.messages) != 2 {
		t.Fatalf("memory has %d messages, want 2", len(fixture.memory.messages))
	}
	if fixture.memory.messages[0].role != "user" || fixture.memory.messages[1].role != "assistant" {
		t.Errorf("memory roles = %v", fixture.memory.messages)
	}
}

func TestProcessQueryUnroutableToolRequest(t *testing.T) {
	fixture := defaultFixture()
	fixture.router.classification = Classification{Kind: KindToolRequest}
	agent := newTestAgent(t, fixture)

	reply, err := agent.ProcessQuery(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !strings.Contains(reply, "rephrase") {
		t.Errorf("reply = %q, want a rephrase suggestion", reply)
	}
	if fixture.executor.calls != 0 {
		t.Error("executor invoked without capability and operation")
	}
}

func TestProcessQueryUnknownCapabilityDegrades(t *testing.T) {
	fixture := defaultFixture()
	fixture.router.classification = Classification{
		Kind:       KindToolRequest,
		Capability: "teleport",
		Operation:  "engage",
	}
	fixture.executor.err = NewCapabilityNotFoundError("executor", "teleport")
	agent := newTestAgent(t, fixture)

	reply, err := agent.ProcessQuery(context.Background(), "teleport me home")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !strings.Contains(reply, "rephrase") {
		t.Errorf("reply = %q, want a rephrase suggestion", reply)
	}
}

func TestProcessQueryExecutionFailureBecomesReply(t *testing.T) {
	fixture := defaultFixture()
	fixture.router.classification = Classification{
		Kind:       KindToolRequest,
		Capability: "weather",
		Operation:  "get_weather",
	}
	fixture.executor.err = NewExecutionError("executor", "weather", "get_weather", errors.New("upstream offline"))
	agent := newTestAgent(t, fixture)

	reply, err := agent.ProcessQuery(context.Background(), "weather in Oslo")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !strings.Contains(reply, "could not complete") {
		t.Errorf("reply = %q, want failure explanation", reply)
	}
}

func TestProcessQueryRenderFailureFallsBackToRawResult(t *testing.T) {
	fixture := defaultFixture()
	fixture.router.classification = Classification{
		Kind:       KindToolRequest,
		Capability: "weather",
		Operation:  "get_weather",
	}
	fixture.executor.result = map[string]interface{}{"conditions": "cloudy"}
	fixture.orchestrator.renderErr = NewRenderingError(errors.New("model offline"))
	agent := newTestAgent(t, fixture)

	reply, err := agent.ProcessQuery(context.Background(), "weather in Oslo")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !strings.Contains(reply, `"conditions":"cloudy"`) {
		t.Errorf("reply = %q, want serialized result", reply)
	}
}

func TestProcessQueryChain(t *testing.T) {
	fixture := defaultFixture()
	fixture.router.classification = Classification{Kind: KindChain}
	fixture.orchestrator.steps = []ChainStep{
		{Capability: "weather", Operation: "get_weather", OutputKey: "weather_data"},
	}
	fixture.orchestrator.chainCtx = ChainContext{"weather_data": "rainy"}
	fixture.orchestrator.rendered = "Expect rain, pack an umbrella."
	agent := newTestAgent(t, fixture)

	reply, err := agent.ProcessQuery(context.Background(), "weather and packing advice")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if reply != "Expect rain, pack an umbrella." {
		t.Errorf("reply = %q", reply)
	}
}

func TestProcessQueryChainFallsBackToCasual(t *testing.T) {
	fixture := defaultFixture()
	fixture.router.classification = Classification{Kind: KindChain, Language: "en"}
	fixture.orchestrator.steps = nil
	fixture.collaborator.response = "Happy to chat!"
	agent := newTestAgent(t, fixture)

	reply, err := agent.ProcessQuery(context.Background(), "hmm")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if reply != "Happy to chat!" {
		t.Errorf("reply = %q", reply)
	}
	// Classified once up front and once for the fallback.
	if fixture.router.calls != 2 {
		t.Errorf("router calls = %d, want 2", fixture.router.calls)
	}
}

func TestProcessQueryCasualUsesDetectedLanguage(t *testing.T) {
	fixture := defaultFixture()
	fixture.router.classification = Classification{Kind: KindCasual, Language: "ru"}
	fixture.collaborator.response = "Привет!"
	agent := newTestAgent(t, fixture)

	reply, err := agent.ProcessQuery(context.Background(), "привет")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if reply != "Привет!" {
		t.Errorf("reply = %q", reply)
	}
	if len(fixture.collaborator.prompts) != 1 || !strings.Contains(fixture.collaborator.prompts[0], "Detected language: ru") {
		t.Error("casual prompt does not carry the detected language")
	}
}

func TestProcessQueryCasualCollaboratorFailure(t *testing.T) {
	fixture := defaultFixture()
	fixture.router.classification = Classification{Kind: KindCasual}
	fixture.collaborator.err = errors.New("model offline")
	agent := newTestAgent(t, fixture)

	if _, err := agent.ProcessQuery(context.Background(), "hello"); err == nil {
		t.Fatal("expected error when the collaborator is unavailable")
	}
	// The failed reply is never recorded as an assistant message.
	for _, msg := range fixture.memory.messages {
		if msg.role == "assistant" {
			t.Errorf("assistant message recorded after failure: %v", msg)
		}
	}
}
