// Package flowagent routes natural-language requests onto registered
// capabilities and orchestrates multi-step capability chains. The root
// package defines the shared types and component interfaces; the concrete
// implementations live under internal/ and are wired together here.
package flowagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/frostholm/flowagent/internal/eventbus"
)

// ErrExit is returned by ProcessQuery when the user asked to end the
// session. Callers check it with errors.Is and stop the read loop.
var ErrExit = errors.New("session exit requested")

// Agent is the main entry point. It classifies each query, dispatches to a
// single capability or a chain, and renders the reply through the
// collaborator.
type Agent struct {
	registry     CapabilityRegistry
	executor     Executor
	router       Router
	orchestrator Orchestrator
	memory       Memory
	collaborator Collaborator
	eventBus     eventbus.EventBus

	config Config
}

// Config holds the runtime options of the Agent.
type Config struct {
	// Event bus configuration
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EnableEventBus:      true,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 5,
	}
}

// Option is a function that configures an Agent instance.
type Option func(*Agent)

// WithConfig sets the agent configuration.
func WithConfig(config Config) Option {
	return func(a *Agent) {
		a.config = config
	}
}

// WithRegistry sets the capability registry.
func WithRegistry(registry CapabilityRegistry) Option {
	return func(a *Agent) {
		a.registry = registry
	}
}

// WithExecutor sets the operation executor.
func WithExecutor(executor Executor) Option {
	return func(a *Agent) {
		a.executor = executor
	}
}

// WithRouter sets the query router.
func WithRouter(router Router) Option {
	return func(a *Agent) {
		a.router = router
	}
}

// WithOrchestrator sets the chain orchestrator.
func WithOrchestrator(orchestrator Orchestrator) Option {
	return func(a *Agent) {
		a.orchestrator = orchestrator
	}
}

// WithMemory sets the conversation memory.
func WithMemory(memory Memory) Option {
	return func(a *Agent) {
		a.memory = memory
	}
}

// WithCollaborator sets the language model client.
func WithCollaborator(collaborator Collaborator) Option {
	return func(a *Agent) {
		a.collaborator = collaborator
	}
}

// WithEventBus sets a custom event bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(a *Agent) {
		a.eventBus = bus
	}
}

// New creates an Agent and validates that every required component is set.
func New(options ...Option) (*Agent, error) {
	a := &Agent{
		config: DefaultConfig(),
	}

	for _, option := range options {
		option(a)
	}

	if a.registry == nil {
		return nil, fmt.Errorf("capability registry is required")
	}
	if a.executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if a.router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if a.orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if a.memory == nil {
		return nil, fmt.Errorf("memory is required")
	}
	if a.collaborator == nil {
		return nil, fmt.Errorf("collaborator is required")
	}

	if a.config.EnableEventBus && a.eventBus == nil {
		a.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(a.config.EventBusBufferSize),
			eventbus.WithWorkerCount(a.config.EventBusWorkerCount),
		)
		log.Printf("Initialized default channel-based event bus")
	}

	return a, nil
}

// EventBus exposes the agent's event bus for subscriptions.
func (a *Agent) EventBus() eventbus.EventBus {
	return a.eventBus
}

// Close shuts down the event bus.
func (a *Agent) Close() error {
	if a.eventBus != nil {
		return a.eventBus.Close()
	}
	return nil
}

// ProcessQuery handles one user query end to end and returns the reply.
// Returns ErrExit when the query is a session exit request.
func (a *Agent) ProcessQuery(ctx context.Context, query string) (string, error) {
	a.publish(ctx, eventbus.EventQueryReceived, map[string]interface{}{"query": query})
	a.memory.AddMessage("user", query)

	cls := a.router.Classify(ctx, query)
	a.publish(ctx, eventbus.EventQueryClassified, map[string]interface{}{
		"kind":       string(cls.Kind),
		"capability": cls.Capability,
		"operation":  cls.Operation,
	})

	var reply string
	var err error
	switch cls.Kind {
	case KindExit:
		return "", ErrExit
	case KindChain:
		reply, err = a.handleChain(ctx, query)
	case KindToolRequest:
		reply, err = a.handleToolRequest(ctx, query, cls)
	default:
		reply, err = a.handleCasual(ctx, query, cls.Language)
	}
	if err != nil {
		a.publish(ctx, eventbus.EventQueryFailed, map[string]interface{}{"query": query, "error": err.Error()})
		return "", err
	}

	a.memory.AddMessage("assistant", reply)
	a.publish(ctx, eventbus.EventQueryAnswered, map[string]interface{}{"query": query})
	return reply, nil
}

// handleChain plans and runs a multi-step chain. When planning yields no
// usable chain, the query is re-routed as a single capability request.
func (a *Agent) handleChain(ctx context.Context, query string) (string, error) {
	steps, err := a.orchestrator.Generate(ctx, query)
	if err != nil {
		return "", err
	}
	if len(steps) == 0 {
		log.Printf("Chain planning produced no steps, falling back to single capability routing")
		cls := a.router.Classify(ctx, query)
		if cls.Kind == KindToolRequest {
			return a.handleToolRequest(ctx, query, cls)
		}
		return a.handleCasual(ctx, query, cls.Language)
	}

	chainCtx, err := a.orchestrator.Execute(ctx, steps)
	if err != nil {
		return "", err
	}
	return a.orchestrator.Render(ctx, query, chainCtx)
}

// handleToolRequest executes one classified capability call and renders the
// result. An unroutable classification degrades to an apologetic reply
// instead of an error.
func (a *Agent) handleToolRequest(ctx context.Context, query string, cls Classification) (string, error) {
	if cls.Capability == "" || cls.Operation == "" {
		return "I'm not sure which tool can answer that. Could you rephrase your request?", nil
	}

	a.publish(ctx, eventbus.EventCapabilityInvoked, map[string]interface{}{
		"capability": cls.Capability,
		"operation":  cls.Operation,
	})

	result, err := a.executor.Execute(ctx, cls.Capability, cls.Operation, cls.Args)
	if err != nil {
		a.publish(ctx, eventbus.EventCapabilityFailure, map[string]interface{}{
			"capability": cls.Capability,
			"operation":  cls.Operation,
			"error":      err.Error(),
		})
		var flowErr *FlowError
		if errors.As(err, &flowErr) && flowErr.Code == ErrCodeCapabilityNotFound {
			return "I'm not sure which tool can answer that. Could you rephrase your request?", nil
		}
		return fmt.Sprintf("I could not complete that request: %v", err), nil
	}

	a.publish(ctx, eventbus.EventCapabilitySuccess, map[string]interface{}{
		"capability": cls.Capability,
		"operation":  cls.Operation,
	})

	return a.renderResult(ctx, query, cls, result)
}

// renderResult turns a raw capability result into a natural-language reply.
// A collaborator failure falls back to the serialized result so the user
// still sees the data.
func (a *Agent) renderResult(ctx context.Context, query string, cls Classification, result interface{}) (string, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		resultJSON = []byte(fmt.Sprintf("%v", result))
	}

	chainCtx := ChainContext{cls.Capability + "_result": result}
	reply, renderErr := a.orchestrator.Render(ctx, query, chainCtx)
	if renderErr != nil {
		log.Printf("Result rendering failed, returning raw result (error: %v)", renderErr)
		return string(resultJSON), nil
	}
	return reply, nil
}

// handleCasual answers conversational queries directly via the collaborator.
func (a *Agent) handleCasual(ctx context.Context, query, language string) (string, error) {
	if language == "" {
		language = "en"
	}
	prompt := casualPrompt(query, language, a.memory.History(5), a.memory.RelevantContext())
	reply, err := a.collaborator.Query(ctx, prompt)
	if err != nil {
		return "", NewError(ErrCodeClassification, "conversation", "collaborator query failed", err)
	}
	return reply, nil
}

// casualPrompt builds the conversational reply prompt. It lives in the root
// package because the Agent drives it directly, while the routing and chain
// prompts live next to their components.
func casualPrompt(query, language string, history []Message, relevantContext string) string {
	historyLines := make([]string, len(history))
	for i, msg := range history {
		historyLines[i] = msg.Role + ": " + msg.Content
	}
	contextBlock := ""
	if relevantContext != "" {
		contextBlock = relevantContext + "\n\n"
	}
	return fmt.Sprintf(`You are a helpful and friendly conversational assistant. Respond to the user's message naturally and engagingly.

Recent conversation:
%s

%sUser's message: "%s"

Guidelines:
- Be natural, friendly, and conversational
- If the user is greeting you, greet them back
- If the user is speaking in a language other than English, respond in the same language
- Keep your response concise, not more than 2-3 paragraphs
- Don't offer to use tools unless the user specifically asks about your capabilities

Detected language: %s
Respond directly to the user in their language.`, strings.Join(historyLines, "\n"), contextBlock, query, language)
}

func (a *Agent) publish(ctx context.Context, eventType eventbus.EventType, payload map[string]interface{}) {
	if a.eventBus == nil {
		return
	}
	if err := a.eventBus.Publish(ctx, eventbus.NewEvent(eventType, payload, "agent", nil)); err != nil {
		log.Printf("Failed to publish event (type: %s, error: %v)", eventType, err)
	}
}

// queryTimeout bounds one end-to-end ProcessQuery call when the caller has
// no deadline of its own.
const queryTimeout = 2 * time.Minute

// ProcessQueryWithTimeout wraps ProcessQuery with the default deadline.
func (a *Agent) ProcessQueryWithTimeout(ctx context.Context, query string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return a.ProcessQuery(ctx, query)
}
