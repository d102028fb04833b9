package flowagent

import "context"

// Collaborator is the external language-model query interface used for
// classification, extraction, condition evaluation and response rendering.
// Transport failures are returned both as an error and as a string beginning
// with CollaboratorErrorPrefix, so downstream parsing always has a value to
// inspect.
type Collaborator interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// CollaboratorErrorPrefix marks collaborator responses that report a
// transport or model failure instead of generated text.
const CollaboratorErrorPrefix = "Error: Could not query the LLM - "

// CapabilityRegistry resolves capability and operation names to callables.
type CapabilityRegistry interface {
	// Resolve returns the named operation. Operation lookup is
	// case-sensitive; callers normalize capability aliases beforehand.
	Resolve(capability, operation string) (Operation, error)

	// Get returns the full capability record.
	Get(name string) (Capability, bool)

	// List returns all registered capabilities, sorted by name.
	List() []Capability
}

// Executor validates and invokes a single capability operation.
type Executor interface {
	Execute(ctx context.Context, capability, operation string, args []interface{}) (interface{}, error)
}

// Router classifies one query into a Classification. It never returns an
// error: all failures degrade to KindCasual with an explanation.
type Router interface {
	Classify(ctx context.Context, query string) Classification
}

// Orchestrator plans and executes multi-step capability chains.
type Orchestrator interface {
	// Generate asks the collaborator for a chain answering the query. A
	// generation or parse failure yields an empty chain and a nil error so
	// the caller can fall back to single-capability routing.
	Generate(ctx context.Context, query string) ([]ChainStep, error)

	// Execute runs the chain. Step failures are captured in the returned
	// context; execution always continues to the next step.
	Execute(ctx context.Context, steps []ChainStep) (ChainContext, error)

	// Render turns the final chain context into a natural-language reply.
	Render(ctx context.Context, query string, chainCtx ChainContext) (string, error)
}

// Memory is the bounded rolling store of recent messages and capability
// invocations owned by one session.
type Memory interface {
	AddMessage(role, content string)
	AddToolUsage(capability, operation string, args []interface{}, result string)

	// History returns up to maxItems of the most recent messages,
	// oldest-first. maxItems <= 0 returns everything retained.
	History(maxItems int) []Message

	// RelevantContext returns a summary of user info and recent capability
	// usage, or "" when nothing is recorded. Never returns a sentinel nil.
	RelevantContext() string

	// DetectLanguage returns the language code of the most recent user
	// message, or "" when no user message exists.
	DetectLanguage() string
}

// Cache stores capability results for reuse within a TTL window.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
}
