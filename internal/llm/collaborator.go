// Package llm wraps the language-model collaborator: a genkit-backed query
// interface plus the prompt builders and tolerant payload parsing shared by
// the router and the chain orchestrator.
package llm

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	flowagent "github.com/frostholm/flowagent"
)

// DefaultQueryTimeout bounds a single collaborator round trip.
const DefaultQueryTimeout = 60 * time.Second

// GenkitCollaborator implements flowagent.Collaborator over a genkit
// instance. Model wiring (Ollama, Gemini, ...) happens at initialization in
// the caller; this type only issues generate calls.
type GenkitCollaborator struct {
	g       *genkit.Genkit
	model   string
	timeout time.Duration
}

// Option configures a GenkitCollaborator.
type Option func(*GenkitCollaborator)

// WithModelName selects the model by name for every query.
func WithModelName(model string) Option {
	return func(c *GenkitCollaborator) {
		c.model = model
	}
}

// WithTimeout overrides the per-query timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *GenkitCollaborator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewGenkitCollaborator creates a collaborator over an initialized genkit
// instance.
func NewGenkitCollaborator(g *genkit.Genkit, options ...Option) *GenkitCollaborator {
	c := &GenkitCollaborator{g: g, timeout: DefaultQueryTimeout}
	for _, option := range options {
		option(c)
	}
	return c
}

// Query sends the prompt and returns the model's text. On failure the
// returned string carries the fixed error prefix alongside the error, so
// downstream parsing always has a value to inspect.
func (c *GenkitCollaborator) Query(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := []ai.GenerateOption{ai.WithPrompt(prompt)}
	if c.model != "" {
		opts = append(opts, ai.WithModelName(c.model))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return flowagent.CollaboratorErrorPrefix + err.Error(), err
	}
	return resp.Text(), nil
}
