// Package chain plans, validates and executes multi-step capability chains.
// Chains are produced by the collaborator or loaded from YAML files, then
// run sequentially with per-step conditions, caching, retries and failure
// capture.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	flowagent "github.com/frostholm/flowagent"
	"github.com/frostholm/flowagent/internal/eventbus"
	"github.com/frostholm/flowagent/internal/llm"
)

// ChainOrchestrator runs capability chains against the registry via the
// executor, with results cached for reuse within the TTL window.
type ChainOrchestrator struct {
	registry     flowagent.CapabilityRegistry
	executor     flowagent.Executor
	collaborator flowagent.Collaborator
	cache        flowagent.Cache
	memory       flowagent.Memory
	bus          eventbus.EventBus

	maxAttempts int
	retryDelay  time.Duration
	stepTimeout time.Duration
}

// Option configures a ChainOrchestrator.
type Option func(*ChainOrchestrator)

// WithMaxAttempts sets the total number of attempts per step, including the
// first. Values below 1 are ignored.
func WithMaxAttempts(attempts int) Option {
	return func(o *ChainOrchestrator) {
		if attempts >= 1 {
			o.maxAttempts = attempts
		}
	}
}

// WithRetryDelay sets the wait before the first retry. The wait doubles
// after each failed attempt.
func WithRetryDelay(delay time.Duration) Option {
	return func(o *ChainOrchestrator) {
		o.retryDelay = delay
	}
}

// WithStepTimeout sets the per-attempt execution timeout.
func WithStepTimeout(timeout time.Duration) Option {
	return func(o *ChainOrchestrator) {
		o.stepTimeout = timeout
	}
}

// WithEventBus attaches an event bus for chain lifecycle events.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(o *ChainOrchestrator) {
		o.bus = bus
	}
}

// New creates an orchestrator with default retry and timeout settings.
func New(registry flowagent.CapabilityRegistry, executor flowagent.Executor, collaborator flowagent.Collaborator, cache flowagent.Cache, memory flowagent.Memory, options ...Option) *ChainOrchestrator {
	o := &ChainOrchestrator{
		registry:     registry,
		executor:     executor,
		collaborator: collaborator,
		cache:        cache,
		memory:       memory,
		maxAttempts:  3,
		retryDelay:   time.Second,
		stepTimeout:  15 * time.Second,
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// Generate asks the collaborator to plan a chain for the query. Planning and
// parse failures are logged and reported as an empty chain with a nil error
// so the caller can fall back to single-capability routing.
func (o *ChainOrchestrator) Generate(ctx context.Context, query string) ([]flowagent.ChainStep, error) {
	prompt := llm.ChainPrompt(query, o.registry.List())
	response, err := o.collaborator.Query(ctx, prompt)
	if err != nil {
		log.Printf("Chain generation failed (error: %v)", err)
		return nil, nil
	}

	steps, err := o.DefineJSON(response)
	if err != nil {
		log.Printf("Chain generation produced an unusable plan (error: %v)", err)
		return nil, nil
	}

	o.publish(ctx, eventbus.EventChainGenerated, map[string]interface{}{
		"query": query,
		"steps": len(steps),
	})
	return steps, nil
}

// DefineJSON parses a plan given as a JSON string and validates it with
// Define. Fenced code blocks around the array are tolerated, and steps may
// use either key naming accepted by ChainStep.
func (o *ChainOrchestrator) DefineJSON(plan string) ([]flowagent.ChainStep, error) {
	raw, ok := llm.ExtractJSONArray(llm.StripCodeFence(plan))
	if !ok {
		return nil, flowagent.NewValidationError("chain", "plan contains no JSON array", nil)
	}

	var steps []flowagent.ChainStep
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, flowagent.NewValidationError("chain", "plan is not valid JSON", err)
	}

	if err := o.Define(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// Define validates a chain without executing it: every step must name a
// registered capability operation, output keys must be unique and non-empty,
// and placeholders may only reference output keys of earlier steps.
func (o *ChainOrchestrator) Define(steps []flowagent.ChainStep) error {
	if len(steps) == 0 {
		return flowagent.NewValidationError("chain", "chain has no steps", nil)
	}

	seen := make(map[string]bool, len(steps))
	for i, step := range steps {
		if _, err := o.registry.Resolve(step.Capability, step.Operation); err != nil {
			return flowagent.NewValidationError("chain",
				fmt.Sprintf("step %d references unknown operation %s.%s", i, step.Capability, step.Operation), err)
		}
		if step.OutputKey == "" {
			return flowagent.NewValidationError("chain",
				fmt.Sprintf("step %d has no output key", i), nil)
		}
		if seen[step.OutputKey] {
			return flowagent.NewValidationError("chain",
				fmt.Sprintf("duplicate output key '%s'", step.OutputKey), nil)
		}

		for _, path := range placeholderPaths(step.InputParams) {
			root := strings.SplitN(path, ".", 2)[0]
			if !seen[root] {
				return flowagent.NewValidationError("chain",
					fmt.Sprintf("step %d placeholder '%s' does not reference an earlier step", i, path), nil)
			}
		}
		seen[step.OutputKey] = true
	}
	return nil
}

// Execute runs the chain sequentially. Skipped and failed steps never abort
// the chain: failures are recorded under the step's output key as a
// StepFailure and execution moves on. Execute returns an error only when the
// context is cancelled.
func (o *ChainOrchestrator) Execute(ctx context.Context, steps []flowagent.ChainStep) (flowagent.ChainContext, error) {
	chainCtx := make(flowagent.ChainContext, len(steps))
	o.publish(ctx, eventbus.EventChainStarted, map[string]interface{}{"steps": len(steps)})
	log.Printf("Starting chain execution (total_steps: %d)", len(steps))

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return chainCtx, flowagent.NewCancelledError("chain", err)
		}

		if !o.evaluateCondition(ctx, step.Condition, chainCtx) {
			log.Printf("Skipping step %d, condition not met (step: %s.%s, condition: %s)",
				i, step.Capability, step.Operation, step.Condition)
			o.publish(ctx, eventbus.EventChainStepSkipped, map[string]interface{}{
				"step": i, "capability": step.Capability, "operation": step.Operation,
			})
			continue
		}

		o.publish(ctx, eventbus.EventChainStepStarted, map[string]interface{}{
			"step": i, "capability": step.Capability, "operation": step.Operation,
		})

		result, err := o.runStep(ctx, step, chainCtx)
		if err != nil {
			if ctx.Err() != nil {
				return chainCtx, flowagent.NewCancelledError("chain", ctx.Err())
			}
			log.Printf("Step failed after retries (step: %s.%s, error: %v)", step.Capability, step.Operation, err)
			chainCtx[step.OutputKey] = flowagent.StepFailure{
				Error:       err.Error(),
				Alternative: o.suggestAlternative(ctx, step, err),
			}
			o.publish(ctx, eventbus.EventChainStepFailure, map[string]interface{}{
				"step": i, "capability": step.Capability, "operation": step.Operation, "error": err.Error(),
			})
			continue
		}

		chainCtx[step.OutputKey] = result
		o.publish(ctx, eventbus.EventChainStepSuccess, map[string]interface{}{
			"step": i, "capability": step.Capability, "operation": step.Operation,
		})
	}

	o.publish(ctx, eventbus.EventChainCompleted, map[string]interface{}{"outputs": len(chainCtx)})
	return chainCtx, nil
}

// runStep resolves placeholders, consults the cache and invokes the
// operation with retries.
func (o *ChainOrchestrator) runStep(ctx context.Context, step flowagent.ChainStep, chainCtx flowagent.ChainContext) (interface{}, error) {
	args, err := o.resolveArgs(step, chainCtx)
	if err != nil {
		return nil, err
	}

	key := cacheKey(step.Capability, step.Operation, args)
	if o.cache != nil {
		if cached, cacheErr := o.cache.Get(ctx, key); cacheErr == nil {
			log.Printf("Using cached result (step: %s.%s)", step.Capability, step.Operation)
			o.publish(ctx, eventbus.EventChainStepCached, map[string]interface{}{
				"capability": step.Capability, "operation": step.Operation,
			})
			// Cache hits skip the executor, so the usage log entry the
			// executor would have written is made here instead.
			o.record(step.Capability, step.Operation, args, cached)
			return cached, nil
		}
	}

	result, err := o.invokeWithRetry(ctx, step, args)
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		if cacheErr := o.cache.Set(ctx, key, result); cacheErr != nil {
			log.Printf("Failed to cache step result (key: %s, error: %v)", key, cacheErr)
		}
	}
	return result, nil
}

func (o *ChainOrchestrator) record(capability, operation string, args []interface{}, result interface{}) {
	if o.memory == nil {
		return
	}
	o.memory.AddToolUsage(capability, operation, args, fmt.Sprintf("%v", result))
}

// resolveArgs maps named input params onto the operation's declared
// positional parameters, resolving placeholders against the chain context.
func (o *ChainOrchestrator) resolveArgs(step flowagent.ChainStep, chainCtx flowagent.ChainContext) ([]interface{}, error) {
	op, err := o.registry.Resolve(step.Capability, step.Operation)
	if err != nil {
		return nil, err
	}

	args := make([]interface{}, len(op.Params))
	for i, p := range op.Params {
		raw, ok := step.InputParams[p.Name]
		if !ok {
			continue
		}
		resolved, err := ResolveValue(raw, chainCtx)
		if err != nil {
			return nil, err
		}
		args[i] = resolved
	}
	for len(args) > 0 && args[len(args)-1] == nil {
		args = args[:len(args)-1]
	}
	return args, nil
}

// invokeWithRetry runs the operation with a per-attempt timeout. The retry
// wait starts at retryDelay and doubles after each failed attempt.
func (o *ChainOrchestrator) invokeWithRetry(ctx context.Context, step flowagent.ChainStep, args []interface{}) (interface{}, error) {
	var lastErr error
	delay := o.retryDelay

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		result, err := o.invokeOnce(ctx, step, args)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, flowagent.NewCancelledError("chain", ctx.Err())
		}
		if attempt == o.maxAttempts {
			break
		}

		log.Printf("Step attempt failed, retrying (step: %s.%s, attempt: %d, max_attempts: %d, error: %v)",
			step.Capability, step.Operation, attempt, o.maxAttempts, err)
		o.publish(ctx, eventbus.EventChainStepRetried, map[string]interface{}{
			"capability": step.Capability, "operation": step.Operation, "attempt": attempt,
		})

		select {
		case <-ctx.Done():
			return nil, flowagent.NewCancelledError("chain", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}

type stepResult struct {
	value interface{}
	err   error
}

// invokeOnce runs one attempt in its own goroutine so a handler that ignores
// its context cannot stall the chain past the step timeout.
func (o *ChainOrchestrator) invokeOnce(ctx context.Context, step flowagent.ChainStep, args []interface{}) (interface{}, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	done := make(chan stepResult, 1)
	go func() {
		result, err := o.executor.Execute(stepCtx, step.Capability, step.Operation, args)
		done <- stepResult{value: result, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			return nil, flowagent.NewCancelledError("chain", ctx.Err())
		}
		return nil, flowagent.NewTimeoutError("chain", stepCtx.Err())
	}
}

// suggestAlternative asks the collaborator for a fallback suggestion after a
// step has exhausted its retries. A collaborator failure here yields "".
func (o *ChainOrchestrator) suggestAlternative(ctx context.Context, step flowagent.ChainStep, stepErr error) string {
	prompt := llm.AlternativePrompt(step.Capability, step.Operation, stepErr.Error(), o.registry.List())
	response, err := o.collaborator.Query(ctx, prompt)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(response)
}

// Render summarizes the chain context as a natural-language answer.
func (o *ChainOrchestrator) Render(ctx context.Context, query string, chainCtx flowagent.ChainContext) (string, error) {
	contextJSON, err := json.Marshal(chainCtx)
	if err != nil {
		return "", flowagent.NewRenderingError(err)
	}

	response, err := o.collaborator.Query(ctx, llm.RenderPrompt(query, string(contextJSON)))
	if err != nil {
		return "", flowagent.NewRenderingError(err)
	}
	o.publish(ctx, eventbus.EventResponseRendered, map[string]interface{}{"query": query})
	return strings.TrimSpace(response), nil
}

func (o *ChainOrchestrator) publish(ctx context.Context, eventType eventbus.EventType, payload map[string]interface{}) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, eventbus.NewEvent(eventType, payload, "chain", nil)); err != nil {
		log.Printf("Failed to publish chain event (type: %s, error: %v)", eventType, err)
	}
}

// cacheKey derives a stable cache key from the operation identity and its
// resolved arguments.
func cacheKey(capability, operation string, args []interface{}) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", args))
	}
	return capability + "." + operation + ":" + string(encoded)
}
