package registry

import (
	"context"
	"fmt"
	"log"

	flowagent "github.com/frostholm/flowagent"
)

// CallExecutor validates argument arity against an operation's declared
// signature and invokes it, converting handler panics and errors into
// structured error values. It implements flowagent.Executor.
type CallExecutor struct {
	registry *Registry
	memory   flowagent.Memory
}

// NewExecutor creates an executor over the given registry. memory may be nil
// in tests; when present every invocation, successful or failed, is recorded
// into its tool-usage log.
func NewExecutor(registry *Registry, memory flowagent.Memory) *CallExecutor {
	return &CallExecutor{registry: registry, memory: memory}
}

// Execute resolves and invokes capability.operation with args. Arity
// violations are reported before the handler is ever called. Handler errors
// and panics are captured and returned as *flowagent.FlowError values, never
// propagated as panics.
func (e *CallExecutor) Execute(ctx context.Context, capability, operation string, args []interface{}) (interface{}, error) {
	op, err := e.registry.Resolve(capability, operation)
	if err != nil {
		e.record(capability, operation, args, err.Error())
		return nil, err
	}

	if min := op.MinArgs(); len(args) < min {
		arityErr := flowagent.NewArityError("execution", operation, min, len(args))
		e.record(capability, operation, args, arityErr.Error())
		return nil, arityErr
	}

	// Pad or truncate to the declared parameter count; optional trailing
	// parameters are passed as nil.
	call := make([]interface{}, len(op.Params))
	copy(call, args)

	log.Printf("Executing capability: %s.%s with args: %v", capability, operation, call)

	result, execErr := e.invoke(ctx, op, call)
	if execErr != nil {
		wrapped := flowagent.NewExecutionError("execution", capability, operation, execErr)
		e.record(capability, operation, args, wrapped.Error())
		return nil, wrapped
	}

	e.record(capability, operation, args, fmt.Sprintf("%v", result))
	return result, nil
}

// invoke runs the handler with panic recovery.
func (e *CallExecutor) invoke(ctx context.Context, op flowagent.Operation, args []interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capability panicked: %v", r)
		}
	}()
	return op.Handler(ctx, args)
}

func (e *CallExecutor) record(capability, operation string, args []interface{}, result string) {
	if e.memory == nil {
		return
	}
	e.memory.AddToolUsage(capability, operation, args, result)
}
