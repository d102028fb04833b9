package flowagent

import "fmt"

// Error codes for specific failure types
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeCapabilityNotFound = "CAPABILITY_NOT_FOUND"
	ErrCodeOperationNotFound  = "OPERATION_NOT_FOUND"
	ErrCodeArity              = "ARITY_ERROR"
	ErrCodeExecution          = "EXECUTION_ERROR"
	ErrCodeResolution         = "RESOLUTION_ERROR"
	ErrCodeClassification     = "CLASSIFICATION_ERROR"
	ErrCodePlanning           = "PLAN_GENERATION_ERROR"
	ErrCodeRendering          = "RENDERING_ERROR"
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeCancelled          = "EXECUTION_CANCELLED"
	ErrCodeTimeout            = "EXECUTION_TIMEOUT"
	ErrCodeCache              = "CACHE_ERROR"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// FlowError is the structured error type used at every component boundary.
// Errors are recovered as close to their origin as possible and converted
// into values; a FlowError crossing a boundary is always inspectable rather
// than fatal.
type FlowError struct {
	Code    string // machine-readable code (e.g. ErrCodeArity)
	Stage   string // stage where the error occurred (e.g. "routing", "chain")
	Message string // human-readable message
	Cause   error  // underlying error, if any
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause, allowing errors.Is/As chaining.
func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, stage, message string, cause error) *FlowError {
	return &FlowError{Code: code, Stage: stage, Message: message, Cause: cause}
}

// IsFlowError reports whether err is a *FlowError.
func IsFlowError(err error) bool {
	_, ok := err.(*FlowError)
	return ok
}

// Specific error constructors

func NewValidationError(stage, message string, cause error) *FlowError {
	return NewError(ErrCodeValidation, stage, message, cause)
}

func NewCapabilityNotFoundError(stage, capability string) *FlowError {
	return NewError(ErrCodeCapabilityNotFound, stage, fmt.Sprintf("capability '%s' not available", capability), nil)
}

func NewOperationNotFoundError(stage, capability, operation string) *FlowError {
	return NewError(ErrCodeOperationNotFound, stage,
		fmt.Sprintf("operation '%s' not found on capability '%s'", operation, capability), nil)
}

func NewArityError(stage, operation string, required, got int) *FlowError {
	return NewError(ErrCodeArity, stage,
		fmt.Sprintf("not enough arguments for %s, need at least %d, got %d", operation, required, got), nil)
}

func NewExecutionError(stage, capability, operation string, cause error) *FlowError {
	return NewError(ErrCodeExecution, stage,
		fmt.Sprintf("execution failed for %s.%s", capability, operation), cause)
}

func NewResolutionError(stage, placeholder string, cause error) *FlowError {
	return NewError(ErrCodeResolution, stage,
		fmt.Sprintf("could not resolve placeholder: %s", placeholder), cause)
}

func NewPlanningError(cause error) *FlowError {
	return NewError(ErrCodePlanning, "planning", "failed to generate a valid chain", cause)
}

func NewRenderingError(cause error) *FlowError {
	return NewError(ErrCodeRendering, "rendering", "failed to render final response", cause)
}

func NewConfigurationError(message string, cause error) *FlowError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewTimeoutError(stage string, cause error) *FlowError {
	return NewError(ErrCodeTimeout, stage, "execution timed out", cause)
}

func NewCancelledError(stage string, cause error) *FlowError {
	return NewError(ErrCodeCancelled, stage, "execution cancelled", cause)
}

func NewInternalError(stage, message string, cause error) *FlowError {
	return NewError(ErrCodeInternal, stage, message, cause)
}
