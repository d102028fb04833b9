package flowagent

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// QueryKind represents the classification of a user query.
type QueryKind string

const (
	// KindToolRequest indicates a query answered by a single capability call.
	KindToolRequest QueryKind = "tool_request"
	// KindChain indicates a query requiring a multi-step capability chain.
	KindChain QueryKind = "chain_query"
	// KindCasual indicates casual conversation answered directly by the model.
	KindCasual QueryKind = "casual_conversation"
	// KindExit indicates the user asked to end the session.
	KindExit QueryKind = "exit"
)

// Classification is the router's verdict for one query. It is transient:
// produced per query and never persisted.
type Classification struct {
	Kind        QueryKind     `json:"type"`
	Capability  string        `json:"tool,omitempty"`
	Operation   string        `json:"function,omitempty"`
	Args        []interface{} `json:"args,omitempty"`
	Explanation string        `json:"explanation,omitempty"`
	Language    string        `json:"language,omitempty"`
	Translation string        `json:"translation,omitempty"`
}

// Entities holds typed fields extracted from a free-form query. Absence of a
// key means the field was not mentioned.
type Entities map[string]interface{}

// String returns the entity under key as a trimmed string, or "" when the
// field is absent, null, or not a string.
func (e Entities) String(key string) string {
	v, ok := e[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Amount returns the numeric "amount" entity, defaulting to 1 when absent or
// unparseable. The extraction model returns numbers either as JSON numbers
// or as quoted strings.
func (e Entities) Amount() float64 {
	v, ok := e["amount"]
	if !ok || v == nil {
		return 1
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return 1
}

// Param describes one positional parameter of a capability operation.
// Declaration order is significant: the executor pads and truncates argument
// lists against it, and the router's correction heuristics re-derive
// arguments in this order.
type Param struct {
	Name     string
	Optional bool
}

// OperationFunc is the callable behind a capability operation. Arguments are
// positional; optional parameters may be passed as nil.
type OperationFunc func(ctx context.Context, args []interface{}) (interface{}, error)

// Operation is a single callable exposed by a capability.
type Operation struct {
	Name        string
	Description string
	Params      []Param
	Example     string
	Handler     OperationFunc
}

// MinArgs returns the number of required (non-optional) parameters.
func (op Operation) MinArgs() int {
	n := 0
	for _, p := range op.Params {
		if !p.Optional {
			n++
		}
	}
	return n
}

// ParamNames returns the declared parameter names in order.
func (op Operation) ParamNames() []string {
	names := make([]string, len(op.Params))
	for i, p := range op.Params {
		names[i] = p.Name
	}
	return names
}

// Capability is a named, independently loadable unit exposing one or more
// operations. Built once at startup and immutable for the process lifetime.
type Capability struct {
	Name        string
	Description string
	Operations  []Operation
}

// Operation looks up an operation by name. Case-sensitive.
func (c Capability) Operation(name string) (Operation, bool) {
	for _, op := range c.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}

// Default returns the capability's default operation: the first one
// declared. Used by correction heuristics when the model names an operation
// that does not exist.
func (c Capability) Default() Operation {
	if len(c.Operations) == 0 {
		return Operation{}
	}
	return c.Operations[0]
}

// ChainStep is one step of an execution chain. Capability and Operation must
// resolve against the registry at definition time or the step is rejected.
type ChainStep struct {
	Capability  string                 `json:"tool_name"`
	Operation   string                 `json:"function_name"`
	InputParams map[string]interface{} `json:"input_params"`
	OutputKey   string                 `json:"output_key"`
	Condition   string                 `json:"condition,omitempty"`
}

// UnmarshalJSON accepts both naming conventions for plan steps: the
// tool_name/function_name pair emitted by planning prompts and the
// capability/operation pair used by hand-written chain files. When both
// appear, tool_name and function_name win.
func (s *ChainStep) UnmarshalJSON(data []byte) error {
	var raw struct {
		ToolName     string                 `json:"tool_name"`
		Capability   string                 `json:"capability"`
		FunctionName string                 `json:"function_name"`
		Operation    string                 `json:"operation"`
		InputParams  map[string]interface{} `json:"input_params"`
		OutputKey    string                 `json:"output_key"`
		Condition    string                 `json:"condition"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Capability = raw.ToolName
	if s.Capability == "" {
		s.Capability = raw.Capability
	}
	s.Operation = raw.FunctionName
	if s.Operation == "" {
		s.Operation = raw.Operation
	}
	s.InputParams = raw.InputParams
	s.OutputKey = raw.OutputKey
	s.Condition = raw.Condition
	return nil
}

// ChainContext accumulates step outputs keyed by output key, in step order.
// It lives for exactly one chain execution.
type ChainContext map[string]interface{}

// StepFailure is written into the chain context under a failed step's output
// key instead of aborting the chain.
type StepFailure struct {
	Error       string `json:"error"`
	Alternative string `json:"alternative"`
}

// Message is one exchanged message as seen by prompt builders.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
