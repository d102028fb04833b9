package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/Knetic/govaluate"

	flowagent "github.com/frostholm/flowagent"
	"github.com/frostholm/flowagent/internal/llm"
)

// evaluateCondition decides whether a conditional step runs. Conditions are
// evaluated locally first: placeholders and bare context paths are
// substituted with their current values and the result is handed to the
// expression engine. Only when local evaluation cannot parse or resolve the
// condition is the collaborator asked for a verdict.
func (o *ChainOrchestrator) evaluateCondition(ctx context.Context, condition string, chainCtx flowagent.ChainContext) bool {
	if strings.TrimSpace(condition) == "" {
		return true
	}

	if result, ok := evaluateLocally(condition, chainCtx); ok {
		return result
	}

	contextJSON, err := json.Marshal(chainCtx)
	if err != nil {
		contextJSON = []byte("{}")
	}
	response, err := o.collaborator.Query(ctx, llm.ConditionPrompt(condition, string(contextJSON)))
	if err != nil {
		log.Printf("Condition evaluation failed, skipping step (condition: %s, error: %v)", condition, err)
		return false
	}
	return strings.EqualFold(strings.TrimSpace(response), "true")
}

// evaluateLocally substitutes context values into the condition and runs the
// expression engine. The second return reports whether a verdict was reached.
func evaluateLocally(condition string, chainCtx flowagent.ChainContext) (bool, bool) {
	substituted := placeholderPattern.ReplaceAllStringFunc(condition, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		value, err := lookupPath(path, chainCtx)
		if err != nil {
			return match
		}
		return literal(value)
	})
	if placeholderPattern.MatchString(substituted) {
		return false, false
	}

	// Planners also write bare dotted paths ("weather.temp > 20") without
	// placeholder braces. Substitute any token whose first segment is a
	// known output key.
	fields := strings.Fields(substituted)
	for i, field := range fields {
		root := strings.SplitN(field, ".", 2)[0]
		if _, known := chainCtx[root]; !known {
			continue
		}
		if value, err := lookupPath(field, chainCtx); err == nil {
			fields[i] = literal(value)
		}
	}
	substituted = strings.Join(fields, " ")

	expr, err := govaluate.NewEvaluableExpression(substituted)
	if err != nil {
		return false, false
	}
	result, err := expr.Evaluate(nil)
	if err != nil {
		return false, false
	}
	verdict, ok := result.(bool)
	if !ok {
		return false, false
	}
	return verdict, true
}

// literal renders a context value as an expression-language literal.
func literal(v interface{}) string {
	switch val := v.(type) {
	case string:
		return `"` + strings.ReplaceAll(val, `"`, `\"`) + `"`
	case nil:
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}
