package router

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	flowagent "github.com/frostholm/flowagent"
)

// RepairFunc is a capability-specific correction applied to a classification
// after alias normalization. Repairs are keyed by capability identity and
// declared parameter order, never by matching model text.
type RepairFunc func(cls *flowagent.Classification, entities flowagent.Entities, capability flowagent.Capability)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// defaultCorrections builds the correction table. Each entry repairs the
// argument list of one capability using extracted entities.
func defaultCorrections() map[string]RepairFunc {
	return map[string]RepairFunc{
		"currency":    repairCurrencyArgs,
		"astronomy":   repairAstronomyArgs,
		"weather":     repairLocationLeadingArgs,
		"air_quality": repairLocationLeadingArgs,
	}
}

// applyCorrections runs the repair pipeline for classifications that name a
// capability present in the registry. Unregistered capabilities pass through
// untouched; the executor reports them as not available.
func (r *QueryRouter) applyCorrections(cls *flowagent.Classification, entities flowagent.Entities) {
	if cls.Capability == "" {
		return
	}
	capability, ok := r.registry.Get(cls.Capability)
	if !ok {
		return
	}

	// An operation the capability does not declare falls back to the
	// capability's default operation, with arguments re-derived from the
	// extracted entities in declared parameter order.
	if cls.Operation != "" {
		if _, exists := capability.Operation(cls.Operation); !exists {
			fallback := capability.Default()
			log.Printf("Operation '%s' not found on capability '%s', using '%s'",
				cls.Operation, cls.Capability, fallback.Name)
			cls.Operation = fallback.Name
			cls.Args = argsFromEntities(fallback, entities)
		}
	} else {
		fallback := capability.Default()
		cls.Operation = fallback.Name
		if len(cls.Args) == 0 {
			cls.Args = argsFromEntities(fallback, entities)
		}
	}

	if repair, exists := r.corrections[capability.Name]; exists {
		repair(cls, entities, capability)
	}
}

// argsFromEntities builds a positional argument list for an operation by
// matching declared parameter names against extracted entity fields,
// substituting nil for unknown optional parameters.
func argsFromEntities(op flowagent.Operation, entities flowagent.Entities) []interface{} {
	args := make([]interface{}, len(op.Params))
	for i, p := range op.Params {
		args[i] = entityForParam(p.Name, entities)
	}
	// Trim trailing nils so optional parameters stay genuinely absent.
	for len(args) > 0 && args[len(args)-1] == nil {
		args = args[:len(args)-1]
	}
	return args
}

func entityForParam(name string, entities flowagent.Entities) interface{} {
	switch name {
	case "location", "location1", "location2", "source_location", "target_location":
		if loc := entities.String("location"); loc != "" {
			return loc
		}
	case "amount":
		if _, ok := entities["amount"]; ok {
			return entities.Amount()
		}
	case "from_currency":
		if cur := entities.String("from_currency"); cur != "" {
			return cur
		}
	case "to_currency":
		if cur := entities.String("to_currency"); cur != "" {
			return cur
		}
	case "date":
		if date := entities.String("date"); date != "" {
			return date
		}
	case "query":
		if q := entities.String("query"); q != "" {
			return q
		}
	}
	return nil
}

// repairCurrencyArgs guarantees the [amount, from_currency, to_currency]
// shape. The model frequently omits the amount or supplies the currencies
// alone; the merge rules depend on how many arguments it produced.
func repairCurrencyArgs(cls *flowagent.Classification, entities flowagent.Entities, _ flowagent.Capability) {
	if len(cls.Args) >= 3 {
		return
	}

	corrected := []interface{}{entities.Amount()}
	fromCur := entities.String("from_currency")
	toCur := entities.String("to_currency")

	switch len(cls.Args) {
	case 0:
		if fromCur != "" {
			corrected = append(corrected, fromCur)
		}
		if toCur != "" {
			corrected = append(corrected, toCur)
		}
	case 1:
		corrected = append(corrected, cls.Args[0])
		if toCur != "" {
			corrected = append(corrected, toCur)
		}
	case 2:
		corrected = append(corrected, cls.Args...)
	}

	for len(corrected) < 3 {
		corrected = append(corrected, nil)
	}
	cls.Args = corrected[:3]
}

// repairAstronomyArgs fixes celestial-event calls, whose first parameter is
// an optional date filter: a first argument that is not a YYYY-MM-DD date is
// replaced with nil, and a location entity fills the second slot when the
// model supplied zero or one arguments.
func repairAstronomyArgs(cls *flowagent.Classification, entities flowagent.Entities, capability flowagent.Capability) {
	op, ok := capability.Operation(cls.Operation)
	if !ok || len(op.Params) == 0 || op.Params[0].Name != "date" {
		return
	}

	if len(cls.Args) > 0 && cls.Args[0] != nil {
		if s := fmt.Sprintf("%v", cls.Args[0]); !datePattern.MatchString(s) {
			log.Printf("Replaced invalid date parameter '%s' with nil", s)
			cls.Args[0] = nil
		}
	}

	if loc := entities.String("location"); loc != "" {
		switch len(cls.Args) {
		case 0:
			cls.Args = []interface{}{nil, loc}
		case 1:
			cls.Args = append(cls.Args, loc)
		}
	}
}

// repairLocationLeadingArgs overwrites the first argument of location-first
// lookups (weather, air quality) with the extracted location, which is
// already normalized to standard English form.
func repairLocationLeadingArgs(cls *flowagent.Classification, entities flowagent.Entities, _ flowagent.Capability) {
	loc := entities.String("location")
	if loc == "" || !strings.HasPrefix(cls.Operation, "get_") {
		return
	}
	if len(cls.Args) == 0 {
		cls.Args = []interface{}{loc}
	} else {
		cls.Args[0] = loc
	}
}
