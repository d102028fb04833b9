package chain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	flowagent "github.com/frostholm/flowagent"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// ResolveValue substitutes {{key.path}} placeholders in v against the chain
// context. A value that is exactly one placeholder resolves to the referenced
// value with its native type; placeholders embedded in a larger string are
// stringified in place. Maps and slices are resolved recursively.
func ResolveValue(v interface{}, chainCtx flowagent.ChainContext) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return resolveString(val, chainCtx)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			resolved, err := ResolveValue(item, chainCtx)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			resolved, err := ResolveValue(item, chainCtx)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveString(s string, chainCtx flowagent.ChainContext) (interface{}, error) {
	trimmed := strings.TrimSpace(s)
	if m := placeholderPattern.FindStringSubmatch(trimmed); m != nil && m[0] == trimmed {
		return lookupPath(strings.TrimSpace(m[1]), chainCtx)
	}

	var resolveErr error
	replaced := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		value, err := lookupPath(path, chainCtx)
		if err != nil {
			if resolveErr == nil {
				resolveErr = err
			}
			return match
		}
		return fmt.Sprintf("%v", value)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return replaced, nil
}

// lookupPath walks a dotted path through the chain context. The first
// segment selects a step output key; later segments index into nested maps
// and slices.
func lookupPath(path string, chainCtx flowagent.ChainContext) (interface{}, error) {
	segments := strings.Split(path, ".")
	current, ok := chainCtx[segments[0]]
	if !ok {
		return nil, flowagent.NewResolutionError("chain", path, nil)
	}

	for _, seg := range segments[1:] {
		switch node := current.(type) {
		case map[string]interface{}:
			next, exists := node[seg]
			if !exists {
				return nil, flowagent.NewResolutionError("chain", path, nil)
			}
			current = next
		case flowagent.ChainContext:
			next, exists := node[seg]
			if !exists {
				return nil, flowagent.NewResolutionError("chain", path, nil)
			}
			current = next
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, flowagent.NewResolutionError("chain", path, err)
			}
			current = node[idx]
		default:
			return nil, flowagent.NewResolutionError("chain", path, nil)
		}
	}
	return current, nil
}

// placeholderPaths returns every placeholder path referenced anywhere in v.
func placeholderPaths(v interface{}) []string {
	var paths []string
	switch val := v.(type) {
	case string:
		for _, m := range placeholderPattern.FindAllStringSubmatch(val, -1) {
			paths = append(paths, strings.TrimSpace(m[1]))
		}
	case map[string]interface{}:
		for _, item := range val {
			paths = append(paths, placeholderPaths(item)...)
		}
	case []interface{}:
		for _, item := range val {
			paths = append(paths, placeholderPaths(item)...)
		}
	}
	return paths
}
