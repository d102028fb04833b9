package chain

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	flowagent "github.com/frostholm/flowagent"
)

// ChainFile is the on-disk form of a predefined chain.
type ChainFile struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Steps       []ChainFileStep `yaml:"steps"`
}

// ChainFileStep mirrors ChainStep with YAML field names. Both naming
// conventions are accepted per step: capability/operation and the
// tool_name/function_name pair planning prompts emit.
type ChainFileStep struct {
	Capability   string                 `yaml:"capability"`
	ToolName     string                 `yaml:"tool_name"`
	Operation    string                 `yaml:"operation"`
	FunctionName string                 `yaml:"function_name"`
	InputParams  map[string]interface{} `yaml:"input_params"`
	OutputKey    string                 `yaml:"output_key"`
	Condition    string                 `yaml:"condition"`
}

// LoadChainFile parses a chain file. YAML documents and JSON documents are
// both accepted; a bare JSON array is treated as a list of steps with no
// name or description. The result still needs Define before execution.
func LoadChainFile(path string) (*ChainFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain file: %w", err)
	}
	return ParseChainFile(data)
}

// ParseChainFile parses chain file content from memory. JSON is a subset of
// YAML, so a JSON plan string works here unchanged.
func ParseChainFile(data []byte) (*ChainFile, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var steps []ChainFileStep
		if err := yaml.Unmarshal(trimmed, &steps); err != nil {
			return nil, fmt.Errorf("failed to parse chain steps: %w", err)
		}
		return &ChainFile{Steps: steps}, nil
	}

	var cf ChainFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse chain file: %w", err)
	}
	return &cf, nil
}

// ChainSteps converts the file form into executable chain steps.
func (cf *ChainFile) ChainSteps() []flowagent.ChainStep {
	steps := make([]flowagent.ChainStep, len(cf.Steps))
	for i, s := range cf.Steps {
		capability := s.Capability
		if capability == "" {
			capability = s.ToolName
		}
		operation := s.Operation
		if operation == "" {
			operation = s.FunctionName
		}
		steps[i] = flowagent.ChainStep{
			Capability:  capability,
			Operation:   operation,
			InputParams: s.InputParams,
			OutputKey:   s.OutputKey,
			Condition:   s.Condition,
		}
	}
	return steps
}
