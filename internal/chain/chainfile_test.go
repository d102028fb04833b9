package chain

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleChainYAML = `name: weather-briefing
description: Weather plus related reading for one city.
steps:
  - capability: weather
    operation: get_weather
    input_params:
      location: Bergen
    output_key: weather_data
  - capability: search
    operation: search_web
    input_params:
      query: "{{weather_data.conditions}} clothing advice"
    output_key: articles
    condition: "{{weather_data.temperature}} < 15"
`

func TestLoadChainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "briefing.yaml")
	if err := os.WriteFile(path, []byte(sampleChainYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cf, err := LoadChainFile(path)
	if err != nil {
		t.Fatalf("LoadChainFile: %v", err)
	}
	if cf.Name != "weather-briefing" {
		t.Errorf("name = %q", cf.Name)
	}

	steps := cf.ChainSteps()
	if len(steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(steps))
	}
	if steps[0].Capability != "weather" || steps[0].InputParams["location"] != "Bergen" {
		t.Errorf("first step = %+v", steps[0])
	}
	if steps[1].Condition != "{{weather_data.temperature}} < 15" {
		t.Errorf("condition = %q", steps[1].Condition)
	}

	o := newTestOrchestrator(&fakeExecutor{}, &cannedCollaborator{}, nil)
	if err := o.Define(steps); err != nil {
		t.Errorf("loaded chain failed validation: %v", err)
	}
}

func TestLoadChainFilePlannerKeyNaming(t *testing.T) {
	content := `name: planner-style
steps:
  - tool_name: weather
    function_name: get_weather
    input_params:
      location: Bergen
    output_key: weather_data
`
	path := filepath.Join(t.TempDir(), "planner.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cf, err := LoadChainFile(path)
	if err != nil {
		t.Fatalf("LoadChainFile: %v", err)
	}
	steps := cf.ChainSteps()
	if len(steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(steps))
	}
	if steps[0].Capability != "weather" || steps[0].Operation != "get_weather" {
		t.Errorf("step = %+v", steps[0])
	}

	o := newTestOrchestrator(&fakeExecutor{}, &cannedCollaborator{}, nil)
	if err := o.Define(steps); err != nil {
		t.Errorf("loaded chain failed validation: %v", err)
	}
}

func TestParseChainFileJSONPlan(t *testing.T) {
	plan := `[{"tool_name": "weather", "function_name": "get_weather", "input_params": {"location": "Bergen"}, "output_key": "weather_data"}]`

	cf, err := ParseChainFile([]byte(plan))
	if err != nil {
		t.Fatalf("ParseChainFile: %v", err)
	}
	steps := cf.ChainSteps()
	if len(steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(steps))
	}
	if steps[0].Capability != "weather" || steps[0].InputParams["location"] != "Bergen" {
		t.Errorf("step = %+v", steps[0])
	}
}

func TestLoadChainFileJSONDocument(t *testing.T) {
	content := `{"name": "briefing", "steps": [{"capability": "weather", "operation": "get_weather", "output_key": "weather_data"}]}`
	path := filepath.Join(t.TempDir(), "briefing.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cf, err := LoadChainFile(path)
	if err != nil {
		t.Fatalf("LoadChainFile: %v", err)
	}
	if cf.Name != "briefing" {
		t.Errorf("name = %q", cf.Name)
	}
	steps := cf.ChainSteps()
	if len(steps) != 1 || steps[0].Operation != "get_weather" {
		t.Errorf("steps = %+v", steps)
	}
}

func TestLoadChainFileMissing(t *testing.T) {
	if _, err := LoadChainFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadChainFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("steps: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChainFile(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}
