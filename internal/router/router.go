// Package router implements query classification: deciding what a free-form
// request means, which capability and arguments it maps to, and repairing
// detectably wrong model output against the registry.
package router

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	flowagent "github.com/frostholm/flowagent"
	"github.com/frostholm/flowagent/internal/llm"
)

// historyWindow is how many recent messages feed the classification prompt.
const historyWindow = 5

// exitKeywords short-circuit classification before any collaborator call.
var exitKeywords = map[string]struct{}{
	"exit": {},
	"quit": {},
	"q":    {},
}

// QueryRouter classifies one query at a time. It owns no mutable state
// beyond its injected dependencies, so a single instance serves a session.
type QueryRouter struct {
	registry     flowagent.CapabilityRegistry
	collaborator flowagent.Collaborator
	memory       flowagent.Memory
	aliases      map[string]string
	corrections  map[string]RepairFunc
}

// New creates a router with the default alias table and correction table.
func New(registry flowagent.CapabilityRegistry, collaborator flowagent.Collaborator, memory flowagent.Memory) *QueryRouter {
	return &QueryRouter{
		registry:     registry,
		collaborator: collaborator,
		memory:       memory,
		aliases:      defaultAliases(),
		corrections:  defaultCorrections(),
	}
}

// Classify runs the classification pipeline: exit short-circuit, language
// detection, entity extraction, model classification, alias normalization
// and correction heuristics. It never returns an error; every failure
// degrades to casual conversation with an explanation.
func (r *QueryRouter) Classify(ctx context.Context, query string) flowagent.Classification {
	trimmed := strings.ToLower(strings.TrimSpace(query))
	if _, isExit := exitKeywords[trimmed]; isExit {
		return flowagent.Classification{Kind: flowagent.KindExit}
	}

	language := r.memory.DetectLanguage()
	if language == "" {
		language = "en"
	}

	entities := r.ExtractEntities(ctx, query, language)

	cls, ok := r.classifyWithModel(ctx, query, language, entities)
	if !ok {
		return cls
	}

	// Normalize the capability name the model chose against the alias
	// table, then apply correction heuristics for registered capabilities.
	if cls.Capability != "" {
		normalized := r.NormalizeCapabilityName(cls.Capability)
		if normalized != cls.Capability {
			log.Printf("Capability name normalized: '%s' -> '%s'", cls.Capability, normalized)
			cls.Capability = normalized
		}
	}
	r.applyCorrections(&cls, entities)

	return cls
}

// ExtractEntities issues the structured-extraction prompt and parses the
// typed fields out of the reply. A call or parse failure yields an empty
// mapping, never an error.
func (r *QueryRouter) ExtractEntities(ctx context.Context, query, language string) flowagent.Entities {
	response, err := r.collaborator.Query(ctx, llm.ExtractionPrompt(query, language))
	if err != nil {
		log.Printf("Entity extraction call failed: %v", err)
		return flowagent.Entities{}
	}

	payload, found := llm.ExtractJSONObject(llm.StripCodeFence(response))
	if !found {
		return flowagent.Entities{}
	}

	var entities flowagent.Entities
	if err := json.Unmarshal([]byte(payload), &entities); err != nil {
		log.Printf("Entity extraction parse failed: %v", err)
		return flowagent.Entities{}
	}
	return entities
}

// rawClassification matches the JSON contract of the classification prompt.
type rawClassification struct {
	Type        string        `json:"type"`
	Tool        string        `json:"tool"`
	Function    string        `json:"function"`
	Args        []interface{} `json:"args"`
	Explanation string        `json:"explanation"`
	Language    string        `json:"language"`
	Translation string        `json:"translation"`
}

func (r *QueryRouter) classifyWithModel(ctx context.Context, query, language string, entities flowagent.Entities) (flowagent.Classification, bool) {
	entitiesJSON, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		entitiesJSON = []byte("{}")
	}
	historyText := llm.HistoryText(r.memory.History(historyWindow))

	prompt := llm.ClassificationPrompt(query, language, string(entitiesJSON), historyText, r.registry.List())
	response, err := r.collaborator.Query(ctx, prompt)
	if err != nil {
		return r.degrade(language, "collaborator call failed: "+err.Error()), false
	}

	payload, found := llm.ExtractJSONObject(llm.StripCodeFence(response))
	if !found {
		log.Printf("No valid JSON found in classification response: %.200s", response)
		return r.degrade(language, "no valid JSON found in response"), false
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		log.Printf("Error parsing classification response: %v", err)
		return r.degrade(language, "error parsing response: "+err.Error()), false
	}

	kind := flowagent.QueryKind(raw.Type)
	switch kind {
	case flowagent.KindToolRequest, flowagent.KindChain, flowagent.KindCasual, flowagent.KindExit:
	default:
		kind = flowagent.KindCasual
	}

	if raw.Language == "" {
		raw.Language = language
	}

	return flowagent.Classification{
		Kind:        kind,
		Capability:  raw.Tool,
		Operation:   raw.Function,
		Args:        raw.Args,
		Explanation: raw.Explanation,
		Language:    raw.Language,
		Translation: raw.Translation,
	}, true
}

// degrade is the router's universal failure path.
func (r *QueryRouter) degrade(language, explanation string) flowagent.Classification {
	return flowagent.Classification{
		Kind:        flowagent.KindCasual,
		Explanation: explanation,
		Language:    language,
	}
}

// NormalizeCapabilityName maps a human-readable alias the model may return
// ("weather information", "currency converter") onto the registry key.
// Exact case-insensitive match wins; otherwise the first substring match in
// either direction; otherwise the name passes through unchanged.
func (r *QueryRouter) NormalizeCapabilityName(name string) string {
	if name == "" {
		return name
	}
	lower := strings.ToLower(strings.TrimSpace(name))

	if target, ok := r.aliases[lower]; ok {
		return target
	}
	// Longest alias first, so "air quality information" beats "air".
	for _, alias := range orderedAliases(r.aliases) {
		if strings.Contains(lower, alias) || strings.Contains(alias, lower) {
			return r.aliases[alias]
		}
	}
	return name
}
