package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	flowagent "github.com/frostholm/flowagent"
)

// CapabilityDirectory renders a compact listing of capabilities and their
// exact operation names, suitable for embedding in prompts.
func CapabilityDirectory(capabilities []flowagent.Capability) string {
	var b strings.Builder
	for _, c := range capabilities {
		names := make([]string, len(c.Operations))
		for i, op := range c.Operations {
			names[i] = op.Name
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, strings.Join(names, ", "))
	}
	return b.String()
}

// CapabilitySchemas renders the full capability descriptions, parameters and
// examples as indented JSON for planning prompts.
func CapabilitySchemas(capabilities []flowagent.Capability) string {
	type opSchema struct {
		Description string   `json:"description"`
		Arguments   []string `json:"arguments"`
		Example     string   `json:"example,omitempty"`
	}
	type capSchema struct {
		Description string              `json:"description"`
		Functions   map[string]opSchema `json:"functions"`
	}

	schemas := make(map[string]capSchema, len(capabilities))
	for _, c := range capabilities {
		functions := make(map[string]opSchema, len(c.Operations))
		for _, op := range c.Operations {
			args := make([]string, len(op.Params))
			for i, p := range op.Params {
				if p.Optional {
					args[i] = p.Name + "(optional)"
				} else {
					args[i] = p.Name
				}
			}
			functions[op.Name] = opSchema{Description: op.Description, Arguments: args, Example: op.Example}
		}
		schemas[c.Name] = capSchema{Description: c.Description, Functions: functions}
	}

	out, err := json.MarshalIndent(schemas, "", "  ")
	if err != nil {
		return CapabilityDirectory(capabilities)
	}
	return string(out)
}

// HistoryText flattens messages into "role: content" lines.
func HistoryText(messages []flowagent.Message) string {
	lines := make([]string, len(messages))
	for i, msg := range messages {
		lines[i] = msg.Role + ": " + msg.Content
	}
	return strings.Join(lines, "\n")
}

// ExtractionPrompt asks for typed entities from a free-form query.
func ExtractionPrompt(query, language string) string {
	return fmt.Sprintf(`Analyze the following user query and extract key entities.
For queries about weather, air quality, or celestial events, extract the location name in standard English form.

For example:
- "погода в Барселоне" -> location: "Barcelona"
- "air quality in New York" -> location: "New York"
- "eclipse Barcelona" -> location: "Barcelona", event_type: "eclipse"
- "курс евро к рублю" -> from_currency: "EUR", to_currency: "RUB"

If the location is in a non-standard case or form (e.g., "Барселоне" instead of "Барселона"), normalize it first.

User query: "%s"
Detected language: %s

Respond ONLY with a JSON object containing the extracted entities. For example:
{
  "location": "Barcelona",
  "event_type": "weather",
  "from_currency": "EUR",
  "to_currency": "RUB",
  "amount": 1
}
`, query, language)
}

// ClassificationPrompt asks the model to classify a query and pick a
// capability, operation and argument list.
func ClassificationPrompt(query, language, entitiesJSON, historyText string, capabilities []flowagent.Capability) string {
	return fmt.Sprintf(`You are an assistant that can handle casual conversations and use tools to provide information.

First, determine if the user's query requires:
1. Multiple tools in sequence (e.g., "check weather in Tokyo and find news if raining")
2. A single tool (e.g., "what's the weather in London")
3. Just casual conversation (e.g., "how are you")

Extracted entities from query:
%s

Available tools and their exact function names:
%s
IMPORTANT INSTRUCTIONS:

1. Use ONLY the exact function names listed above. Never invent functions.
2. For queries in non-English languages, normalize and translate location names to English:
   - "погода в Барселоне" -> tool: weather, args: ["Barcelona"]
3. For currency conversion queries, always include the amount as first argument, using 1 as default:
   - "курс евро к рублю" -> tool: currency, function: convert_currency, args: [1, "EUR", "RUB"]

Detected language: %s

Recent conversation:
%s

User query: "%s"

IMPORTANT: You must respond with ONLY a valid JSON object, no other text. The JSON must contain these exact fields:
{
  "type": "tool_request" or "chain_query" or "casual_conversation" or "exit",
  "tool": "tool_name (if applicable)",
  "function": "function_name (if applicable)",
  "args": ["arg1", "arg2", ... (if applicable)],
  "explanation": "Brief explanation for the classification",
  "language": "language_code",
  "translation": "English translation if needed, otherwise null"
}
`, entitiesJSON, CapabilityDirectory(capabilities), language, historyText, query)
}

// ChainPrompt asks the model to plan a chain of capability calls.
func ChainPrompt(query string, capabilities []flowagent.Capability) string {
	return fmt.Sprintf(`Given the query: "%s"
Available tools:
%s

Generate a chain of tool calls to answer the query. Each step should specify:
- tool_name
- function_name
- input_params (use placeholders like {{weather_data.location.city}} to reference earlier outputs)
- output_key
- condition (optional, for conditional execution)

IMPORTANT: You must respond with ONLY a valid JSON array. Example:
[
    {"tool_name": "weather", "function_name": "get_weather", "input_params": {"location": "Tokyo"}, "output_key": "weather_data"},
    {"tool_name": "news", "function_name": "search_news", "input_params": {"query": "{{weather_data.location.city}} events", "max_results": 3}, "output_key": "news_data", "condition": "weather_data.precipitation.rain > 0"}
]

Ensure all tool names and functions are valid from the available tools list.`, query, CapabilitySchemas(capabilities))
}

// ConditionPrompt asks for a true/false verdict on a step condition.
func ConditionPrompt(condition, contextJSON string) string {
	return fmt.Sprintf(`Given the context: %s
Evaluate the condition: %s
Return "True" or "False".`, contextJSON, condition)
}

// AlternativePrompt asks for an alternative approach after a step failure.
func AlternativePrompt(capability, operation, errMsg string, capabilities []flowagent.Capability) string {
	return fmt.Sprintf(`Tool %s.%s failed with error: %s
Available tools:
%s
Suggest an alternative approach or response.`, capability, operation, errMsg, CapabilityDirectory(capabilities))
}

// RenderPrompt asks for a natural-language summary of chain outputs.
func RenderPrompt(query, contextJSON string) string {
	return fmt.Sprintf(`The user asked: "%s"
Given the tool outputs: %s
Summarize the results in natural language to answer the original query.
Keep the response concise and natural.
Include only relevant information from the context.
If there were any errors, explain them briefly and provide any suggested alternatives.`, query, contextJSON)
}

