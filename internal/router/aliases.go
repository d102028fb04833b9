package router

import "sort"

// defaultAliases maps the human-readable capability names the model tends to
// produce onto registry keys.
func defaultAliases() map[string]string {
	return map[string]string{
		"weather information": "weather",
		"weather tool":        "weather",
		"weather":             "weather",

		"time information": "time",
		"time tool":        "time",
		"time":             "time",

		"currency conversion": "currency",
		"currency converter":  "currency",
		"currency tool":       "currency",
		"currency":            "currency",

		"geolocation information": "geolocation",
		"geolocation tool":        "geolocation",
		"geolocation":             "geolocation",
		"location":                "geolocation",
		"distance":                "geolocation",

		"news information": "news",
		"news retrieval":   "news",
		"news tool":        "news",
		"news":             "news",

		"stock information": "stock",
		"stock market":      "stock",
		"stock tool":        "stock",
		"stock":             "stock",
		"finance":           "stock",

		"wikipedia information": "wikipedia",
		"wikipedia knowledge":   "wikipedia",
		"wikipedia tool":        "wikipedia",
		"wikipedia":             "wikipedia",

		"web parser information": "web_parser",
		"web parser tool":        "web_parser",
		"web parser":             "web_parser",
		"webpage parser":         "web_parser",

		"search information": "search",
		"web search":         "search",
		"search tool":        "search",
		"search":             "search",

		"air quality information": "air_quality",
		"air quality tool":        "air_quality",
		"air quality":             "air_quality",
		"air":                     "air_quality",

		"astronomy information": "astronomy",
		"astronomy tool":        "astronomy",
		"astronomy":             "astronomy",
		"celestial":             "astronomy",
		"constellation":         "astronomy",
		"planet":                "astronomy",
		"eclipse":               "astronomy",
	}
}

// orderedAliases returns alias keys longest-first (ties broken
// lexicographically) so substring matching is deterministic and the most
// specific alias wins.
func orderedAliases(aliases map[string]string) []string {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
