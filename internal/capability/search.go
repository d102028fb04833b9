package capability

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	flowagent "github.com/frostholm/flowagent"
)

// Search builds the web search capability backed by the DuckDuckGo Lite
// HTML frontend, which serves static markup without JavaScript.
func Search(client *Client) flowagent.Capability {
	return flowagent.Capability{
		Name:        "search",
		Description: "General web search",
		Operations: []flowagent.Operation{
			{
				Name:        "search_web",
				Description: "Search the web and return result titles, links and snippets",
				Params: []flowagent.Param{
					{Name: "query"},
					{Name: "num_results", Optional: true},
				},
				Example: `search_web("golang concurrency patterns", 5)`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					query, err := stringArg(args, 0, "query")
					if err != nil {
						return nil, err
					}
					numResults := optionalIntArg(args, 1, 10)
					return searchWeb(ctx, client, query, numResults)
				},
			},
		},
	}
}

func searchWeb(ctx context.Context, client *Client, query string, numResults int) (interface{}, error) {
	if numResults <= 0 || numResults > 25 {
		numResults = 10
	}
	endpoint := "https://lite.duckduckgo.com/lite/?q=" + url.QueryEscape(query)
	doc, err := client.GetDocument(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	doc.Find("a.result-link").EachWithBreak(func(i int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		title := strings.TrimSpace(link.Text())
		if href == "" || title == "" {
			return true
		}

		snippet := ""
		// The snippet sits in the row following the result link.
		if row := link.Closest("tr"); row.Length() > 0 {
			snippet = strings.TrimSpace(row.Next().Find("td.result-snippet").Text())
		}

		results = append(results, map[string]interface{}{
			"title":   title,
			"url":     cleanResultURL(href),
			"snippet": snippet,
		})
		return len(results) < numResults
	})

	return map[string]interface{}{
		"query":   query,
		"results": results,
		"count":   len(results),
	}, nil
}

// cleanResultURL unwraps DuckDuckGo redirect links to the target URL.
func cleanResultURL(href string) string {
	if strings.HasPrefix(href, "//duckduckgo.com/l/") || strings.Contains(href, "duckduckgo.com/l/") {
		if parsed, err := url.Parse(href); err == nil {
			if target := parsed.Query().Get("uddg"); target != "" {
				return target
			}
		}
	}
	return href
}
