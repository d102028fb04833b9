package capability

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	flowagent "github.com/frostholm/flowagent"
)

// wikiLanguages restricts the language argument to editions the module has
// been exercised against.
var wikiLanguages = map[string]bool{
	"en": true, "ru": true, "es": true, "de": true, "fr": true,
	"it": true, "ja": true, "zh": true, "ko": true, "ar": true, "pt": true,
}

func wikiLang(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if wikiLanguages[lang] {
		return lang
	}
	return "en"
}

// Wikipedia builds the encyclopedia capability backed by the MediaWiki API.
func Wikipedia(client *Client) flowagent.Capability {
	return flowagent.Capability{
		Name:        "wikipedia",
		Description: "Wikipedia article search, summaries and content",
		Operations: []flowagent.Operation{
			{
				Name:        "search_wikipedia",
				Description: "Search Wikipedia articles by keyword",
				Params: []flowagent.Param{
					{Name: "query"},
					{Name: "language", Optional: true},
					{Name: "limit", Optional: true},
				},
				Example: `search_wikipedia("quantum computing")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					query, err := stringArg(args, 0, "query")
					if err != nil {
						return nil, err
					}
					lang := wikiLang(optionalStringArg(args, 1, "en"))
					limit := optionalIntArg(args, 2, 5)
					return searchWikipedia(ctx, client, query, lang, limit)
				},
			},
			{
				Name:        "get_article_summary",
				Description: "Get the lead summary of a Wikipedia article",
				Params: []flowagent.Param{
					{Name: "title"},
					{Name: "language", Optional: true},
				},
				Example: `get_article_summary("Alan Turing")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					title, err := stringArg(args, 0, "title")
					if err != nil {
						return nil, err
					}
					lang := wikiLang(optionalStringArg(args, 1, "en"))
					return getArticleSummary(ctx, client, title, lang)
				},
			},
			{
				Name:        "get_article_content",
				Description: "Get the plain-text content of a Wikipedia article",
				Params: []flowagent.Param{
					{Name: "title"},
					{Name: "language", Optional: true},
				},
				Example: `get_article_content("Go (programming language)")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					title, err := stringArg(args, 0, "title")
					if err != nil {
						return nil, err
					}
					lang := wikiLang(optionalStringArg(args, 1, "en"))
					return getArticleContent(ctx, client, title, lang)
				},
			},
		},
	}
}

func searchWikipedia(ctx context.Context, client *Client, query, lang string, limit int) (interface{}, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	endpoint := fmt.Sprintf(
		"https://%s.wikipedia.org/w/api.php?action=query&list=search&format=json&srlimit=%d&srsearch=%s",
		lang, limit, url.QueryEscape(query))

	var payload struct {
		Query struct {
			Search []struct {
				Title   string `json:"title"`
				Snippet string `json:"snippet"`
				PageID  int    `json:"pageid"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := client.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, len(payload.Query.Search))
	for i, hit := range payload.Query.Search {
		results[i] = map[string]interface{}{
			"title":   hit.Title,
			"snippet": stripTags(hit.Snippet),
			"url":     fmt.Sprintf("https://%s.wikipedia.org/wiki/%s", lang, url.PathEscape(strings.ReplaceAll(hit.Title, " ", "_"))),
		}
	}
	return map[string]interface{}{
		"query":   query,
		"results": results,
	}, nil
}

func getArticleSummary(ctx context.Context, client *Client, title, lang string) (interface{}, error) {
	endpoint := fmt.Sprintf("https://%s.wikipedia.org/api/rest_v1/page/summary/%s",
		lang, url.PathEscape(strings.ReplaceAll(title, " ", "_")))

	var payload struct {
		Title   string `json:"title"`
		Extract string `json:"extract"`
		Content struct {
			Desktop struct {
				Page string `json:"page"`
			} `json:"desktop"`
		} `json:"content_urls"`
	}
	if err := client.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	if payload.Extract == "" {
		return nil, flowagent.NewExecutionError("capability", "wikipedia", "get_article_summary",
			fmt.Errorf("no article found for '%s'", title))
	}
	return map[string]interface{}{
		"title":   payload.Title,
		"summary": payload.Extract,
		"url":     payload.Content.Desktop.Page,
	}, nil
}

func getArticleContent(ctx context.Context, client *Client, title, lang string) (interface{}, error) {
	endpoint := fmt.Sprintf(
		"https://%s.wikipedia.org/w/api.php?action=query&prop=extracts&explaintext=1&format=json&redirects=1&titles=%s",
		lang, url.QueryEscape(title))

	var payload struct {
		Query struct {
			Pages map[string]struct {
				Title   string `json:"title"`
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := client.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	for _, page := range payload.Query.Pages {
		if page.Extract != "" {
			return map[string]interface{}{
				"title":   page.Title,
				"content": page.Extract,
			}, nil
		}
	}
	return nil, flowagent.NewExecutionError("capability", "wikipedia", "get_article_content",
		fmt.Errorf("no article found for '%s'", title))
}

// stripTags removes the highlight markup MediaWiki embeds in snippets.
func stripTags(s string) string {
	s = strings.ReplaceAll(s, `<span class="searchmatch">`, "")
	s = strings.ReplaceAll(s, "</span>", "")
	return s
}
