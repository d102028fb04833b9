package capability

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	flowagent "github.com/frostholm/flowagent"
)

const summaryRuneLimit = 600

// WebParser builds the web page parsing capability. Article extraction uses
// the readability algorithm; link extraction walks the raw document.
func WebParser(client *Client) flowagent.Capability {
	return flowagent.Capability{
		Name:        "web_parser",
		Description: "Extract readable article text and summaries from web pages",
		Operations: []flowagent.Operation{
			{
				Name:        "parse_webpage",
				Description: "Extract the readable article content from a URL",
				Params:      []flowagent.Param{{Name: "url"}},
				Example:     `parse_webpage("https://example.com/article")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					pageURL, err := stringArg(args, 0, "url")
					if err != nil {
						return nil, err
					}
					return parseWebpage(ctx, client, pageURL)
				},
			},
			{
				Name:        "get_page_summary",
				Description: "Extract a short summary of a web page",
				Params:      []flowagent.Param{{Name: "url"}},
				Example:     `get_page_summary("https://example.com/article")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					pageURL, err := stringArg(args, 0, "url")
					if err != nil {
						return nil, err
					}
					return getPageSummary(ctx, client, pageURL)
				},
			},
		},
	}
}

func extractArticle(ctx context.Context, client *Client, pageURL string) (readability.Article, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return readability.Article{}, flowagent.NewValidationError("capability",
			fmt.Sprintf("invalid URL: %s", pageURL), err)
	}

	body, err := client.Get(ctx, pageURL)
	if err != nil {
		return readability.Article{}, err
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return readability.Article{}, flowagent.NewExecutionError("capability", "web_parser", "parse_webpage", err)
	}
	return article, nil
}

func parseWebpage(ctx context.Context, client *Client, pageURL string) (interface{}, error) {
	article, err := extractArticle(ctx, client, pageURL)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"url":      pageURL,
		"title":    article.Title,
		"byline":   article.Byline,
		"site":     article.SiteName,
		"content":  strings.TrimSpace(article.TextContent),
		"excerpt":  article.Excerpt,
		"language": article.Language,
	}, nil
}

func getPageSummary(ctx context.Context, client *Client, pageURL string) (interface{}, error) {
	article, err := extractArticle(ctx, client, pageURL)
	if err != nil {
		return nil, err
	}

	summary := strings.TrimSpace(article.Excerpt)
	if summary == "" {
		summary = strings.TrimSpace(article.TextContent)
	}
	runes := []rune(summary)
	if len(runes) > summaryRuneLimit {
		summary = string(runes[:summaryRuneLimit]) + "..."
	}

	return map[string]interface{}{
		"url":     pageURL,
		"title":   article.Title,
		"summary": summary,
	}, nil
}
