package capability

import (
	"context"
	"encoding/xml"
	"strings"

	flowagent "github.com/frostholm/flowagent"
)

// rssFeed is the subset of RSS 2.0 the news module reads.
type rssFeed struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// newsFeeds maps headline categories to feed URLs. The general category
// aggregates both sources.
var newsFeeds = map[string][]string{
	"general": {
		"https://feeds.bbci.co.uk/news/rss.xml",
		"http://rss.cnn.com/rss/edition.rss",
	},
	"world":      {"https://feeds.bbci.co.uk/news/world/rss.xml"},
	"business":   {"https://feeds.bbci.co.uk/news/business/rss.xml"},
	"technology": {"https://feeds.bbci.co.uk/news/technology/rss.xml"},
	"science":    {"https://feeds.bbci.co.uk/news/science_and_environment/rss.xml"},
	"health":     {"https://feeds.bbci.co.uk/news/health/rss.xml"},
}

// News builds the news capability backed by public RSS feeds. RSS is plain
// XML, so this is the one network module that decodes with encoding/xml
// instead of JSON.
func News(client *Client) flowagent.Capability {
	return flowagent.Capability{
		Name:        "news",
		Description: "News headlines and keyword search over current stories",
		Operations: []flowagent.Operation{
			{
				Name:        "search_news",
				Description: "Search current news stories by keyword",
				Params: []flowagent.Param{
					{Name: "query"},
					{Name: "max_results", Optional: true},
				},
				Example: `search_news("climate", 3)`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					query, err := stringArg(args, 0, "query")
					if err != nil {
						return nil, err
					}
					maxResults := optionalIntArg(args, 1, 5)
					return searchNews(ctx, client, query, maxResults)
				},
			},
			{
				Name:        "get_headlines",
				Description: "Get top headlines for a category",
				Params: []flowagent.Param{
					{Name: "category", Optional: true},
					{Name: "max_results", Optional: true},
				},
				Example: `get_headlines("technology", 5)`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					category := strings.ToLower(optionalStringArg(args, 0, "general"))
					maxResults := optionalIntArg(args, 1, 5)
					return getHeadlines(ctx, client, category, maxResults)
				},
			},
		},
	}
}

func fetchFeedItems(ctx context.Context, client *Client, urls []string) ([]rssItem, error) {
	var items []rssItem
	var lastErr error
	for _, feedURL := range urls {
		body, err := client.Get(ctx, feedURL)
		if err != nil {
			lastErr = err
			continue
		}
		var feed rssFeed
		if err := xml.Unmarshal(body, &feed); err != nil {
			lastErr = err
			continue
		}
		items = append(items, feed.Channel.Items...)
	}
	if len(items) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return items, nil
}

func itemsToResult(items []rssItem, max int) []map[string]interface{} {
	if max <= 0 {
		max = 5
	}
	if len(items) > max {
		items = items[:max]
	}
	out := make([]map[string]interface{}, len(items))
	for i, item := range items {
		out[i] = map[string]interface{}{
			"title":       strings.TrimSpace(item.Title),
			"link":        strings.TrimSpace(item.Link),
			"description": strings.TrimSpace(item.Description),
			"published":   item.PubDate,
		}
	}
	return out
}

func searchNews(ctx context.Context, client *Client, query string, maxResults int) (interface{}, error) {
	items, err := fetchFeedItems(ctx, client, newsFeeds["general"])
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var matched []rssItem
	for _, item := range items {
		haystack := strings.ToLower(item.Title + " " + item.Description)
		if strings.Contains(haystack, needle) {
			matched = append(matched, item)
		}
	}

	return map[string]interface{}{
		"query":    query,
		"articles": itemsToResult(matched, maxResults),
		"count":    len(matched),
	}, nil
}

func getHeadlines(ctx context.Context, client *Client, category string, maxResults int) (interface{}, error) {
	urls, ok := newsFeeds[category]
	if !ok {
		urls = newsFeeds["general"]
		category = "general"
	}
	items, err := fetchFeedItems(ctx, client, urls)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"category": category,
		"articles": itemsToResult(items, maxResults),
	}, nil
}
