// Package capability implements the built-in capability modules: weather,
// currency, air quality, astronomy, time, news, stocks, geolocation,
// wikipedia, web search and web page parsing. All outbound traffic goes
// through a shared rate-limited HTTP client.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	flowagent "github.com/frostholm/flowagent"
)

const maxResponseBytes = 4 << 20

// Client is the shared outbound HTTP client for capability modules. Requests
// across all modules share one rate limiter so burst-heavy chains stay
// polite to the public APIs they call.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// WithRateLimit sets the sustained request rate in requests per second.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request. Nominatim
// in particular rejects requests without an identifying agent.
func WithUserAgent(agent string) ClientOption {
	return func(c *Client) {
		c.userAgent = agent
	}
}

// NewClient creates a Client with a 10 second timeout and a 2 req/s limit.
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(2), 3),
		userAgent: "flowagent/1.0",
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Get fetches rawURL and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, flowagent.NewCancelledError("capability", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, flowagent.NewInternalError("capability", "building request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, flowagent.NewExecutionError("capability", "http", "get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, flowagent.NewExecutionError("capability", "http", "get",
			fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, flowagent.NewExecutionError("capability", "http", "get", err)
	}
	return body, nil
}

// GetJSON fetches rawURL and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out interface{}) error {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return flowagent.NewExecutionError("capability", "http", "decode",
			fmt.Errorf("decoding response from %s: %w", rawURL, err))
	}
	return nil
}

// GetDocument fetches rawURL and parses the response body as HTML.
func (c *Client) GetDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, flowagent.NewExecutionError("capability", "http", "parse", err)
	}
	return doc, nil
}

// stringArg coerces a positional argument to a trimmed string, failing on
// nil or empty values.
func stringArg(args []interface{}, index int, name string) (string, error) {
	if index >= len(args) || args[index] == nil {
		return "", flowagent.NewValidationError("capability",
			fmt.Sprintf("missing required argument '%s'", name), nil)
	}
	s := strings.TrimSpace(fmt.Sprintf("%v", args[index]))
	if s == "" {
		return "", flowagent.NewValidationError("capability",
			fmt.Sprintf("argument '%s' is empty", name), nil)
	}
	return s, nil
}

// optionalStringArg returns the argument as a string, or fallback when the
// slot is absent, nil or blank.
func optionalStringArg(args []interface{}, index int, fallback string) string {
	if index >= len(args) || args[index] == nil {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprintf("%v", args[index]))
	if s == "" {
		return fallback
	}
	return s
}

// floatArg coerces a positional argument to a float64.
func floatArg(args []interface{}, index int, name string) (float64, error) {
	if index >= len(args) || args[index] == nil {
		return 0, flowagent.NewValidationError("capability",
			fmt.Sprintf("missing required argument '%s'", name), nil)
	}
	switch v := args[index].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err == nil {
			return f, nil
		}
	}
	return 0, flowagent.NewValidationError("capability",
		fmt.Sprintf("argument '%s' is not a number", name), nil)
}

// optionalIntArg returns the argument as an int, or fallback when absent or
// unparseable.
func optionalIntArg(args []interface{}, index int, fallback int) int {
	if index >= len(args) || args[index] == nil {
		return fallback
	}
	switch v := args[index].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
