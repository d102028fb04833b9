package capability

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	flowagent "github.com/frostholm/flowagent"
)

// marketIndices are the benchmarks summarized by get_market_summary.
var marketIndices = []struct {
	symbol string
	name   string
}{
	{"^GSPC", "S&P 500"},
	{"^DJI", "Dow Jones Industrial Average"},
	{"^IXIC", "NASDAQ Composite"},
	{"^FTSE", "FTSE 100"},
	{"^N225", "Nikkei 225"},
}

// chartResponse is the subset of the Yahoo Finance chart API the stock
// module reads.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  interface{}   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		Currency           string  `json:"currency"`
		ExchangeName       string  `json:"exchangeName"`
		LongName           string  `json:"longName"`
		ShortName          string  `json:"shortName"`
		InstrumentType     string  `json:"instrumentType"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		PreviousClose      float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []float64 `json:"close"`
			High  []float64 `json:"high"`
			Low   []float64 `json:"low"`
			Open  []float64 `json:"open"`
		} `json:"quote"`
	} `json:"indicators"`
}

// historyPeriods maps the accepted period strings onto Yahoo range values.
var historyPeriods = map[string]string{
	"1day":    "1d",
	"5days":   "5d",
	"1week":   "5d",
	"1month":  "1mo",
	"3months": "3mo",
	"6months": "6mo",
	"1year":   "1y",
	"5years":  "5y",
}

// Stock builds the stock market capability backed by the public Yahoo
// Finance chart endpoints.
func Stock(client *Client) flowagent.Capability {
	return flowagent.Capability{
		Name:        "stock",
		Description: "Stock quotes, company information and market summaries",
		Operations: []flowagent.Operation{
			{
				Name:        "get_stock_quote",
				Description: "Get the current quote for a ticker symbol",
				Params:      []flowagent.Param{{Name: "symbol"}},
				Example:     `get_stock_quote("AAPL")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					symbol, err := stringArg(args, 0, "symbol")
					if err != nil {
						return nil, err
					}
					return getStockQuote(ctx, client, symbol)
				},
			},
			{
				Name:        "get_company_info",
				Description: "Get basic company information for a ticker symbol",
				Params:      []flowagent.Param{{Name: "symbol"}},
				Example:     `get_company_info("MSFT")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					symbol, err := stringArg(args, 0, "symbol")
					if err != nil {
						return nil, err
					}
					payload, err := fetchChart(ctx, client, symbol, "1d")
					if err != nil {
						return nil, err
					}
					meta := payload.result().Meta
					name := meta.LongName
					if name == "" {
						name = meta.ShortName
					}
					return map[string]interface{}{
						"symbol":   meta.Symbol,
						"name":     name,
						"exchange": meta.ExchangeName,
						"type":     meta.InstrumentType,
						"currency": meta.Currency,
					}, nil
				},
			},
			{
				Name:        "get_historical_data",
				Description: "Get historical closing prices for a ticker symbol",
				Params: []flowagent.Param{
					{Name: "symbol"},
					{Name: "period", Optional: true},
				},
				Example: `get_historical_data("AAPL", "1month")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					symbol, err := stringArg(args, 0, "symbol")
					if err != nil {
						return nil, err
					}
					period := optionalStringArg(args, 1, "1month")
					return getHistoricalData(ctx, client, symbol, period)
				},
			},
			{
				Name:        "get_market_summary",
				Description: "Get a summary of major market indices",
				Params:      nil,
				Example:     `get_market_summary()`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					return getMarketSummary(ctx, client)
				},
			},
		},
	}
}

func fetchChart(ctx context.Context, client *Client, symbol, yahooRange string) (*chartResponse, error) {
	endpoint := fmt.Sprintf(
		"https://query1.finance.yahoo.com/v8/finance/chart/%s?range=%s&interval=1d",
		url.PathEscape(strings.ToUpper(symbol)), yahooRange)

	var payload chartResponse
	if err := client.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	if len(payload.Chart.Result) == 0 {
		return nil, flowagent.NewExecutionError("capability", "stock", "fetch_chart",
			fmt.Errorf("no data for symbol %s", symbol))
	}
	return &payload, nil
}

// result returns the first chart result for convenience.
func (r *chartResponse) result() *chartResult {
	return &r.Chart.Result[0]
}

func getStockQuote(ctx context.Context, client *Client, symbol string) (interface{}, error) {
	payload, err := fetchChart(ctx, client, symbol, "1d")
	if err != nil {
		return nil, err
	}
	meta := payload.result().Meta

	change := meta.RegularMarketPrice - meta.PreviousClose
	changePct := 0.0
	if meta.PreviousClose != 0 {
		changePct = change / meta.PreviousClose * 100
	}

	return map[string]interface{}{
		"symbol":         meta.Symbol,
		"price":          meta.RegularMarketPrice,
		"previous_close": meta.PreviousClose,
		"change":         change,
		"change_percent": changePct,
		"currency":       meta.Currency,
		"exchange":       meta.ExchangeName,
	}, nil
}

func getHistoricalData(ctx context.Context, client *Client, symbol, period string) (interface{}, error) {
	yahooRange, ok := historyPeriods[strings.ToLower(period)]
	if !ok {
		yahooRange = "1mo"
		period = "1month"
	}

	payload, err := fetchChart(ctx, client, symbol, yahooRange)
	if err != nil {
		return nil, err
	}
	result := payload.result()
	if len(result.Indicators.Quote) == 0 {
		return nil, flowagent.NewExecutionError("capability", "stock", "get_historical_data",
			fmt.Errorf("no price series for symbol %s", symbol))
	}

	quote := result.Indicators.Quote[0]
	points := make([]map[string]interface{}, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		points = append(points, map[string]interface{}{
			"date":  time.Unix(ts, 0).UTC().Format("2006-01-02"),
			"close": quote.Close[i],
		})
	}

	return map[string]interface{}{
		"symbol": result.Meta.Symbol,
		"period": period,
		"prices": points,
	}, nil
}

// getMarketSummary fans out one quote request per index and collects the
// results. A single failing index does not fail the summary.
func getMarketSummary(ctx context.Context, client *Client) (interface{}, error) {
	var mu sync.Mutex
	summaries := make(map[string]interface{}, len(marketIndices))

	g, gctx := errgroup.WithContext(ctx)
	for _, index := range marketIndices {
		g.Go(func() error {
			quote, err := getStockQuote(gctx, client, index.symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summaries[index.name] = map[string]interface{}{"error": err.Error()}
				return nil
			}
			summaries[index.name] = quote
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"indices": summaries,
		"as_of":   time.Now().UTC().Format(time.RFC3339),
	}, nil
}
