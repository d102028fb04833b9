package capability

import (
	"context"
	"fmt"
	"math"
	"strings"

	flowagent "github.com/frostholm/flowagent"
)

// currencyNames maps common currency words and symbols to ISO 4217 codes.
// Classification output usually carries codes already, but queries phrased
// in natural language slip through occasionally.
var currencyNames = map[string]string{
	"dollar":  "USD",
	"dollars": "USD",
	"usd":     "USD",
	"$":       "USD",
	"euro":    "EUR",
	"euros":   "EUR",
	"eur":     "EUR",
	"€":       "EUR",
	"pound":   "GBP",
	"pounds":  "GBP",
	"gbp":     "GBP",
	"£":       "GBP",
	"yen":     "JPY",
	"jpy":     "JPY",
	"¥":       "JPY",
	"ruble":   "RUB",
	"rubles":  "RUB",
	"rouble":  "RUB",
	"rub":     "RUB",
	"yuan":    "CNY",
	"cny":     "CNY",
	"won":     "KRW",
	"krw":     "KRW",
	"franc":   "CHF",
	"francs":  "CHF",
	"chf":     "CHF",
	"rupee":   "INR",
	"rupees":  "INR",
	"inr":     "INR",
}

// standardizeCurrency normalizes a currency word or symbol to an ISO code.
func standardizeCurrency(currency string) string {
	trimmed := strings.TrimSpace(currency)
	if code, ok := currencyNames[strings.ToLower(trimmed)]; ok {
		return code
	}
	return strings.ToUpper(trimmed)
}

// Currency builds the currency conversion capability backed by the
// open.er-api.com exchange rate API.
func Currency(client *Client) flowagent.Capability {
	return flowagent.Capability{
		Name:        "currency",
		Description: "Currency conversion and exchange rates",
		Operations: []flowagent.Operation{
			{
				Name:        "convert_currency",
				Description: "Convert an amount between two currencies",
				Params: []flowagent.Param{
					{Name: "amount"},
					{Name: "from_currency"},
					{Name: "to_currency"},
				},
				Example: `convert_currency(100, "USD", "EUR")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					amount, err := floatArg(args, 0, "amount")
					if err != nil {
						return nil, err
					}
					from, err := stringArg(args, 1, "from_currency")
					if err != nil {
						return nil, err
					}
					to, err := stringArg(args, 2, "to_currency")
					if err != nil {
						return nil, err
					}
					return convertCurrency(ctx, client, amount, from, to)
				},
			},
			{
				Name:        "get_exchange_rates",
				Description: "Get all exchange rates for a base currency",
				Params:      []flowagent.Param{{Name: "base_currency"}},
				Example:     `get_exchange_rates("USD")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					base, err := stringArg(args, 0, "base_currency")
					if err != nil {
						return nil, err
					}
					rates, err := fetchRates(ctx, client, standardizeCurrency(base))
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{
						"base":  standardizeCurrency(base),
						"rates": rates,
					}, nil
				},
			},
		},
	}
}

func convertCurrency(ctx context.Context, client *Client, amount float64, from, to string) (interface{}, error) {
	fromCode := standardizeCurrency(from)
	toCode := standardizeCurrency(to)

	rates, err := fetchRates(ctx, client, fromCode)
	if err != nil {
		return nil, err
	}
	rate, ok := rates[toCode]
	if !ok {
		return nil, flowagent.NewExecutionError("capability", "currency", "convert_currency",
			fmt.Errorf("no rate for %s -> %s", fromCode, toCode))
	}

	converted := math.Round(amount*rate*100) / 100
	return map[string]interface{}{
		"amount":           amount,
		"from_currency":    fromCode,
		"to_currency":      toCode,
		"rate":             rate,
		"converted_amount": converted,
	}, nil
}

func fetchRates(ctx context.Context, client *Client, base string) (map[string]float64, error) {
	var payload struct {
		Result string             `json:"result"`
		Rates  map[string]float64 `json:"rates"`
	}
	if err := client.GetJSON(ctx, "https://open.er-api.com/v6/latest/"+base, &payload); err != nil {
		return nil, err
	}
	if payload.Result != "success" || len(payload.Rates) == 0 {
		return nil, flowagent.NewExecutionError("capability", "currency", "get_exchange_rates",
			fmt.Errorf("no rates returned for base %s", base))
	}
	return payload.Rates, nil
}
