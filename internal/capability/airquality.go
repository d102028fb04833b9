package capability

import (
	"context"
	"fmt"
	"net/url"

	flowagent "github.com/frostholm/flowagent"
)

// aqiLevel describes a World Air Quality Index band.
func aqiLevel(aqi float64) string {
	switch {
	case aqi <= 50:
		return "good"
	case aqi <= 100:
		return "moderate"
	case aqi <= 150:
		return "unhealthy for sensitive groups"
	case aqi <= 200:
		return "unhealthy"
	case aqi <= 300:
		return "very unhealthy"
	default:
		return "hazardous"
	}
}

// AirQuality builds the air quality capability backed by the WAQI feed API.
// The token defaults to the public demo token, which only serves a few
// cities; production use needs a real token.
func AirQuality(client *Client, token string) flowagent.Capability {
	if token == "" {
		token = "demo"
	}
	return flowagent.Capability{
		Name:        "air_quality",
		Description: "Air quality index and pollutant levels for a location",
		Operations: []flowagent.Operation{
			{
				Name:        "get_air_quality",
				Description: "Get the air quality index for a city",
				Params:      []flowagent.Param{{Name: "location"}},
				Example:     `get_air_quality("Beijing")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					location, err := stringArg(args, 0, "location")
					if err != nil {
						return nil, err
					}
					endpoint := fmt.Sprintf("https://api.waqi.info/feed/%s/?token=%s",
						url.PathEscape(location), url.QueryEscape(token))
					return fetchAirQuality(ctx, client, endpoint, location)
				},
			},
			{
				Name:        "get_air_quality_by_coordinates",
				Description: "Get the air quality index for coordinates",
				Params: []flowagent.Param{
					{Name: "latitude"},
					{Name: "longitude"},
				},
				Example: `get_air_quality_by_coordinates(39.9, 116.4)`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					lat, err := floatArg(args, 0, "latitude")
					if err != nil {
						return nil, err
					}
					lon, err := floatArg(args, 1, "longitude")
					if err != nil {
						return nil, err
					}
					endpoint := fmt.Sprintf("https://api.waqi.info/feed/geo:%f;%f/?token=%s",
						lat, lon, url.QueryEscape(token))
					return fetchAirQuality(ctx, client, endpoint, fmt.Sprintf("%f,%f", lat, lon))
				},
			},
		},
	}
}

func fetchAirQuality(ctx context.Context, client *Client, endpoint, location string) (interface{}, error) {
	var payload struct {
		Status string `json:"status"`
		Data   struct {
			AQI  float64 `json:"aqi"`
			City struct {
				Name string    `json:"name"`
				Geo  []float64 `json:"geo"`
			} `json:"city"`
			IAQI map[string]struct {
				V float64 `json:"v"`
			} `json:"iaqi"`
			Time struct {
				S string `json:"s"`
			} `json:"time"`
		} `json:"data"`
	}
	if err := client.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	if payload.Status != "ok" {
		return nil, flowagent.NewExecutionError("capability", "air_quality", "get_air_quality",
			fmt.Errorf("no air quality data for %s", location))
	}

	pollutants := make(map[string]interface{}, len(payload.Data.IAQI))
	for name, reading := range payload.Data.IAQI {
		pollutants[name] = reading.V
	}

	return map[string]interface{}{
		"location":   payload.Data.City.Name,
		"aqi":        payload.Data.AQI,
		"level":      aqiLevel(payload.Data.AQI),
		"pollutants": pollutants,
		"measured":   payload.Data.Time.S,
	}, nil
}
