package capability

import (
	"context"
	"fmt"
	"net/url"

	flowagent "github.com/frostholm/flowagent"
)

// weatherCodes maps open-meteo WMO weather codes to descriptions.
var weatherCodes = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "moderate drizzle",
	55: "dense drizzle",
	61: "slight rain",
	63: "moderate rain",
	65: "heavy rain",
	71: "slight snow",
	73: "moderate snow",
	75: "heavy snow",
	80: "slight rain showers",
	81: "moderate rain showers",
	82: "violent rain showers",
	85: "snow showers",
	95: "thunderstorm",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

type geocodeResult struct {
	Name      string
	Country   string
	Latitude  float64
	Longitude float64
	Timezone  string
}

// geocode resolves a place name to coordinates via the open-meteo geocoding
// API.
func (c *Client) geocode(ctx context.Context, location string) (geocodeResult, error) {
	var payload struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Timezone  string  `json:"timezone"`
		} `json:"results"`
	}
	endpoint := "https://geocoding-api.open-meteo.com/v1/search?count=1&name=" + url.QueryEscape(location)
	if err := c.GetJSON(ctx, endpoint, &payload); err != nil {
		return geocodeResult{}, err
	}
	if len(payload.Results) == 0 {
		return geocodeResult{}, flowagent.NewExecutionError("capability", "weather", "geocode",
			fmt.Errorf("location not found: %s", location))
	}
	r := payload.Results[0]
	return geocodeResult{
		Name:      r.Name,
		Country:   r.Country,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Timezone:  r.Timezone,
	}, nil
}

// Weather builds the weather capability backed by the open-meteo forecast
// API.
func Weather(client *Client) flowagent.Capability {
	return flowagent.Capability{
		Name:        "weather",
		Description: "Current weather conditions for a location",
		Operations: []flowagent.Operation{
			{
				Name:        "get_weather",
				Description: "Get current weather for a location",
				Params:      []flowagent.Param{{Name: "location"}},
				Example:     `get_weather("London")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					location, err := stringArg(args, 0, "location")
					if err != nil {
						return nil, err
					}
					return getWeather(ctx, client, location)
				},
			},
		},
	}
}

func getWeather(ctx context.Context, client *Client, location string) (interface{}, error) {
	place, err := client.geocode(ctx, location)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Current struct {
			Temperature   float64 `json:"temperature_2m"`
			FeelsLike     float64 `json:"apparent_temperature"`
			Humidity      float64 `json:"relative_humidity_2m"`
			Precipitation float64 `json:"precipitation"`
			Rain          float64 `json:"rain"`
			Snowfall      float64 `json:"snowfall"`
			WindSpeed     float64 `json:"wind_speed_10m"`
			WeatherCode   int     `json:"weather_code"`
		} `json:"current"`
	}
	endpoint := fmt.Sprintf(
		"https://api.open-meteo.com/v1/forecast?latitude=%f&longitude=%f&current=temperature_2m,apparent_temperature,relative_humidity_2m,precipitation,rain,snowfall,wind_speed_10m,weather_code",
		place.Latitude, place.Longitude)
	if err := client.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	conditions, ok := weatherCodes[payload.Current.WeatherCode]
	if !ok {
		conditions = "unknown"
	}

	return map[string]interface{}{
		"location": map[string]interface{}{
			"city":      place.Name,
			"country":   place.Country,
			"latitude":  place.Latitude,
			"longitude": place.Longitude,
		},
		"temperature": map[string]interface{}{
			"current":    payload.Current.Temperature,
			"feels_like": payload.Current.FeelsLike,
			"unit":       "celsius",
		},
		"humidity":   payload.Current.Humidity,
		"wind_speed": payload.Current.WindSpeed,
		"precipitation": map[string]interface{}{
			"total": payload.Current.Precipitation,
			"rain":  payload.Current.Rain,
			"snow":  payload.Current.Snowfall,
		},
		"conditions": conditions,
	}, nil
}
