package capability

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	flowagent "github.com/frostholm/flowagent"
)

const earthRadiusKm = 6371.0

// nominatimPlace is the subset of a Nominatim search result the module uses.
type nominatimPlace struct {
	DisplayName string  `json:"display_name"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Type        string  `json:"type"`
	Class       string  `json:"class"`
	Importance  float64 `json:"importance"`
}

// categoryTags maps friendly categories onto OSM amenity values for the
// Overpass query.
var categoryTags = map[string]string{
	"restaurant":  "restaurant",
	"restaurants": "restaurant",
	"cafe":        "cafe",
	"cafes":       "cafe",
	"coffee":      "cafe",
	"pharmacy":    "pharmacy",
	"hospital":    "hospital",
	"bank":        "bank",
	"atm":         "atm",
	"hotel":       "hotel",
	"school":      "school",
	"museum":      "museum",
	"park":        "park",
}

// Geolocation builds the geolocation capability backed by Nominatim and
// Overpass.
func Geolocation(client *Client) flowagent.Capability {
	return flowagent.Capability{
		Name:        "geolocation",
		Description: "Location lookup, distance calculation and nearby place search",
		Operations: []flowagent.Operation{
			{
				Name:        "get_location_info",
				Description: "Look up coordinates and details for a place name",
				Params:      []flowagent.Param{{Name: "location"}},
				Example:     `get_location_info("Barcelona")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					location, err := stringArg(args, 0, "location")
					if err != nil {
						return nil, err
					}
					place, err := nominatimSearch(ctx, client, location)
					if err != nil {
						return nil, err
					}
					lat, lon := placeCoordinates(place)
					return map[string]interface{}{
						"query":        location,
						"display_name": place.DisplayName,
						"latitude":     lat,
						"longitude":    lon,
						"type":         place.Type,
						"class":        place.Class,
					}, nil
				},
			},
			{
				Name:        "calculate_distance",
				Description: "Calculate the great-circle distance between two places",
				Params: []flowagent.Param{
					{Name: "location1"},
					{Name: "location2"},
				},
				Example: `calculate_distance("Paris", "Berlin")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					first, err := stringArg(args, 0, "location1")
					if err != nil {
						return nil, err
					}
					second, err := stringArg(args, 1, "location2")
					if err != nil {
						return nil, err
					}
					return calculateDistance(ctx, client, first, second)
				},
			},
			{
				Name:        "find_nearby_places",
				Description: "Find places of a category near a location",
				Params: []flowagent.Param{
					{Name: "location"},
					{Name: "category"},
					{Name: "radius_km", Optional: true},
				},
				Example: `find_nearby_places("Madrid", "cafe", 2)`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					location, err := stringArg(args, 0, "location")
					if err != nil {
						return nil, err
					}
					category, err := stringArg(args, 1, "category")
					if err != nil {
						return nil, err
					}
					radius := 2.0
					if len(args) > 2 && args[2] != nil {
						if r, err := floatArg(args, 2, "radius_km"); err == nil {
							radius = r
						}
					}
					return findNearbyPlaces(ctx, client, location, category, radius)
				},
			},
		},
	}
}

func nominatimSearch(ctx context.Context, client *Client, location string) (*nominatimPlace, error) {
	endpoint := "https://nominatim.openstreetmap.org/search?format=json&limit=1&q=" + url.QueryEscape(location)
	var places []nominatimPlace
	if err := client.GetJSON(ctx, endpoint, &places); err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, flowagent.NewExecutionError("capability", "geolocation", "get_location_info",
			fmt.Errorf("location not found: %s", location))
	}
	return &places[0], nil
}

func placeCoordinates(place *nominatimPlace) (float64, float64) {
	lat, _ := strconv.ParseFloat(place.Lat, 64)
	lon, _ := strconv.ParseFloat(place.Lon, 64)
	return lat, lon
}

// haversine computes the great-circle distance between two points in km.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func calculateDistance(ctx context.Context, client *Client, first, second string) (interface{}, error) {
	firstPlace, err := nominatimSearch(ctx, client, first)
	if err != nil {
		return nil, err
	}
	secondPlace, err := nominatimSearch(ctx, client, second)
	if err != nil {
		return nil, err
	}

	lat1, lon1 := placeCoordinates(firstPlace)
	lat2, lon2 := placeCoordinates(secondPlace)
	km := haversine(lat1, lon1, lat2, lon2)

	return map[string]interface{}{
		"location1":      firstPlace.DisplayName,
		"location2":      secondPlace.DisplayName,
		"distance_km":    math.Round(km*10) / 10,
		"distance_miles": math.Round(km*0.621371*10) / 10,
	}, nil
}

func findNearbyPlaces(ctx context.Context, client *Client, location, category string, radiusKm float64) (interface{}, error) {
	amenity, ok := categoryTags[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		amenity = strings.ToLower(strings.TrimSpace(category))
	}

	place, err := nominatimSearch(ctx, client, location)
	if err != nil {
		return nil, err
	}
	lat, lon := placeCoordinates(place)

	query := fmt.Sprintf(
		`[out:json][timeout:10];node["amenity"="%s"](around:%d,%f,%f);out body 10;`,
		amenity, int(radiusKm*1000), lat, lon)
	endpoint := "https://overpass-api.de/api/interpreter?data=" + url.QueryEscape(query)

	var payload struct {
		Elements []struct {
			Lat  float64           `json:"lat"`
			Lon  float64           `json:"lon"`
			Tags map[string]string `json:"tags"`
		} `json:"elements"`
	}
	if err := client.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0, len(payload.Elements))
	for _, el := range payload.Elements {
		name := el.Tags["name"]
		if name == "" {
			continue
		}
		results = append(results, map[string]interface{}{
			"name":        name,
			"latitude":    el.Lat,
			"longitude":   el.Lon,
			"distance_km": math.Round(haversine(lat, lon, el.Lat, el.Lon)*100) / 100,
		})
	}

	return map[string]interface{}{
		"location":  place.DisplayName,
		"category":  amenity,
		"radius_km": radiusKm,
		"places":    results,
	}, nil
}
