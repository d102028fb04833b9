package capability

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	flowagent "github.com/frostholm/flowagent"
)

// synodicMonth is the mean length of a lunation in days.
const synodicMonth = 29.530588853

// referenceNewMoon is a known new moon (2000-01-06 18:14 UTC) used as the
// epoch for phase computation.
var referenceNewMoon = time.Date(2000, 1, 6, 18, 14, 0, 0, time.UTC)

var moonPhaseNames = []string{
	"new moon",
	"waxing crescent",
	"first quarter",
	"waxing gibbous",
	"full moon",
	"waning gibbous",
	"last quarter",
	"waning crescent",
}

// annualShower is a recurring meteor shower peak.
type annualShower struct {
	name  string
	month time.Month
	day   int
}

var meteorShowers = []annualShower{
	{"Quadrantids", time.January, 3},
	{"Lyrids", time.April, 22},
	{"Eta Aquariids", time.May, 6},
	{"Perseids", time.August, 12},
	{"Orionids", time.October, 21},
	{"Leonids", time.November, 17},
	{"Geminids", time.December, 13},
}

// seasonalEvent is an equinox or solstice, using the usual calendar dates.
type seasonalEvent struct {
	name  string
	month time.Month
	day   int
}

var seasonalEvents = []seasonalEvent{
	{"March equinox", time.March, 20},
	{"June solstice", time.June, 21},
	{"September equinox", time.September, 22},
	{"December solstice", time.December, 21},
}

// planetFacts holds static reference data keyed by lowercase planet name.
var planetFacts = map[string]map[string]interface{}{
	"mercury": {"name": "Mercury", "type": "terrestrial", "distance_from_sun_au": 0.39, "orbital_period_days": 88.0, "moons": 0, "visible_to_naked_eye": true},
	"venus":   {"name": "Venus", "type": "terrestrial", "distance_from_sun_au": 0.72, "orbital_period_days": 224.7, "moons": 0, "visible_to_naked_eye": true},
	"mars":    {"name": "Mars", "type": "terrestrial", "distance_from_sun_au": 1.52, "orbital_period_days": 687.0, "moons": 2, "visible_to_naked_eye": true},
	"jupiter": {"name": "Jupiter", "type": "gas giant", "distance_from_sun_au": 5.2, "orbital_period_days": 4331.0, "moons": 95, "visible_to_naked_eye": true},
	"saturn":  {"name": "Saturn", "type": "gas giant", "distance_from_sun_au": 9.54, "orbital_period_days": 10747.0, "moons": 146, "visible_to_naked_eye": true},
	"uranus":  {"name": "Uranus", "type": "ice giant", "distance_from_sun_au": 19.2, "orbital_period_days": 30589.0, "moons": 28, "visible_to_naked_eye": false},
	"neptune": {"name": "Neptune", "type": "ice giant", "distance_from_sun_au": 30.06, "orbital_period_days": 59800.0, "moons": 16, "visible_to_naked_eye": false},
}

// northernConstellations lists prominent evening constellations by season.
var northernConstellations = map[string][]string{
	"winter": {"Orion", "Taurus", "Gemini", "Canis Major", "Auriga"},
	"spring": {"Leo", "Virgo", "Bootes", "Ursa Major", "Cancer"},
	"summer": {"Cygnus", "Lyra", "Aquila", "Scorpius", "Sagittarius"},
	"autumn": {"Pegasus", "Andromeda", "Cassiopeia", "Perseus", "Aries"},
}

// Astronomy builds the celestial events capability. All data is computed
// locally; nothing here needs the network except location lookup.
func Astronomy(client *Client) flowagent.Capability {
	return flowagent.Capability{
		Name:        "astronomy",
		Description: "Celestial events, visible constellations and planet information",
		Operations: []flowagent.Operation{
			{
				Name:        "get_celestial_events",
				Description: "Get moon phase, meteor showers and seasonal events for a date",
				Params: []flowagent.Param{
					{Name: "date", Optional: true},
					{Name: "location", Optional: true},
				},
				Example: `get_celestial_events("2025-08-12", "Barcelona")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					date, err := dateArg(args, 0)
					if err != nil {
						return nil, err
					}
					location := optionalStringArg(args, 1, "")
					return celestialEvents(ctx, client, date, location)
				},
			},
			{
				Name:        "get_visible_constellations",
				Description: "Get constellations visible in the evening sky for a location and date",
				Params: []flowagent.Param{
					{Name: "location", Optional: true},
					{Name: "date", Optional: true},
				},
				Example: `get_visible_constellations("Tokyo")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					location := optionalStringArg(args, 0, "")
					date, err := dateArg(args, 1)
					if err != nil {
						return nil, err
					}
					return visibleConstellations(ctx, client, location, date)
				},
			},
			{
				Name:        "get_planet_info",
				Description: "Get reference information about a planet",
				Params:      []flowagent.Param{{Name: "planet"}},
				Example:     `get_planet_info("Mars")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					planet, err := stringArg(args, 0, "planet")
					if err != nil {
						return nil, err
					}
					facts, ok := planetFacts[strings.ToLower(planet)]
					if !ok {
						return nil, flowagent.NewExecutionError("capability", "astronomy", "get_planet_info",
							fmt.Errorf("unknown planet: %s", planet))
					}
					return facts, nil
				},
			},
		},
	}
}

// dateArg parses an optional YYYY-MM-DD argument, defaulting to today.
func dateArg(args []interface{}, index int) (time.Time, error) {
	raw := optionalStringArg(args, index, "")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, flowagent.NewValidationError("capability",
			fmt.Sprintf("invalid date '%s', expected YYYY-MM-DD", raw), err)
	}
	return parsed, nil
}

// moonPhase returns the phase name and illumination fraction for a date.
func moonPhase(date time.Time) (string, float64) {
	days := date.Sub(referenceNewMoon).Hours() / 24
	age := math.Mod(days, synodicMonth)
	if age < 0 {
		age += synodicMonth
	}
	index := int(math.Round(age/(synodicMonth/8))) % 8
	illumination := (1 - math.Cos(2*math.Pi*age/synodicMonth)) / 2
	return moonPhaseNames[index], math.Round(illumination*1000) / 1000
}

func celestialEvents(ctx context.Context, client *Client, date time.Time, location string) (interface{}, error) {
	phase, illumination := moonPhase(date)

	events := make([]map[string]interface{}, 0, 4)
	for _, shower := range meteorShowers {
		peak := time.Date(date.Year(), shower.month, shower.day, 0, 0, 0, 0, time.UTC)
		if peak.Before(date) {
			peak = peak.AddDate(1, 0, 0)
		}
		if peak.Sub(date).Hours() <= 45*24 {
			events = append(events, map[string]interface{}{
				"type": "meteor_shower",
				"name": shower.name,
				"date": peak.Format("2006-01-02"),
			})
		}
	}
	for _, se := range seasonalEvents {
		next := time.Date(date.Year(), se.month, se.day, 0, 0, 0, 0, time.UTC)
		if next.Before(date) {
			next = next.AddDate(1, 0, 0)
		}
		if next.Sub(date).Hours() <= 45*24 {
			events = append(events, map[string]interface{}{
				"type": "seasonal",
				"name": se.name,
				"date": next.Format("2006-01-02"),
			})
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i]["date"].(string) < events[j]["date"].(string)
	})

	result := map[string]interface{}{
		"date": date.Format("2006-01-02"),
		"moon": map[string]interface{}{
			"phase":        phase,
			"illumination": illumination,
		},
		"upcoming_events": events,
	}

	if location != "" {
		place, err := client.geocode(ctx, location)
		if err == nil {
			result["location"] = map[string]interface{}{
				"city":      place.Name,
				"country":   place.Country,
				"latitude":  place.Latitude,
				"longitude": place.Longitude,
			}
		}
	}
	return result, nil
}

func visibleConstellations(ctx context.Context, client *Client, location string, date time.Time) (interface{}, error) {
	latitude := 45.0
	resolvedLocation := location
	if location != "" {
		if place, err := client.geocode(ctx, location); err == nil {
			latitude = place.Latitude
			resolvedLocation = place.Name
		}
	}

	season := seasonFor(date.Month(), latitude >= 0)
	constellations := northernConstellations[season]
	if latitude < 0 {
		// The southern evening sky shows the opposite seasonal set plus
		// circumpolar landmarks.
		constellations = append([]string{"Crux", "Centaurus"}, constellations...)
	}

	return map[string]interface{}{
		"location":       resolvedLocation,
		"date":           date.Format("2006-01-02"),
		"season":         season,
		"hemisphere":     hemisphereName(latitude),
		"constellations": constellations,
	}, nil
}

func seasonFor(month time.Month, northern bool) string {
	var season string
	switch month {
	case time.December, time.January, time.February:
		season = "winter"
	case time.March, time.April, time.May:
		season = "spring"
	case time.June, time.July, time.August:
		season = "summer"
	default:
		season = "autumn"
	}
	if !northern {
		opposite := map[string]string{"winter": "summer", "summer": "winter", "spring": "autumn", "autumn": "spring"}
		season = opposite[season]
	}
	return season
}

func hemisphereName(latitude float64) string {
	if latitude >= 0 {
		return "northern"
	}
	return "southern"
}
