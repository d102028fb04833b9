package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	flowagent "github.com/frostholm/flowagent"
)

// cityZones maps common city names to IANA zone identifiers for lookups the
// direct zone database search cannot satisfy.
var cityZones = map[string]string{
	"beijing":        "Asia/Shanghai",
	"san francisco":  "America/Los_Angeles",
	"seattle":        "America/Los_Angeles",
	"boston":         "America/New_York",
	"washington":     "America/New_York",
	"miami":          "America/New_York",
	"dallas":         "America/Chicago",
	"houston":        "America/Chicago",
	"mumbai":         "Asia/Kolkata",
	"delhi":          "Asia/Kolkata",
	"bangalore":      "Asia/Kolkata",
	"osaka":          "Asia/Tokyo",
	"kyoto":          "Asia/Tokyo",
	"barcelona":      "Europe/Madrid",
	"munich":         "Europe/Berlin",
	"hamburg":        "Europe/Berlin",
	"milan":          "Europe/Rome",
	"st petersburg":  "Europe/Moscow",
	"рига":           "Europe/Riga",
	"москва":         "Europe/Moscow",
	"cape town":      "Africa/Johannesburg",
	"rio de janeiro": "America/Sao_Paulo",
	"sydney":         "Australia/Sydney",
	"melbourne":      "Australia/Melbourne",
	"auckland":       "Pacific/Auckland",
	"tel aviv":       "Asia/Jerusalem",
	"geneva":         "Europe/Zurich",
	"seoul":          "Asia/Seoul",
	"toronto":        "America/Toronto",
	"vancouver":      "America/Vancouver",
	"mexico city":    "America/Mexico_City",
	"buenos aires":   "America/Argentina/Buenos_Aires",
}

var zoneContinents = []string{
	"Europe", "America", "Asia", "Africa", "Australia", "Pacific", "Atlantic", "Indian",
}

// Clock builds the time capability. Zone resolution accepts IANA
// identifiers, bare city names and a curated alias table.
func Clock() flowagent.Capability {
	return flowagent.Capability{
		Name:        "time",
		Description: "Current time, time conversion and timezone information",
		Operations: []flowagent.Operation{
			{
				Name:        "get_current_time",
				Description: "Get the current local time in a location",
				Params:      []flowagent.Param{{Name: "location"}},
				Example:     `get_current_time("Tokyo")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					location, err := stringArg(args, 0, "location")
					if err != nil {
						return nil, err
					}
					loc, err := resolveZone(location)
					if err != nil {
						return nil, err
					}
					return timeInfo(time.Now().In(loc), location, loc), nil
				},
			},
			{
				Name:        "convert_time",
				Description: "Convert a clock time from one location to another",
				Params: []flowagent.Param{
					{Name: "time_string"},
					{Name: "source_location"},
					{Name: "target_location"},
				},
				Example: `convert_time("14:30", "London", "Tokyo")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					timeString, err := stringArg(args, 0, "time_string")
					if err != nil {
						return nil, err
					}
					source, err := stringArg(args, 1, "source_location")
					if err != nil {
						return nil, err
					}
					target, err := stringArg(args, 2, "target_location")
					if err != nil {
						return nil, err
					}
					return convertTime(timeString, source, target)
				},
			},
			{
				Name:        "get_time_difference",
				Description: "Get the current offset between two locations",
				Params: []flowagent.Param{
					{Name: "location1"},
					{Name: "location2"},
				},
				Example: `get_time_difference("New York", "Tokyo")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					first, err := stringArg(args, 0, "location1")
					if err != nil {
						return nil, err
					}
					second, err := stringArg(args, 1, "location2")
					if err != nil {
						return nil, err
					}
					return timeDifference(first, second)
				},
			},
			{
				Name:        "list_timezones",
				Description: "List known timezone identifiers, optionally filtered by region",
				Params:      []flowagent.Param{{Name: "region", Optional: true}},
				Example:     `list_timezones("Europe")`,
				Handler: func(ctx context.Context, args []interface{}) (interface{}, error) {
					region := optionalStringArg(args, 0, "")
					return listTimezones(region), nil
				},
			},
		},
	}
}

// resolveZone maps a location string to an IANA zone. Tried in order: the
// string itself, the alias table, then City under each continent prefix.
func resolveZone(location string) (*time.Location, error) {
	trimmed := strings.TrimSpace(location)
	if loc, err := time.LoadLocation(trimmed); err == nil && trimmed != "" {
		return loc, nil
	}

	if zone, ok := cityZones[strings.ToLower(trimmed)]; ok {
		return time.LoadLocation(zone)
	}

	cityName := strings.ReplaceAll(titleCase(trimmed), " ", "_")
	for _, continent := range zoneContinents {
		if loc, err := time.LoadLocation(continent + "/" + cityName); err == nil {
			return loc, nil
		}
	}

	return nil, flowagent.NewExecutionError("capability", "time", "resolve_zone",
		fmt.Errorf("unknown timezone or city: %s", location))
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// isDST reports whether t is in daylight saving time by comparing its UTC
// offset against the zone's standard (minimum) offset across the year.
func isDST(t time.Time) bool {
	_, offset := t.Zone()
	_, january := time.Date(t.Year(), time.January, 1, 12, 0, 0, 0, t.Location()).Zone()
	_, july := time.Date(t.Year(), time.July, 1, 12, 0, 0, 0, t.Location()).Zone()
	standard := january
	if july < standard {
		standard = july
	}
	return offset > standard
}

func timeInfo(t time.Time, location string, loc *time.Location) map[string]interface{} {
	zoneName, offset := t.Zone()
	return map[string]interface{}{
		"location":   location,
		"timezone":   loc.String(),
		"zone":       zoneName,
		"time":       t.Format("15:04:05"),
		"date":       t.Format("2006-01-02"),
		"utc_offset": formatOffset(offset),
		"is_dst":     isDST(t),
	}
}

func formatOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, seconds/3600, (seconds%3600)/60)
}

func convertTime(timeString, source, target string) (interface{}, error) {
	sourceLoc, err := resolveZone(source)
	if err != nil {
		return nil, err
	}
	targetLoc, err := resolveZone(target)
	if err != nil {
		return nil, err
	}

	var parsed time.Time
	var parseErr error
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM", "3 PM"} {
		parsed, parseErr = time.Parse(layout, timeString)
		if parseErr == nil {
			break
		}
	}
	if parseErr != nil {
		return nil, flowagent.NewValidationError("capability",
			fmt.Sprintf("could not parse time '%s'", timeString), parseErr)
	}

	now := time.Now().In(sourceLoc)
	sourceTime := time.Date(now.Year(), now.Month(), now.Day(),
		parsed.Hour(), parsed.Minute(), parsed.Second(), 0, sourceLoc)
	targetTime := sourceTime.In(targetLoc)

	return map[string]interface{}{
		"source": timeInfo(sourceTime, source, sourceLoc),
		"target": timeInfo(targetTime, target, targetLoc),
	}, nil
}

func timeDifference(first, second string) (interface{}, error) {
	firstLoc, err := resolveZone(first)
	if err != nil {
		return nil, err
	}
	secondLoc, err := resolveZone(second)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_, firstOffset := now.In(firstLoc).Zone()
	_, secondOffset := now.In(secondLoc).Zone()
	diffHours := float64(secondOffset-firstOffset) / 3600

	return map[string]interface{}{
		"location1":        timeInfo(now.In(firstLoc), first, firstLoc),
		"location2":        timeInfo(now.In(secondLoc), second, secondLoc),
		"difference_hours": diffHours,
	}, nil
}

func listTimezones(region string) map[string]interface{} {
	zones := make(map[string]bool, len(cityZones))
	for _, zone := range cityZones {
		zones[zone] = true
	}
	for _, zone := range []string{
		"UTC", "Europe/London", "Europe/Paris", "Europe/Berlin", "Europe/Madrid",
		"Europe/Rome", "Europe/Moscow", "America/New_York", "America/Chicago",
		"America/Denver", "America/Los_Angeles", "Asia/Tokyo", "Asia/Shanghai",
		"Asia/Dubai", "Asia/Kolkata", "Asia/Singapore", "Australia/Sydney",
	} {
		zones[zone] = true
	}

	names := make([]string, 0, len(zones))
	prefix := titleCase(region)
	for zone := range zones {
		if region == "" || strings.HasPrefix(zone, prefix) {
			names = append(names, zone)
		}
	}
	sort.Strings(names)
	return map[string]interface{}{
		"region":    region,
		"timezones": names,
	}
}
