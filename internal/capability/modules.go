package capability

import (
	flowagent "github.com/frostholm/flowagent"
)

// Modules returns every built-in capability, wired to the shared HTTP
// client. The slice order is not significant; the registry sorts by name.
func Modules(client *Client, waqiToken string) []flowagent.Capability {
	return []flowagent.Capability{
		Weather(client),
		Currency(client),
		AirQuality(client, waqiToken),
		Astronomy(client),
		Clock(),
		News(client),
		Stock(client),
		Geolocation(client),
		Wikipedia(client),
		Search(client),
		WebParser(client),
	}
}
