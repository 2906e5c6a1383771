package weather

import "github.com/MegaGrindStone/go-mcp"

var toolList = mcp.ListToolsResult{
	Tools: []mcp.Tool{
		{
			Name: "search_locations",
			Description: `
Search for locations by name and return matching places with coordinates, country and timezone.
      `,
			InputSchema: searchLocationsSchema,
		},
		{
			Name: "get_current_weather",
			Description: `
Get the current weather conditions for a location, including temperature, wind, precipitation and cloud cover.
      `,
			InputSchema: currentWeatherSchema,
		},
		{
			Name: "get_weather_forecast",
			Description: `
Get a daily weather forecast for a location for up to 16 days ahead.
      `,
			InputSchema: forecastSchema,
		},
		{
			Name: "get_historical_weather",
			Description: `
Get daily historical weather for a location over a past date range of up to 92 days.
      `,
			InputSchema: historicalWeatherSchema,
		},
		{
			Name: "get_growing_degree_days",
			Description: `
Calculate accumulated growing degree days for a location over a past date range, using the daily averaging method.
      `,
			InputSchema: growingDegreeDaysSchema,
		},
	},
}
