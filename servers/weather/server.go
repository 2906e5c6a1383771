package weather

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MegaGrindStone/go-mcp"
	"github.com/shayrylmae/Weather-MCP-Server/openmeteo"
)

const (
	defaultForecastDays = 7
	maxForecastDays     = 16
	maxSearchCount      = 10

	// defaultBaseTemperature is the 10°C base commonly used for growing
	// degree day accumulation in temperate crops.
	defaultBaseTemperature = 10.0
)

// Server exposes Open-Meteo weather data through the Model Context Protocol
// (MCP). It provides geocoding, current conditions, forecasts, historical
// weather, and growing degree day accumulation as MCP tools.
//
// Server holds no per-session state; one instance can back any number of
// protocol servers. It implements the mcp.ToolServer interface.
type Server struct {
	client *openmeteo.Client
}

// NewServer creates a weather MCP server backed by the given Open-Meteo
// client. Every upstream call the tools make goes through that client and
// inherits its retry policy.
func NewServer(client *openmeteo.Client) Server {
	return Server{client: client}
}

// ListTools implements mcp.ToolServer interface.
// Returns the list of available weather tools supported by this server.
func (s Server) ListTools(
	context.Context,
	mcp.ListToolsParams,
	mcp.ProgressReporter,
	mcp.RequestClientFunc,
) (mcp.ListToolsResult, error) {
	return toolList, nil
}

// CallTool implements mcp.ToolServer interface.
// Executes a specified weather tool with the given parameters. Invalid
// arguments and upstream failures are reported as errors; the protocol
// layer converts them into error results for the client.
func (s Server) CallTool(
	ctx context.Context,
	params mcp.CallToolParams,
	_ mcp.ProgressReporter,
	_ mcp.RequestClientFunc,
) (mcp.CallToolResult, error) {
	switch params.Name {
	case "search_locations":
		return s.searchLocations(ctx, params)
	case "get_current_weather":
		return s.currentWeather(ctx, params)
	case "get_weather_forecast":
		return s.forecast(ctx, params)
	case "get_historical_weather":
		return s.historicalWeather(ctx, params)
	case "get_growing_degree_days":
		return s.growingDegreeDays(ctx, params)
	default:
		return mcp.CallToolResult{}, fmt.Errorf("tool not found: %s", params.Name)
	}
}

// geocode resolves a free-form place name to its best match. A name with no
// matches surfaces the not-found error from the search call.
func (s Server) geocode(ctx context.Context, location string) (openmeteo.Location, error) {
	if location == "" {
		return openmeteo.Location{}, fmt.Errorf("location must not be empty")
	}

	locations, err := s.client.Search(ctx, location, 1)
	if err != nil {
		return openmeteo.Location{}, err
	}
	return locations[0], nil
}

func (s Server) searchLocations(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args searchLocationsArgs
	if err := json.Unmarshal(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	if args.Query == "" {
		return mcp.CallToolResult{}, fmt.Errorf("query must not be empty")
	}
	if args.Count < 0 || args.Count > maxSearchCount {
		return mcp.CallToolResult{}, fmt.Errorf("count must be between 1 and %d", maxSearchCount)
	}

	locations, err := s.client.Search(ctx, args.Query, args.Count)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	locationsJSON, err := json.Marshal(locations)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	return mcp.CallToolResult{
		Content: []mcp.Content{
			{
				Type: mcp.ContentTypeText,
				Text: string(locationsJSON),
			},
		},
		IsError: false,
	}, nil
}

func (s Server) currentWeather(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args currentWeatherArgs
	if err := json.Unmarshal(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	units, err := openmeteo.ParseUnits(args.Units)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	loc, err := s.geocode(ctx, args.Location)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	res, err := s.client.Forecast(ctx, openmeteo.ForecastRequest{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Timezone:  loc.Timezone,
		Days:      1,
		Units:     units,
	})
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	return mcp.CallToolResult{
		Content: []mcp.Content{
			{
				Type: mcp.ContentTypeText,
				Text: currentReport(loc, res),
			},
		},
		IsError: false,
	}, nil
}

func (s Server) forecast(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args forecastArgs
	if err := json.Unmarshal(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	units, err := openmeteo.ParseUnits(args.Units)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	days := args.Days
	if days == 0 {
		days = defaultForecastDays
	}
	if days < 1 || days > maxForecastDays {
		return mcp.CallToolResult{}, fmt.Errorf("days must be between 1 and %d", maxForecastDays)
	}

	loc, err := s.geocode(ctx, args.Location)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	res, err := s.client.Forecast(ctx, openmeteo.ForecastRequest{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Timezone:  loc.Timezone,
		Days:      days,
		Units:     units,
	})
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	return mcp.CallToolResult{
		Content: []mcp.Content{
			{
				Type: mcp.ContentTypeText,
				Text: forecastReport(loc, res),
			},
		},
		IsError: false,
	}, nil
}

func (s Server) historicalWeather(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args historicalWeatherArgs
	if err := json.Unmarshal(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	units, err := openmeteo.ParseUnits(args.Units)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	rng, err := parseDateRange(args.StartDate, args.EndDate)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	loc, err := s.geocode(ctx, args.Location)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	res, err := s.client.Archive(ctx, openmeteo.ArchiveRequest{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Timezone:  loc.Timezone,
		StartDate: rng.start.Format(dateLayout),
		EndDate:   rng.end.Format(dateLayout),
		Units:     units,
	})
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	return mcp.CallToolResult{
		Content: []mcp.Content{
			{
				Type: mcp.ContentTypeText,
				Text: historicalReport(loc, res),
			},
		},
		IsError: false,
	}, nil
}

func (s Server) growingDegreeDays(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args growingDegreeDaysArgs
	if err := json.Unmarshal(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	rng, err := parseDateRange(args.StartDate, args.EndDate)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	base := defaultBaseTemperature
	if args.BaseTemperature != nil {
		base = *args.BaseTemperature
	}

	loc, err := s.geocode(ctx, args.Location)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	// Degree days are defined on Celsius values, so the archive request
	// always stays metric regardless of the reporting units elsewhere.
	res, err := s.client.Archive(ctx, openmeteo.ArchiveRequest{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Timezone:  loc.Timezone,
		StartDate: rng.start.Format(dateLayout),
		EndDate:   rng.end.Format(dateLayout),
		Units:     openmeteo.UnitsMetric,
	})
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	return mcp.CallToolResult{
		Content: []mcp.Content{
			{
				Type: mcp.ContentTypeText,
				Text: gddReport(loc, res, base),
			},
		},
		IsError: false,
	}, nil
}
