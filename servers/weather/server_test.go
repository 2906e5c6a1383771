package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MegaGrindStone/go-mcp"
	"github.com/shayrylmae/Weather-MCP-Server/fetch"
	"github.com/shayrylmae/Weather-MCP-Server/openmeteo"
)

const geocodingBody = `{
  "results": [
    {
      "id": 1701668,
      "name": "Manila",
      "latitude": 14.6042,
      "longitude": 120.9822,
      "country": "Philippines",
      "country_code": "PH",
      "admin1": "Metro Manila",
      "timezone": "Asia/Manila"
    }
  ]
}`

const forecastBody = `{
  "latitude": 14.625,
  "longitude": 121.0,
  "timezone": "Asia/Manila",
  "current_units": {
    "temperature_2m": "°C",
    "wind_speed_10m": "km/h",
    "precipitation": "mm",
    "pressure_msl": "hPa"
  },
  "current": {
    "time": "2025-03-01T12:00",
    "temperature_2m": 31.4,
    "relative_humidity_2m": 70,
    "apparent_temperature": 36.2,
    "precipitation": 0,
    "weather_code": 2,
    "wind_speed_10m": 7.8,
    "wind_direction_10m": 120,
    "pressure_msl": 1011.2,
    "cloud_cover": 40
  },
  "daily_units": {
    "temperature_2m_max": "°C",
    "temperature_2m_min": "°C",
    "precipitation_sum": "mm",
    "wind_speed_10m_max": "km/h"
  },
  "daily": {
    "time": ["2025-03-01", "2025-03-02"],
    "weather_code": [2, 61],
    "temperature_2m_max": [31.4, 29.0],
    "temperature_2m_min": [25.1, 24.2],
    "precipitation_sum": [0, 6.2],
    "precipitation_probability_max": [10, 70],
    "wind_speed_10m_max": [9.2, 14.5],
    "sunrise": ["2025-03-01T06:11", "2025-03-02T06:10"],
    "sunset": ["2025-03-01T18:07", "2025-03-02T18:07"]
  }
}`

const archiveBody = `{
  "latitude": 14.625,
  "longitude": 121.0,
  "timezone": "Asia/Manila",
  "daily_units": {
    "temperature_2m_max": "°C",
    "temperature_2m_min": "°C",
    "temperature_2m_mean": "°C",
    "precipitation_sum": "mm",
    "wind_speed_10m_max": "km/h"
  },
  "daily": {
    "time": ["2025-06-01", "2025-06-02", "2025-06-03"],
    "weather_code": [3, 61, null],
    "temperature_2m_max": [30.0, 28.0, null],
    "temperature_2m_min": [20.0, 18.0, null],
    "temperature_2m_mean": [25.0, 23.0, null],
    "precipitation_sum": [0, 4.2, null],
    "wind_speed_10m_max": [14.3, 22.1, null]
  }
}`

// fakeOpenMeteo bundles handler overrides for the three upstream endpoints.
// Nil handlers serve the canned fixture bodies.
type fakeOpenMeteo struct {
	geocode  http.HandlerFunc
	forecast http.HandlerFunc
	archive  http.HandlerFunc
}

func staticBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}
}

func instantSleep(_ context.Context, _ time.Duration) error { return nil }

func newTestServer(t *testing.T, f fakeOpenMeteo, opts ...fetch.Option) Server {
	t.Helper()

	if f.geocode == nil {
		f.geocode = staticBody(geocodingBody)
	}
	if f.forecast == nil {
		f.forecast = staticBody(forecastBody)
	}
	if f.archive == nil {
		f.archive = staticBody(archiveBody)
	}

	geo := httptest.NewServer(f.geocode)
	t.Cleanup(geo.Close)
	fc := httptest.NewServer(f.forecast)
	t.Cleanup(fc.Close)
	ar := httptest.NewServer(f.archive)
	t.Cleanup(ar.Close)

	fetchOpts := append([]fetch.Option{fetch.WithSleep(instantSleep)}, opts...)
	client := openmeteo.NewClient(fetch.New(fetchOpts...),
		openmeteo.WithGeocodingURL(geo.URL),
		openmeteo.WithForecastURL(fc.URL),
		openmeteo.WithArchiveURL(ar.URL),
	)
	return NewServer(client)
}

func callTool(s Server, name string, args any) (mcp.CallToolResult, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return s.CallTool(context.Background(), mcp.CallToolParams{
		Name:      name,
		Arguments: argsJSON,
	}, nil, nil)
}

func resultText(t *testing.T, res mcp.CallToolResult) string {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool returned error result: %+v", res)
	}
	if len(res.Content) != 1 {
		t.Fatalf("expected 1 content item, got %d", len(res.Content))
	}
	return res.Content[0].Text
}

func TestListTools(t *testing.T) {
	s := newTestServer(t, fakeOpenMeteo{})

	result, err := s.ListTools(context.Background(), mcp.ListToolsParams{}, nil, nil)
	if err != nil {
		t.Fatalf("failed to list tools: %v", err)
	}

	want := []string{
		"search_locations",
		"get_current_weather",
		"get_weather_forecast",
		"get_historical_weather",
		"get_growing_degree_days",
	}
	if len(result.Tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(result.Tools), len(want))
	}
	for i, name := range want {
		if result.Tools[i].Name != name {
			t.Errorf("tool %d: got %q, want %q", i, result.Tools[i].Name, name)
		}
		if len(result.Tools[i].InputSchema) == 0 {
			t.Errorf("tool %q has no input schema", name)
		}
	}
}

func TestCallToolUnknown(t *testing.T) {
	s := newTestServer(t, fakeOpenMeteo{})

	_, err := callTool(s, "get_tide_tables", map[string]any{})
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if !strings.Contains(err.Error(), "tool not found") {
		t.Errorf("error %q does not mention missing tool", err)
	}
}

func TestSearchLocationsTool(t *testing.T) {
	s := newTestServer(t, fakeOpenMeteo{})

	res, err := callTool(s, "search_locations", map[string]any{"query": "Manila"})
	if err != nil {
		t.Fatalf("failed to call search_locations: %v", err)
	}

	var locations []openmeteo.Location
	if err := json.Unmarshal([]byte(resultText(t, res)), &locations); err != nil {
		t.Fatalf("result is not a location list: %v", err)
	}
	if len(locations) != 1 || locations[0].Name != "Manila" {
		t.Errorf("unexpected locations: %+v", locations)
	}
	if locations[0].Timezone != "Asia/Manila" {
		t.Errorf("got timezone %q, want %q", locations[0].Timezone, "Asia/Manila")
	}
}

func TestSearchLocationsValidation(t *testing.T) {
	s := newTestServer(t, fakeOpenMeteo{})

	if _, err := callTool(s, "search_locations", map[string]any{"query": ""}); err == nil {
		t.Error("expected error for empty query")
	}
	if _, err := callTool(s, "search_locations", map[string]any{"query": "Manila", "count": 11}); err == nil {
		t.Error("expected error for count over the limit")
	}
}

func TestCurrentWeatherTool(t *testing.T) {
	s := newTestServer(t, fakeOpenMeteo{})

	res, err := callTool(s, "get_current_weather", map[string]any{"location": "Manila"})
	if err != nil {
		t.Fatalf("failed to call get_current_weather: %v", err)
	}

	text := resultText(t, res)
	for _, want := range []string{
		"Current weather for Manila, Metro Manila, Philippines",
		"partly cloudy",
		"31.4°C (feels like 36.2°C)",
		"7.8 km/h from ESE (120°)",
		"Cloud cover: 40%",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report does not contain %q:\n%s", want, text)
		}
	}
}

func TestCurrentWeatherUnknownUnits(t *testing.T) {
	s := newTestServer(t, fakeOpenMeteo{})

	_, err := callTool(s, "get_current_weather", map[string]any{"location": "Manila", "units": "kelvin"})
	if err == nil {
		t.Fatal("expected error for unknown units")
	}
	if !strings.Contains(err.Error(), "kelvin") {
		t.Errorf("error %q does not name the offending units", err)
	}
}

func TestForecastTool(t *testing.T) {
	var gotDays string
	s := newTestServer(t, fakeOpenMeteo{
		forecast: func(w http.ResponseWriter, r *http.Request) {
			gotDays = r.URL.Query().Get("forecast_days")
			_, _ = w.Write([]byte(forecastBody))
		},
	})

	res, err := callTool(s, "get_weather_forecast", map[string]any{"location": "Manila", "days": 2})
	if err != nil {
		t.Fatalf("failed to call get_weather_forecast: %v", err)
	}
	if gotDays != "2" {
		t.Errorf("upstream got forecast_days %q, want %q", gotDays, "2")
	}

	text := resultText(t, res)
	for _, want := range []string{
		"2-day forecast for Manila, Metro Manila, Philippines (Asia/Manila)",
		"2025-03-02: slight rain, 24.2°C to 29.0°C",
		"precipitation 6.2 mm (70% chance)",
		"sun 06:10 to 18:07",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report does not contain %q:\n%s", want, text)
		}
	}
}

func TestForecastToolDefaultDays(t *testing.T) {
	var gotDays string
	s := newTestServer(t, fakeOpenMeteo{
		forecast: func(w http.ResponseWriter, r *http.Request) {
			gotDays = r.URL.Query().Get("forecast_days")
			_, _ = w.Write([]byte(forecastBody))
		},
	})

	if _, err := callTool(s, "get_weather_forecast", map[string]any{"location": "Manila"}); err != nil {
		t.Fatalf("failed to call get_weather_forecast: %v", err)
	}
	if gotDays != "7" {
		t.Errorf("upstream got forecast_days %q, want default %q", gotDays, "7")
	}
}

func TestForecastToolSurvivesRaggedResponse(t *testing.T) {
	// A 200 response whose daily arrays are shorter than the time axis must
	// still produce a report, not crash the dispatch path.
	s := newTestServer(t, fakeOpenMeteo{
		forecast: staticBody(`{
			"latitude": 14.625,
			"longitude": 121.0,
			"timezone": "Asia/Manila",
			"daily_units": {"temperature_2m_max": "°C", "temperature_2m_min": "°C"},
			"daily": {
				"time": ["2025-03-01", "2025-03-02"],
				"weather_code": [2],
				"temperature_2m_max": [31.4],
				"temperature_2m_min": [25.1],
				"precipitation_sum": [0],
				"wind_speed_10m_max": [9.2]
			}
		}`),
	})

	res, err := callTool(s, "get_weather_forecast", map[string]any{"location": "Manila", "days": 2})
	if err != nil {
		t.Fatalf("failed to call get_weather_forecast: %v", err)
	}

	text := resultText(t, res)
	if !strings.Contains(text, "2025-03-01: partly cloudy") {
		t.Errorf("report does not cover the complete day:\n%s", text)
	}
	if !strings.Contains(text, "1 of 2 days missing from the upstream response") {
		t.Errorf("report does not note the missing day:\n%s", text)
	}
}

func TestForecastToolDaysValidation(t *testing.T) {
	s := newTestServer(t, fakeOpenMeteo{})

	for _, days := range []int{-1, 17} {
		_, err := callTool(s, "get_weather_forecast", map[string]any{"location": "Manila", "days": days})
		if err == nil {
			t.Errorf("expected error for days=%d", days)
			continue
		}
		if !strings.Contains(err.Error(), "between 1 and 16") {
			t.Errorf("error %q does not state the valid range", err)
		}
	}
}

func TestHistoricalWeatherTool(t *testing.T) {
	var gotStart, gotEnd string
	s := newTestServer(t, fakeOpenMeteo{
		archive: func(w http.ResponseWriter, r *http.Request) {
			gotStart = r.URL.Query().Get("start_date")
			gotEnd = r.URL.Query().Get("end_date")
			_, _ = w.Write([]byte(archiveBody))
		},
	})

	res, err := callTool(s, "get_historical_weather", map[string]any{
		"location":   "Manila",
		"start_date": "2025-06-01",
		"end_date":   "2025-06-03",
	})
	if err != nil {
		t.Fatalf("failed to call get_historical_weather: %v", err)
	}
	if gotStart != "2025-06-01" || gotEnd != "2025-06-03" {
		t.Errorf("upstream got range %s..%s, want 2025-06-01..2025-06-03", gotStart, gotEnd)
	}

	text := resultText(t, res)
	for _, want := range []string{
		"Historical weather for Manila, Metro Manila, Philippines",
		"2025-06-01: overcast, 20.0°C to 30.0°C, mean 25.0°C",
		"Range summary: mean temperature 24.0°C, total precipitation 4.2 mm, peak wind 22.1 km/h",
		"1 of 3 days not yet available in the archive",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report does not contain %q:\n%s", want, text)
		}
	}
}

func TestHistoricalWeatherValidation(t *testing.T) {
	s := newTestServer(t, fakeOpenMeteo{})
	future := time.Now().UTC().AddDate(0, 0, 3).Format(dateLayout)

	cases := []struct {
		name  string
		start string
		end   string
	}{
		{name: "bad format", start: "01-06-2025", end: "2025-06-03"},
		{name: "reversed", start: "2025-06-03", end: "2025-06-01"},
		{name: "too long", start: "2025-01-01", end: "2025-06-01"},
		{name: "future", start: "2025-06-01", end: future},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := callTool(s, "get_historical_weather", map[string]any{
				"location":   "Manila",
				"start_date": c.start,
				"end_date":   c.end,
			})
			if err == nil {
				t.Errorf("expected error for range %s..%s", c.start, c.end)
			}
		})
	}
}

func TestGrowingDegreeDaysTool(t *testing.T) {
	s := newTestServer(t, fakeOpenMeteo{})

	res, err := callTool(s, "get_growing_degree_days", map[string]any{
		"location":   "Manila",
		"start_date": "2025-06-01",
		"end_date":   "2025-06-03",
	})
	if err != nil {
		t.Fatalf("failed to call get_growing_degree_days: %v", err)
	}

	text := resultText(t, res)
	for _, want := range []string{
		"Growing degree days for Manila, Metro Manila, Philippines (base 10.0°C)",
		"Range: 2025-06-01 to 2025-06-03",
		"Accumulated: 28.0 GDD over 2 days (14.00 per day)",
		"Skipped 1 of 3 days not yet in the archive",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report does not contain %q:\n%s", want, text)
		}
	}
}

func TestGrowingDegreeDaysCustomBase(t *testing.T) {
	s := newTestServer(t, fakeOpenMeteo{})

	res, err := callTool(s, "get_growing_degree_days", map[string]any{
		"location":         "Manila",
		"start_date":       "2025-06-01",
		"end_date":         "2025-06-03",
		"base_temperature": 20,
	})
	if err != nil {
		t.Fatalf("failed to call get_growing_degree_days: %v", err)
	}

	// Day means are 25 and 23, so a base of 20 accumulates 5 + 3.
	text := resultText(t, res)
	if !strings.Contains(text, "Accumulated: 8.0 GDD over 2 days") {
		t.Errorf("report does not show the custom-base total:\n%s", text)
	}
}

func TestGeocodeMissSurfacesNotFound(t *testing.T) {
	s := newTestServer(t, fakeOpenMeteo{
		geocode: staticBody(`{"generationtime_ms":0.2}`),
	})

	_, err := callTool(s, "get_current_weather", map[string]any{"location": "Xyzzytown"})
	if err == nil {
		t.Fatal("expected error for unmatched location")
	}
	if !strings.Contains(err.Error(), "no locations match") {
		t.Errorf("error %q does not report the failed match", err)
	}
}

func TestCurrentWeatherRetriesThroughTimeouts(t *testing.T) {
	var forecastCalls int32
	s := newTestServer(t, fakeOpenMeteo{
		forecast: func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&forecastCalls, 1) < 3 {
				<-r.Context().Done()
				return
			}
			_, _ = w.Write([]byte(forecastBody))
		},
	}, fetch.WithAttemptTimeout(50*time.Millisecond))

	res, err := callTool(s, "get_current_weather", map[string]any{"location": "Manila"})
	if err != nil {
		t.Fatalf("tool call should survive transient timeouts: %v", err)
	}

	if got := atomic.LoadInt32(&forecastCalls); got != 3 {
		t.Errorf("forecast upstream saw %d calls, want 3", got)
	}
	if !strings.Contains(resultText(t, res), "Current weather for Manila") {
		t.Error("result is not a weather report")
	}
}
