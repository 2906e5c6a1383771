// Package openmeteo is a typed client for the Open-Meteo geocoding,
// forecast and historical-archive APIs. Every call goes through the
// resilient fetch helper, so transient upstream faults are retried and
// terminal ones are classified before they reach the tool layer.
package openmeteo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shayrylmae/Weather-MCP-Server/fetch"
)

const (
	defaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
	defaultArchiveURL   = "https://archive-api.open-meteo.com/v1/archive"

	defaultSearchCount = 5

	currentParams = "temperature_2m,relative_humidity_2m,apparent_temperature," +
		"precipitation,weather_code,wind_speed_10m,wind_direction_10m,pressure_msl,cloud_cover"
	dailyParams = "weather_code,temperature_2m_max,temperature_2m_min," +
		"precipitation_sum,precipitation_probability_max,wind_speed_10m_max,sunrise,sunset"
	archiveParams = "weather_code,temperature_2m_max,temperature_2m_min," +
		"temperature_2m_mean,precipitation_sum,wind_speed_10m_max"
)

// Units selects the measurement system requested from the API. The API
// echoes the matching unit labels back in its responses.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// ParseUnits maps a user-supplied units string to a Units value. The empty
// string means metric.
func ParseUnits(s string) (Units, error) {
	switch s {
	case "", string(UnitsMetric):
		return UnitsMetric, nil
	case string(UnitsImperial):
		return UnitsImperial, nil
	default:
		return "", fmt.Errorf("unknown units %q, use %q or %q", s, UnitsMetric, UnitsImperial)
	}
}

// Option configures a Client.
type Option func(*Client)

// WithGeocodingURL overrides the geocoding endpoint.
func WithGeocodingURL(u string) Option {
	return func(c *Client) {
		c.geocodingURL = u
	}
}

// WithForecastURL overrides the forecast endpoint.
func WithForecastURL(u string) Option {
	return func(c *Client) {
		c.forecastURL = u
	}
}

// WithArchiveURL overrides the historical archive endpoint.
func WithArchiveURL(u string) Option {
	return func(c *Client) {
		c.archiveURL = u
	}
}

// Client calls the Open-Meteo APIs. Construct instances with NewClient; a
// Client holds no per-call state and is safe for concurrent use.
type Client struct {
	fetcher *fetch.Client

	geocodingURL string
	forecastURL  string
	archiveURL   string
}

// NewClient creates a Client that performs its HTTP calls through fetcher.
func NewClient(fetcher *fetch.Client, options ...Option) *Client {
	c := &Client{
		fetcher:      fetcher,
		geocodingURL: defaultGeocodingURL,
		forecastURL:  defaultForecastURL,
		archiveURL:   defaultArchiveURL,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Search resolves a place name to candidate locations. count bounds the
// number of matches (the API caps it at 100); values below 1 fall back to
// the default of 5. Zero matches is a terminal not-found error.
func (c *Client) Search(ctx context.Context, name string, count int) ([]Location, error) {
	if count < 1 {
		count = defaultSearchCount
	}

	u, err := url.Parse(c.geocodingURL)
	if err != nil {
		return nil, fmt.Errorf("invalid geocoding URL: %w", err)
	}
	q := u.Query()
	q.Set("name", name)
	q.Set("count", strconv.Itoa(count))
	q.Set("language", "en")
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	var res geocodingResponse
	err = c.fetcher.JSON(ctx, u.String(), &res, func() error {
		if len(res.Results) == 0 {
			return fmt.Errorf("no locations match %q", name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res.Results, nil
}

// ForecastRequest describes one forecast call. Coordinates usually come
// from a Search result, along with the location's timezone.
type ForecastRequest struct {
	Latitude  float64
	Longitude float64

	// Timezone is an IANA identifier; empty means the API picks one from
	// the coordinates.
	Timezone string

	// Days is the forecast length, 1 to 16; zero leaves the API default of 7.
	Days int

	Units Units
}

// Forecast fetches current conditions and a daily outlook for one point.
func (c *Client) Forecast(ctx context.Context, req ForecastRequest) (*ForecastResponse, error) {
	u, err := url.Parse(c.forecastURL)
	if err != nil {
		return nil, fmt.Errorf("invalid forecast URL: %w", err)
	}
	q := u.Query()
	q.Set("latitude", formatCoord(req.Latitude))
	q.Set("longitude", formatCoord(req.Longitude))
	q.Set("current", currentParams)
	q.Set("daily", dailyParams)
	if req.Days > 0 {
		q.Set("forecast_days", strconv.Itoa(req.Days))
	}
	q.Set("timezone", timezoneOrAuto(req.Timezone))
	applyUnits(q, req.Units)
	u.RawQuery = q.Encode()

	var res ForecastResponse
	if err := c.fetcher.JSON(ctx, u.String(), &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

// ArchiveRequest describes one historical weather call over a closed date
// range. Dates are YYYY-MM-DD strings, validated by the caller.
type ArchiveRequest struct {
	Latitude  float64
	Longitude float64
	Timezone  string
	StartDate string
	EndDate   string
	Units     Units
}

// Archive fetches daily historical weather for one point and date range.
func (c *Client) Archive(ctx context.Context, req ArchiveRequest) (*ArchiveResponse, error) {
	u, err := url.Parse(c.archiveURL)
	if err != nil {
		return nil, fmt.Errorf("invalid archive URL: %w", err)
	}
	q := u.Query()
	q.Set("latitude", formatCoord(req.Latitude))
	q.Set("longitude", formatCoord(req.Longitude))
	q.Set("start_date", req.StartDate)
	q.Set("end_date", req.EndDate)
	q.Set("daily", archiveParams)
	q.Set("timezone", timezoneOrAuto(req.Timezone))
	applyUnits(q, req.Units)
	u.RawQuery = q.Encode()

	var res ArchiveResponse
	if err := c.fetcher.JSON(ctx, u.String(), &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

func applyUnits(q url.Values, units Units) {
	if units == UnitsImperial {
		q.Set("temperature_unit", "fahrenheit")
		q.Set("wind_speed_unit", "mph")
		q.Set("precipitation_unit", "inch")
	}
}

func timezoneOrAuto(tz string) string {
	if tz == "" {
		return "auto"
	}
	return tz
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
