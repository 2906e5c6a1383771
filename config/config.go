package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transport names accepted by the server.
const (
	TransportStdIO = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Config carries every runtime knob for the server. Values are resolved in
// order of precedence: WEATHER_MCP_* environment variables, the config
// file, then the built-in defaults.
type Config struct {
	// Transport selects how the server speaks MCP: stdio, sse, or http.
	Transport string
	// Addr is the listen address for the sse and http transports.
	Addr string
	// LogLevel is one of debug, info, warn, or error.
	LogLevel string
	// PublicBaseURL is the externally visible base URL announced to SSE
	// clients in the endpoint event. Empty means derive it from Addr.
	PublicBaseURL string

	OpenMeteo OpenMeteo
	Fetch     Fetch
	Sessions  Sessions

	// PingInterval is the cadence of protocol-level pings on live sessions.
	PingInterval time.Duration
}

// OpenMeteo holds the upstream API base URLs.
type OpenMeteo struct {
	GeocodingURL string
	ForecastURL  string
	ArchiveURL   string
}

// Fetch tunes the retrying HTTP helper.
type Fetch struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
}

// Sessions tunes the session registry.
type Sessions struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from the given file, or, when file is empty,
// from an optional weather-mcp.yaml found in the working directory or
// /etc/weather-mcp. A missing file is only an error when it was named
// explicitly. Environment variables use the WEATHER_MCP_ prefix with dots
// replaced by underscores, e.g. WEATHER_MCP_FETCH_MAX_ATTEMPTS.
func Load(file string) (Config, error) {
	v := viper.New()

	v.SetDefault("transport", TransportStdIO)
	v.SetDefault("addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("public_base_url", "")
	v.SetDefault("open_meteo.geocoding_url", "https://geocoding-api.open-meteo.com/v1/search")
	v.SetDefault("open_meteo.forecast_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("open_meteo.archive_url", "https://archive-api.open-meteo.com/v1/archive")
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.attempt_timeout", 10*time.Second)
	v.SetDefault("sessions.idle_timeout", 30*time.Minute)
	v.SetDefault("sessions.sweep_interval", 5*time.Minute)
	v.SetDefault("ping_interval", 30*time.Second)

	v.SetEnvPrefix("WEATHER_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("weather-mcp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/weather-mcp")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := Config{
		Transport:     v.GetString("transport"),
		Addr:          v.GetString("addr"),
		LogLevel:      v.GetString("log.level"),
		PublicBaseURL: v.GetString("public_base_url"),
		OpenMeteo: OpenMeteo{
			GeocodingURL: v.GetString("open_meteo.geocoding_url"),
			ForecastURL:  v.GetString("open_meteo.forecast_url"),
			ArchiveURL:   v.GetString("open_meteo.archive_url"),
		},
		Fetch: Fetch{
			MaxAttempts:    v.GetInt("fetch.max_attempts"),
			AttemptTimeout: v.GetDuration("fetch.attempt_timeout"),
		},
		Sessions: Sessions{
			IdleTimeout:   v.GetDuration("sessions.idle_timeout"),
			SweepInterval: v.GetDuration("sessions.sweep_interval"),
		},
		PingInterval: v.GetDuration("ping_interval"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first nonsensical setting.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdIO, TransportSSE, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport %q, expected stdio, sse, or http", c.Transport)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be at least 1, got %d", c.Fetch.MaxAttempts)
	}
	if c.Fetch.AttemptTimeout <= 0 {
		return fmt.Errorf("fetch.attempt_timeout must be positive, got %s", c.Fetch.AttemptTimeout)
	}
	if c.Sessions.IdleTimeout <= 0 {
		return fmt.Errorf("sessions.idle_timeout must be positive, got %s", c.Sessions.IdleTimeout)
	}
	if c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("sessions.sweep_interval must be positive, got %s", c.Sessions.SweepInterval)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping_interval must be positive, got %s", c.PingInterval)
	}
	return nil
}

// ParseLevel maps a config log level name onto a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q, expected debug, info, warn, or error", s)
}
