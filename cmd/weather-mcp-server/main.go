package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MegaGrindStone/go-mcp"

	"github.com/shayrylmae/Weather-MCP-Server/config"
	"github.com/shayrylmae/Weather-MCP-Server/fetch"
	"github.com/shayrylmae/Weather-MCP-Server/openmeteo"
	"github.com/shayrylmae/Weather-MCP-Server/servers/weather"
	"github.com/shayrylmae/Weather-MCP-Server/sessions"
	"github.com/shayrylmae/Weather-MCP-Server/transport"
)

const shutdownTimeout = 10 * time.Second

var serverInfo = mcp.Info{
	Name:    "weather-mcp-server",
	Version: "1.0.0",
}

func main() {
	transportFlag := flag.String("transport", "", "Transport to serve on: stdio, sse, or http (overrides config)")
	addrFlag := flag.String("addr", "", "Listen address for the sse and http transports (overrides config)")
	configFlag := flag.String("config", "", "Path to a config file")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if *transportFlag != "" {
		cfg.Transport = *transportFlag
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	// Logs go to stderr; on the stdio transport stdout carries the protocol
	// stream.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := fetch.New(
		fetch.WithMaxAttempts(cfg.Fetch.MaxAttempts),
		fetch.WithAttemptTimeout(cfg.Fetch.AttemptTimeout),
		fetch.WithLogger(logger),
	)
	client := openmeteo.NewClient(fetcher,
		openmeteo.WithGeocodingURL(cfg.OpenMeteo.GeocodingURL),
		openmeteo.WithForecastURL(cfg.OpenMeteo.ForecastURL),
		openmeteo.WithArchiveURL(cfg.OpenMeteo.ArchiveURL),
	)
	weatherServer := weather.NewServer(client)

	var runErr error
	switch cfg.Transport {
	case config.TransportStdIO:
		runErr = runStdIO(ctx, logger, weatherServer, cfg)
	case config.TransportSSE:
		runErr = runSSE(ctx, logger, weatherServer, cfg)
	case config.TransportHTTP:
		runErr = runHTTP(ctx, logger, weatherServer, cfg)
	}
	if runErr != nil {
		logger.Error("server exited with error", slog.String("err", runErr.Error()))
		os.Exit(1)
	}
}

func runStdIO(ctx context.Context, logger *slog.Logger, toolServer weather.Server, cfg config.Config) error {
	srvIO := mcp.NewStdIO(os.Stdin, os.Stdout)

	srv := mcp.NewServer(serverInfo, srvIO,
		mcp.WithToolServer(toolServer),
		mcp.WithServerPingInterval(cfg.PingInterval),
		mcp.WithServerLogger(logger),
	)
	go srv.Serve()

	logger.Info("serving MCP on stdio")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func runSSE(ctx context.Context, logger *slog.Logger, toolServer weather.Server, cfg config.Config) error {
	registry := sessions.NewRegistry(
		sessions.WithIdleTimeout(cfg.Sessions.IdleTimeout),
		sessions.WithSweepInterval(cfg.Sessions.SweepInterval),
		sessions.WithLogger(logger),
	)

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = deriveBaseURL(cfg.Addr)
	}
	bridge := transport.NewSSE(serverInfo, toolServer, registry, baseURL+"/message",
		transport.WithSSELogger(logger),
		transport.WithServerOptions(
			mcp.WithServerPingInterval(cfg.PingInterval),
		),
	)

	mux := http.NewServeMux()
	mux.Handle("/sse", bridge.HandleSSE())
	mux.Handle("/message", bridge.HandleMessage())
	mux.Handle("/healthz", transport.Health())

	// The bridge drains first so parked event streams end before the
	// listener waits on its handlers.
	return serveHTTP(ctx, logger, cfg.Addr, mux, bridge.Shutdown)
}

func runHTTP(ctx context.Context, logger *slog.Logger, toolServer weather.Server, cfg config.Config) error {
	proxy := transport.NewProxy(serverInfo, toolServer, transport.WithProxyLogger(logger))

	mux := http.NewServeMux()
	mux.Handle("/", proxy.Handler())
	mux.Handle("/healthz", transport.Health())

	return serveHTTP(ctx, logger, cfg.Addr, mux, nil)
}

func serveHTTP(
	ctx context.Context,
	logger *slog.Logger,
	addr string,
	handler http.Handler,
	drain func(context.Context) error,
) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if drain != nil {
		if err := drain(shutdownCtx); err != nil {
			logger.Warn("failed to drain sessions", slog.String("err", err.Error()))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited gracefully")
	return nil
}

// deriveBaseURL builds the endpoint-event base URL for clients when no
// public base URL is configured. A bare ":8080" listen address maps to
// http://localhost:8080.
func deriveBaseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
