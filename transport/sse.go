package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MegaGrindStone/go-mcp"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"

	"github.com/shayrylmae/Weather-MCP-Server/sessions"
)

// sessionCloseTimeout bounds the graceful shutdown of one session's
// protocol server when its client disconnects.
const sessionCloseTimeout = 5 * time.Second

// SSE bridges MCP sessions onto Server-Sent Events. Each GET on HandleSSE
// opens one stream, mints a session ID, and starts a dedicated protocol
// server over a single-session transport; POSTs on HandleMessage carry the
// client-to-server half of the conversation. Live pairs are tracked by the
// session registry, which reclaims them when they go idle.
//
// The handlers are framework-agnostic and can be mounted on any HTTP mux.
type SSE struct {
	info       mcp.Info
	toolServer mcp.ToolServer
	registry   *sessions.Registry
	messageURL string

	serverOptions []mcp.ServerOption
	logger        *slog.Logger
}

// SSEOption configures an SSE bridge.
type SSEOption func(*SSE)

// WithSSELogger routes bridge logs to the given logger.
func WithSSELogger(logger *slog.Logger) SSEOption {
	return func(s *SSE) {
		s.logger = logger.With(slog.String("component", "sse"))
	}
}

// WithServerOptions appends options for each per-session protocol server,
// e.g. the ping cadence.
func WithServerOptions(options ...mcp.ServerOption) SSEOption {
	return func(s *SSE) {
		s.serverOptions = append(s.serverOptions, options...)
	}
}

// NewSSE creates an SSE bridge serving the given tool server. The
// messageURL is the URL clients should POST their messages to, as announced
// in the endpoint event; it must route back to HandleMessage.
func NewSSE(
	info mcp.Info,
	toolServer mcp.ToolServer,
	registry *sessions.Registry,
	messageURL string,
	options ...SSEOption,
) *SSE {
	s := &SSE{
		info:       info,
		toolServer: toolServer,
		registry:   registry,
		messageURL: messageURL,
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// serverHandle guards the protocol server's shutdown with a Once, since the
// registry sweep and the connection handler can both release a session.
type serverHandle struct {
	srv  mcp.Server
	once sync.Once
}

func newServerHandle(srv mcp.Server) *serverHandle {
	return &serverHandle{srv: srv}
}

func (h *serverHandle) Serve() {
	h.srv.Serve()
}

func (h *serverHandle) Shutdown(ctx context.Context) error {
	var err error
	h.once.Do(func() {
		err = h.srv.Shutdown(ctx)
	})
	return err
}

// HandleSSE returns an http.Handler for establishing SSE sessions over GET
// requests. The handler upgrades the connection, announces the session's
// message endpoint in an "endpoint" event, registers a fresh
// connection/protocol-server pair, and keeps streaming until the client
// disconnects or the registry reclaims the session.
func (s *SSE) HandleSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sse.Upgrade(w, r)
		if err != nil {
			nErr := fmt.Errorf("failed to upgrade session: %w", err)
			s.logger.Error("failed to upgrade session", "err", nErr)
			http.Error(w, nErr.Error(), http.StatusInternalServerError)
			return
		}

		sessID := uuid.New().String()

		// Tell the client where to POST its half of the conversation.
		endpoint := fmt.Sprintf("%s?sessionID=%s", s.messageURL, sessID)
		msg := sse.Message{
			Type: sse.Type("endpoint"),
		}
		msg.AppendData(endpoint)
		if err := sess.Send(&msg); err != nil {
			nErr := fmt.Errorf("failed to write SSE URL: %w", err)
			s.logger.Error("failed to write SSE URL", "err", nErr)
			http.Error(w, nErr.Error(), http.StatusInternalServerError)
			return
		}
		if err := sess.Flush(); err != nil {
			nErr := fmt.Errorf("failed to flush SSE: %w", err)
			s.logger.Error("failed to flush SSE", "err", nErr)
			http.Error(w, nErr.Error(), http.StatusInternalServerError)
			return
		}

		c := newConn(sessID, sess, s.logger)

		options := append([]mcp.ServerOption{
			mcp.WithToolServer(s.toolServer),
			mcp.WithServerLogger(s.logger),
		}, s.serverOptions...)
		srv := newServerHandle(mcp.NewServer(s.info, c, options...))

		// One protocol server per connection; the registry owns the pair
		// from here until removal.
		if err := s.registry.Register(sessID, c, srv); err != nil {
			s.logger.Warn("refused SSE session",
				slog.String("sessionID", sessID),
				slog.String("err", err.Error()))
			refusal := sse.Message{
				Type: sse.Type("error"),
			}
			refusal.AppendData("server is shutting down")
			if err := sess.Send(&refusal); err == nil {
				_ = sess.Flush()
			}
			c.Stop()
			return
		}
		go srv.Serve()

		s.logger.Info("client connected", slog.String("sessionID", sessID))

		// Keep the stream open until the client goes away or the session is
		// released server-side by the sweep or a shutdown.
		select {
		case <-r.Context().Done():
		case <-c.done:
		}

		s.registry.Remove(sessID)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("failed to shutdown session server",
				slog.String("sessionID", sessID),
				slog.String("err", err.Error()))
		}
		c.Stop()

		s.logger.Info("client disconnected", slog.String("sessionID", sessID))
	})
}

// HandleMessage returns an http.Handler for processing client messages sent
// via POST requests. The handler expects a sessionID query parameter and a
// JSON-encoded message body. Messages are routed to the session's protocol
// server; a hit also keeps the session from going idle.
func (s *SSE) HandleMessage() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessID := r.URL.Query().Get("sessionID")
		if sessID == "" {
			nErr := fmt.Errorf("missing sessionID query parameter")
			s.logger.Warn("missing sessionID query parameter", slog.String("err", nErr.Error()))
			http.Error(w, nErr.Error(), http.StatusBadRequest)
			return
		}

		var msg mcp.JSONRPCMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			nErr := fmt.Errorf("failed to decode message: %w", err)
			s.logger.Warn("failed to decode message", slog.String("err", nErr.Error()))
			http.Error(w, nErr.Error(), http.StatusBadRequest)
			return
		}

		entry, ok := s.registry.Lookup(sessID)
		if !ok {
			http.Error(w, "session not found or expired", http.StatusNotFound)
			return
		}

		c, ok := entry.Conn.(*conn)
		if !ok {
			s.logger.Error("registry entry holds a foreign transport", slog.String("sessionID", sessID))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if err := c.Deliver(r.Context(), msg); err != nil {
			http.Error(w, "session not found or expired", http.StatusNotFound)
			return
		}
	})
}

// Shutdown closes every live session through the registry and stops
// accepting new ones. Safe to call more than once.
func (s *SSE) Shutdown(ctx context.Context) error {
	return s.registry.Shutdown(ctx)
}
