package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/go-mcp"
)

// Wire protocol constants for the plain HTTP transport.
const (
	protocolVersion = "2024-11-05"

	methodInitialize = "initialize"
	methodPing       = "ping"
)

const (
	jsonRPCParseErrorCode     = -32700
	jsonRPCInvalidRequestCode = -32600
	jsonRPCMethodNotFoundCode = -32601
	jsonRPCInternalErrorCode  = -32603
)

type initializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    mcp.ServerCapabilities `json:"capabilities"`
	ServerInfo      mcp.Info               `json:"serverInfo"`
	Instructions    string                 `json:"instructions,omitempty"`
}

// Proxy serves MCP over plain HTTP request/response pairs: each POST
// carries one JSON-RPC message and the reply, if any, is the HTTP body.
// There is no stream and no session state, so clients that cannot hold an
// SSE connection open can still list and call tools. Notifications are
// acknowledged with 202 and no body.
type Proxy struct {
	info       mcp.Info
	toolServer mcp.ToolServer
	logger     *slog.Logger
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithProxyLogger routes proxy logs to the given logger.
func WithProxyLogger(logger *slog.Logger) ProxyOption {
	return func(p *Proxy) {
		p.logger = logger.With(slog.String("component", "proxy"))
	}
}

// NewProxy creates a stateless HTTP proxy in front of the given tool server.
func NewProxy(info mcp.Info, toolServer mcp.ToolServer, options ...ProxyOption) *Proxy {
	p := &Proxy{
		info:       info,
		toolServer: toolServer,
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Handler returns an http.Handler that dispatches one JSON-RPC message per
// POST request.
func (p *Proxy) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var msg mcp.JSONRPCMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			p.writeError(w, "", jsonRPCParseErrorCode,
				fmt.Errorf("failed to decode message: %w", err).Error())
			return
		}

		if msg.JSONRPC != mcp.JSONRPCVersion {
			p.writeError(w, msg.ID, jsonRPCInvalidRequestCode, "unsupported jsonrpc version")
			return
		}

		// A message without an ID is a notification; there is nothing to
		// respond to.
		if msg.ID == "" {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		switch msg.Method {
		case methodInitialize:
			p.handleInitialize(w, msg)
		case methodPing:
			p.writeMessage(w, mcp.JSONRPCMessage{
				JSONRPC: mcp.JSONRPCVersion,
				ID:      msg.ID,
			})
		case mcp.MethodToolsList:
			p.handleListTools(w, r, msg)
		case mcp.MethodToolsCall:
			p.handleCallTool(w, r, msg)
		default:
			p.writeError(w, msg.ID, jsonRPCMethodNotFoundCode,
				fmt.Sprintf("method not found: %s", msg.Method))
		}
	})
}

// Health returns a liveness handler reporting {"status":"ok"}.
func Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

func (p *Proxy) handleInitialize(w http.ResponseWriter, msg mcp.JSONRPCMessage) {
	p.writeResult(w, msg.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsCapability{},
		},
		ServerInfo: p.info,
	})
}

func (p *Proxy) handleListTools(w http.ResponseWriter, r *http.Request, msg mcp.JSONRPCMessage) {
	var params mcp.ListToolsParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			p.writeError(w, msg.ID, jsonRPCInternalErrorCode,
				fmt.Errorf("failed to unmarshal params: %w", err).Error())
			return
		}
	}

	result, err := p.toolServer.ListTools(r.Context(), params, nopProgressReporter, unsupportedRequestClient)
	if err != nil {
		p.writeError(w, msg.ID, jsonRPCInternalErrorCode,
			fmt.Errorf("failed to list tools: %w", err).Error())
		return
	}

	p.writeResult(w, msg.ID, result)
}

func (p *Proxy) handleCallTool(w http.ResponseWriter, r *http.Request, msg mcp.JSONRPCMessage) {
	var params mcp.CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		p.writeError(w, msg.ID, jsonRPCInternalErrorCode,
			fmt.Errorf("failed to unmarshal params: %w", err).Error())
		return
	}

	result, err := p.toolServer.CallTool(r.Context(), params, nopProgressReporter, unsupportedRequestClient)
	if err != nil {
		// Tool failures are results with isError set, not protocol errors.
		result = mcp.CallToolResult{
			Content: []mcp.Content{
				{
					Type: mcp.ContentTypeText,
					Text: err.Error(),
				},
			},
			IsError: true,
		}
	}

	p.writeResult(w, msg.ID, result)
}

func (p *Proxy) writeResult(w http.ResponseWriter, id mcp.MustString, result any) {
	resBs, err := json.Marshal(result)
	if err != nil {
		p.writeError(w, id, jsonRPCInternalErrorCode, err.Error())
		return
	}
	p.writeMessage(w, mcp.JSONRPCMessage{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      id,
		Result:  resBs,
	})
}

func (p *Proxy) writeError(w http.ResponseWriter, id mcp.MustString, code int, message string) {
	p.writeMessage(w, mcp.JSONRPCMessage{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      id,
		Error: &mcp.JSONRPCError{
			Code:    code,
			Message: message,
		},
	})
}

func (p *Proxy) writeMessage(w http.ResponseWriter, msg mcp.JSONRPCMessage) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		p.logger.Error("failed to write response", slog.String("err", err.Error()))
	}
}

func nopProgressReporter(mcp.ProgressParams) {}

// unsupportedRequestClient rejects server-to-client requests; there is no
// client connection to route them over on this transport.
func unsupportedRequestClient(mcp.JSONRPCMessage) (mcp.JSONRPCMessage, error) {
	return mcp.JSONRPCMessage{}, fmt.Errorf("client requests are not supported on the http transport")
}
