// Package rpc exposes the swap session over JSON-RPC 2.0 and pushes session
// events to WebSocket clients.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Klingon-tech/embarcadero/internal/backend"
	"github.com/Klingon-tech/embarcadero/internal/chain"
	"github.com/Klingon-tech/embarcadero/internal/storage"
	"github.com/Klingon-tech/embarcadero/internal/swap"
	"github.com/Klingon-tech/embarcadero/pkg/helpers"
	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

// Version is reported by rpc clients and the daemon.
const Version = "0.1.0"

// ConsensusSource provides the last consensus reading.
type ConsensusSource interface {
	Latest() (chain.Reading, bool)
	Err() error
}

// Config holds the dependencies of the RPC server.
type Config struct {
	Session   *swap.Session
	Store     *storage.Storage // optional, enables swap_history and swap_events
	Consensus ConsensusSource  // optional, enables chain_consensus
	ExportDir string
	Logger    *logging.Logger
}

// Server is a JSON-RPC 2.0 server.
type Server struct {
	session   *swap.Session
	store     *storage.Storage
	consensus ConsensusSource
	exportDir string
	log       *logging.Logger
	wsHub     *WSHub

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Application error codes.
const (
	InvalidTransaction = -32001
	SessionError       = -32002
	RemoteError        = -32003
	Unavailable        = -32004
)

// NewServer creates a new JSON-RPC server and subscribes it to session
// events.
func NewServer(cfg *Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logging.GetDefault().Component("rpc")
	}
	exportDir := cfg.ExportDir
	if exportDir == "" {
		exportDir = "."
	}

	s := &Server{
		session:   cfg.Session,
		store:     cfg.Store,
		consensus: cfg.Consensus,
		exportDir: exportDir,
		log:       log,
		wsHub:     NewWSHub(log.Component("ws")),
		handlers:  make(map[string]Handler),
	}
	s.registerHandlers()
	s.session.OnEvent(s.broadcastEvent)
	return s
}

// registerHandlers registers all RPC method handlers.
func (s *Server) registerHandlers() {
	s.handlers["swap_status"] = s.swapStatus
	s.handlers["swap_load"] = s.swapLoad
	s.handlers["swap_loadFile"] = s.swapLoadFile
	s.handlers["swap_create"] = s.swapCreate
	s.handlers["swap_sign"] = s.swapSign
	s.handlers["swap_reset"] = s.swapReset
	s.handlers["swap_export"] = s.swapExport
	s.handlers["swap_navigate"] = s.swapNavigate
	s.handlers["swap_dismissError"] = s.swapDismissError
	s.handlers["swap_history"] = s.swapHistory
	s.handlers["swap_events"] = s.swapEvents
	s.handlers["chain_consensus"] = s.chainConsensus
	s.handlers["rpc_methods"] = s.rpcMethods
}

// Handler returns the HTTP handler serving RPC and WebSocket requests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("OPTIONS /", s.handleCORS)
	mux.HandleFunc("OPTIONS /{$}", s.handleCORS)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /ws/", s.handleWS)
	return corsMiddleware(mux)
}

// Start starts the RPC server.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	go s.wsHub.Run()

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", listener.Addr().String(), "ws", "ws://"+listener.Addr().String()+"/ws")
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop stops the RPC server and disconnects WebSocket clients.
func (s *Server) Stop() error {
	s.wsHub.Stop()
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleRPC handles incoming JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		rpcErr := toRPCError(err)
		if rpcErr.Code == InternalError {
			s.log.Warn("RPC method failed", "method", req.Method, "error", err)
		}
		s.writeError(w, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}

	s.writeResult(w, req.ID, result)
}

// toRPCError maps domain errors onto error codes.
func toRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var verr *swap.ValidationError
	if errors.As(err, &verr) {
		return &Error{Code: InvalidTransaction, Message: err.Error(), Data: verr.Path}
	}

	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, swap.ErrFileRead):
		return &Error{Code: InvalidTransaction, Message: err.Error()}
	case errors.Is(err, swap.ErrInvalidStep),
		errors.Is(err, swap.ErrUnknownRoute),
		errors.Is(err, helpers.ErrEmptyAmount),
		errors.Is(err, helpers.ErrMissingUnits),
		errors.Is(err, helpers.ErrInvalidCurrency),
		errors.Is(err, helpers.ErrNotInteger),
		errors.Is(err, helpers.ErrInvalidPair):
		return &Error{Code: InvalidParams, Message: err.Error()}
	case errors.Is(err, swap.ErrNoTransaction),
		errors.Is(err, swap.ErrSessionFailed),
		errors.Is(err, swap.ErrSessionClosed),
		errors.Is(err, swap.ErrSuperseded),
		errors.Is(err, swap.ErrUnknownStage):
		return &Error{Code: SessionError, Message: err.Error()}
	case errors.Is(err, backend.ErrUnavailable), errors.Is(err, backend.ErrRateLimited):
		return &Error{Code: Unavailable, Message: err.Error()}
	case errors.As(err, &statusErr):
		return &Error{Code: RemoteError, Message: err.Error(), Data: statusErr.Code}
	case errors.Is(err, swap.ErrSummarizationFailed),
		errors.Is(err, swap.ErrSignFailed),
		errors.Is(err, swap.ErrCreateFailed):
		return &Error{Code: RemoteError, Message: err.Error()}
	}
	return &Error{Code: InternalError, Message: err.Error()}
}

// writeResult writes a successful response.
func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// broadcastEvent forwards a session event to WebSocket clients.
func (s *Server) broadcastEvent(ev swap.Event) {
	s.wsHub.Broadcast(EventType(ev.Type), ev)
}

// BroadcastConsensus pushes a consensus reading to WebSocket clients.
func (s *Server) BroadcastConsensus(r chain.Reading) {
	s.wsHub.Broadcast(EventConsensus, r)
}

// handleCORS handles CORS preflight requests.
func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers to all responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
