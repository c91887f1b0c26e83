// Package web implements the HTTP and WebSocket API.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wuweiapp/wuwei/internal/agent"
	"github.com/wuweiapp/wuwei/internal/buildinfo"
	"github.com/wuweiapp/wuwei/internal/chat"
	"github.com/wuweiapp/wuwei/internal/journal"
	"github.com/wuweiapp/wuwei/internal/mantras"
	"github.com/wuweiapp/wuwei/internal/todos"
	"github.com/wuweiapp/wuwei/internal/users"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Stores bundles the persistence layers the server serves from.
type Stores struct {
	Users   *users.Store
	Chat    *chat.Store
	Todos   *todos.Store
	Mantras *mantras.Store
	Journal *journal.Store
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	loop    *agent.Loop
	stores  Stores
	timeout time.Duration
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server. timeout bounds each agent run
// started from the chat socket.
func NewServer(address string, port int, loop *agent.Loop, stores Stores, timeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Server{
		address: address,
		port:    port,
		loop:    loop,
		stores:  stores,
		timeout: timeout,
		logger:  logger,
	}
}

// Handler builds the full route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("POST /v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /v1/auth/login", s.handleLogin)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	// Conversation socket
	mux.Handle("GET /ws/chat", s.requireAuth(http.HandlerFunc(s.handleChatSocket)))

	// Todos
	mux.Handle("GET /v1/todos", s.requireAuth(http.HandlerFunc(s.handleTodoList)))
	mux.Handle("POST /v1/todos", s.requireAuth(http.HandlerFunc(s.handleTodoCreate)))
	mux.Handle("PUT /v1/todos/{id}", s.requireAuth(http.HandlerFunc(s.handleTodoUpdate)))
	mux.Handle("POST /v1/todos/{id}/complete", s.requireAuth(http.HandlerFunc(s.handleTodoComplete)))
	mux.Handle("DELETE /v1/todos/{id}", s.requireAuth(http.HandlerFunc(s.handleTodoDelete)))

	// Mantras
	mux.Handle("GET /v1/mantras", s.requireAuth(http.HandlerFunc(s.handleMantraList)))
	mux.Handle("POST /v1/mantras", s.requireAuth(http.HandlerFunc(s.handleMantraCreate)))
	mux.Handle("PUT /v1/mantras/{id}", s.requireAuth(http.HandlerFunc(s.handleMantraUpdate)))
	mux.Handle("DELETE /v1/mantras/{id}", s.requireAuth(http.HandlerFunc(s.handleMantraDelete)))

	// Daily view and journal
	mux.Handle("GET /v1/days/{date}", s.requireAuth(http.HandlerFunc(s.handleDayGet)))
	mux.Handle("PUT /v1/days/{date}/reflection", s.requireAuth(http.HandlerFunc(s.handleReflectionSet)))

	// Transcript
	mux.Handle("GET /v1/chat/history", s.requireAuth(http.HandlerFunc(s.handleChatHistory)))

	// Account
	mux.Handle("PUT /v1/account/api-key", s.requireAuth(http.HandlerFunc(s.handleSetAPIKey)))

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: the chat socket stays open indefinitely and
		// manages its own per-message deadline.
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "WuWei",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
