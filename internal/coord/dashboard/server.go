// Package dashboard serves the admin sync dashboard: a small JSON API over
// the admin actions and a WebSocket feed of pass and status updates.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cdswerx/cdsync/internal/coord/access"
	"github.com/cdswerx/cdsync/internal/coord/syncer"
)

// MessageType names a dashboard message.
type MessageType string

const (
	// MessageTypePassComplete is sent after every coordination pass
	MessageTypePassComplete MessageType = "pass_complete"

	// MessageTypeStatus carries a fresh status report
	MessageTypeStatus MessageType = "status"

	// MessageTypeReset is sent after a sync reset
	MessageTypeReset MessageType = "sync_reset"
)

// UserHeader carries the calling user's name.
const UserHeader = "X-CDS-User"

// Message is the envelope of every WebSocket message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// PageLoader opens a page-load scope per admin request.
// *syncer.Coordinator implements it.
type PageLoader interface {
	NewRequest() *syncer.Request
}

// Config holds server configuration
type Config struct {
	// Host to bind (default: all interfaces)
	Host string

	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Policy gates the WebSocket feed and page-load passes on sync:status
	// (default: allow all; the actions still run their own checks)
	Policy access.Policy

	// PageLoad, when set, runs one page_load pass per dashboard page or
	// status request. Leave nil when auto sync is off.
	PageLoad PageLoader

	// ReadTimeout and WriteTimeout bound plain HTTP requests
	// (defaults 10s and 30s). WebSocket connections are exempt.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Logger for server activity (default: log.Default())
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		Logger:       log.Default(),
	}
}

// Server owns the HTTP listener, the API routes and the WebSocket clients.
type Server struct {
	addr     string
	actions  Actions
	policy   access.Policy
	pageLoad PageLoader
	config   *Config

	listener net.Listener
	server   *http.Server

	clients   *clientSet
	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a dashboard server over the admin actions.
func NewServer(actions Actions, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Policy == nil {
		config.Policy = access.AllowAll{}
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		actions:   actions,
		policy:    config.Policy,
		pageLoad:  config.PageLoad,
		config:    config,
		clients:   newClientSet(),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.withPageLoad(s.handleStatus))
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /{$}", s.withPageLoad(s.handleRoot))
	return mux
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes every client and shuts the server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	s.cancel()
	s.clients.closeAll()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// withPageLoad runs the page-load trigger before next, once per request,
// for callers allowed to see status.
func (s *Server) withPageLoad(next http.HandlerFunc) http.HandlerFunc {
	if s.pageLoad == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if s.policy.CanAccess(r.Header.Get(UserHeader), access.ResourceStatus) {
			if _, _, err := s.pageLoad.NewRequest().OnPageLoad(r.Context()); err != nil {
				s.logger.Printf("WARNING: page load pass failed: %v", err)
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>CDSWerx Sync</title>
</head>
<body>
    <h1>CDSWerx Sync Dashboard</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Status: <a href="/api/status">/api/status</a>, history: <a href="/api/history">/api/history</a></p>
    <p>Send the <code>%s</code> header to identify yourself.</p>
</body>
</html>`, r.Host, UserHeader)
}

// GetAddr returns the listening address once started, else the configured one.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	return s.clients.len()
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
