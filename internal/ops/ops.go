// Package ops serves relayd's HTTP operations surface: health,
// Prometheus metrics and a WebSocket bridge into the chat relay for
// clients that cannot open raw TCP.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relay-dev/relay/pkg/relay"
)

// Config configures the ops server.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// Logger receives the ops server's log events.
	Logger *slog.Logger

	// Gatherer backs the /metrics endpoint. Usually the same registry
	// handed to the relay server.
	Gatherer prometheus.Gatherer

	// Relay is the chat server that WebSocket connections are bridged
	// into.
	Relay *relay.Server
}

// Server is the HTTP ops server.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	handler  http.Handler
	upgrader websocket.Upgrader

	mu   sync.Mutex
	ln   net.Listener
	http *http.Server
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.Relay != nil {
		r.Get("/ws", s.handleWS)
	}
	s.handler = r
	return s
}

// Handler returns the routed HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.handler}
	s.mu.Lock()
	s.ln = ln
	s.http = srv
	s.mu.Unlock()
	s.logger.Info("ops server started", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops serving, waiting for in-flight requests up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if s.cfg.Relay != nil {
		status["sessions"] = s.cfg.Relay.Registry().Len()
		status["lanes"] = s.cfg.Relay.Pool().Loads()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("writing health response", "error", err)
	}
}

// handleWS upgrades the request and runs the relay's full session
// lifecycle over the WebSocket, treating binary messages as the byte
// stream.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.logger.Info("websocket client bridged", "remote_addr", ws.RemoteAddr().String())
	s.cfg.Relay.ServeConn(newWSConn(ws))
}
