package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Server accepts TCP connections and runs one read loop per client,
// handing decoded records to the router on the client's lane.
type Server struct {
	cfg      *Config
	logger   *slog.Logger
	metrics  *Metrics
	pool     *Pool
	registry *Registry
	router   *Router

	mu sync.Mutex
	ln net.Listener

	conns   sync.WaitGroup
	stopped atomic.Bool
}

// New builds a server from cfg, filling unset fields with defaults.
func New(cfg *Config) *Server {
	cfg = cfg.withDefaults()
	metrics := NewMetrics(cfg.Registerer)
	registry := NewRegistry()
	return &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  metrics,
		pool:     NewPool(cfg.IdealLanes, cfg.Logger),
		registry: registry,
		router:   NewRouter(registry, cfg.Logger, metrics),
	}
}

// Registry exposes the live session set, for the ops surface.
func (s *Server) Registry() *Registry { return s.registry }

// Pool exposes the lane pool, for the ops surface.
func (s *Server) Pool() *Pool { return s.pool }

// Start begins listening on the configured address and accepting in
// the background. It returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("server started", "addr", ln.Addr().String(), "lanes", s.pool.Bound())
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound listen address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// Transient failure (EMFILE and friends): back off and
			// keep accepting.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > time.Second {
				delay = time.Second
			}
			s.logger.Warn("accept failed, retrying", "error", err, "backoff", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.ServeConn(conn)
		}()
	}
}

// ServeConn runs the full session lifecycle for one established
// connection and returns when it is torn down. It may be called
// directly with connections from other transports.
func (s *Server) ServeConn(conn net.Conn) {
	s.metrics.SessionOpened()
	lane := s.pool.Assign()
	s.metrics.SetLaneLoads(s.pool.Loads())

	sess := newSession(conn, lane, s.cfg, s.metrics)
	s.registry.Add(sess)
	sess.logger.Info("client connected", "lane", lane.Index())

	s.readLoop(sess)
	s.teardown(sess)
}

// teardown settles a session's fate after its transport ended. Records
// decoded before the end may still be queued on the lane, a login
// among them; they must finish routing before the departure is
// decided, or a just-authenticated session would announce itself and
// never announce leaving.
func (s *Server) teardown(sess *Session) {
	sess.lane.wait()
	sess.shutdown()
	s.router.Disconnect(sess)
	s.pool.Release(sess.lane)
	s.metrics.SetLaneLoads(s.pool.Loads())
	s.metrics.SessionClosed()
}

// readLoop feeds socket bytes through the session's decoder and posts
// each completed record to the session's lane. It returns on clean
// stream close, protocol error or transport failure.
func (s *Server) readLoop(sess *Session) {
	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		n, err := sess.conn.Read(buf)
		if n > 0 {
			s.metrics.ReadBytes(n)
			recs, derr := sess.dec.Feed(buf[:n])
			for _, rec := range recs {
				rec := rec
				sess.lane.Dispatch(func() { s.router.Process(sess, rec) })
			}
			if derr != nil {
				sess.logger.Warn("malformed input, dropping connection", "error", derr)
				s.metrics.ProtocolError()
				return
			}
			if sess.dec.Done() {
				sess.logger.Info("client closed stream")
				return
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				sess.logger.Info("client disconnected")
			default:
				sess.logger.Warn("read failed", "error", err)
			}
			return
		}
	}
}

// Stop closes the listener and every live connection, then waits for
// session teardown and lane drain. The wait is bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.stopped.Swap(true) {
		return nil
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	for _, sess := range s.registry.Snapshot() {
		_ = sess.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.pool.Shutdown()
	s.logger.Info("server stopped")
	return nil
}
