package relay

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relay-dev/relay/pkg/protocol"
)

// Session is one client connection. Its socket, decoder and encoder
// are owned by the assigned lane: routing and writes for the session
// always run there. The identity fields are written only from that
// lane but read from any, so each carries its own lock.
type Session struct {
	conn    net.Conn
	lane    *Lane
	logger  *slog.Logger
	metrics *Metrics

	dec *protocol.StreamDecoder
	enc *protocol.StreamEncoder

	writeTimeout time.Duration

	nameMu sync.RWMutex
	name   string

	uidMu sync.RWMutex
	uid   string

	closed atomic.Bool
}

func newSession(conn net.Conn, lane *Lane, cfg *Config, metrics *Metrics) *Session {
	return &Session{
		conn:         conn,
		lane:         lane,
		logger:       cfg.Logger.With("remote_addr", conn.RemoteAddr().String()),
		metrics:      metrics,
		dec:          protocol.NewStreamDecoder(),
		enc:          protocol.NewStreamEncoder(conn),
		writeTimeout: cfg.WriteTimeout,
	}
}

// Name returns the session's display name, empty until login.
func (s *Session) Name() string {
	s.nameMu.RLock()
	defer s.nameMu.RUnlock()
	return s.name
}

func (s *Session) setName(name string) {
	s.nameMu.Lock()
	s.name = name
	s.nameMu.Unlock()
}

// Uid returns the session's unique id, empty until login.
func (s *Session) Uid() string {
	s.uidMu.RLock()
	defer s.uidMu.RUnlock()
	return s.uid
}

func (s *Session) setUid(uid string) {
	s.uidMu.Lock()
	s.uid = uid
	s.uidMu.Unlock()
}

// Authenticated reports whether the session has logged in.
func (s *Session) Authenticated() bool {
	return s.Name() != ""
}

// Lane returns the lane that owns this session.
func (s *Session) Lane() *Lane { return s.lane }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// deliver schedules rec to be written on the session's own lane and
// returns immediately. Records delivered to the same session keep
// their scheduling order.
func (s *Session) deliver(rec protocol.Record) {
	s.lane.Dispatch(func() { s.write(rec) })
}

// write encodes one record to the socket. Owning lane only.
func (s *Session) write(rec protocol.Record) {
	if s.closed.Load() {
		return
	}
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.enc.Encode(rec); err != nil {
		if !s.closed.Load() {
			s.logger.Error("write failed, dropping connection", "error", err)
			s.metrics.WriteError()
		}
		s.closed.Store(true)
		_ = s.conn.Close()
	}
}

// shutdown flushes the session on its own lane: deliveries scheduled
// before it still go out, then the stream break is written and the
// socket closed.
func (s *Session) shutdown() {
	s.lane.Dispatch(func() {
		if s.closed.Swap(true) {
			return
		}
		if s.writeTimeout > 0 {
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		}
		_ = s.enc.Close()
		_ = s.conn.Close()
	})
}
