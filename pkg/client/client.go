// Package client is a Go client for the relay wire protocol. It keeps
// the socket plumbing and record bookkeeping out of callers' hands:
// connect, log in, send, and receive everything else through handlers.
package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/relay-dev/relay/pkg/protocol"
)

// User identifies a chat participant.
type User struct {
	Name string
	Uid  string
}

// Handlers receives server events. Every handler is optional and is
// called from the client's single read goroutine, so a handler that
// blocks stalls the whole connection.
type Handlers struct {
	// OnLoggedIn fires when the server accepts the login. The roster
	// lists everyone already connected, possibly empty.
	OnLoggedIn func(roster []User)

	// OnLoginFailed fires when the server rejects the login.
	OnLoginFailed func(reason string)

	// OnMessage fires for each chat message, broadcast or addressed.
	OnMessage func(sender User, text string)

	// OnUserJoined fires when another user logs in.
	OnUserJoined func(u User)

	// OnUserLeft fires when another user disconnects.
	OnUserLeft func(u User)

	// OnRoster fires for standalone roster records.
	OnRoster func(roster []User)

	// OnDisconnected fires once when the connection ends. err is nil
	// when the close was local or the server ended the stream cleanly.
	OnDisconnected func(err error)
}

// ErrClosed is returned by writes on a closed client.
var ErrClosed = errors.New("client: connection closed")

// Client is one connection to a relay server. Safe for concurrent
// writes; reads are delivered through Handlers.
type Client struct {
	conn     net.Conn
	handlers Handlers
	logger   *slog.Logger

	writeMu sync.Mutex
	enc     *protocol.StreamEncoder

	uid    string
	closed atomic.Bool
	once   sync.Once
	done   chan struct{}
}

// Option adjusts client construction.
type Option func(*Client)

// WithLogger sets the client's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Dial connects to a relay server and starts the read loop.
func Dial(ctx context.Context, addr string, handlers Handlers, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	c := &Client{
		conn:     conn,
		handlers: handlers,
		logger:   slog.Default(),
		enc:      protocol.NewStreamEncoder(conn),
		uid:      newUid(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c, nil
}

// Uid returns the identity this client presents at login.
func (c *Client) Uid() string { return c.uid }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Login asks the server to register this client under name. The
// outcome arrives via OnLoggedIn or OnLoginFailed.
func (c *Client) Login(name string) error {
	rec := protocol.NewRecordOfType(protocol.TypeLogin)
	rec.Set(protocol.TagUserName, protocol.Text(name))
	rec.Set(protocol.TagUserUid, protocol.Text(c.uid))
	return c.send(rec)
}

// Send broadcasts a chat message to every logged-in user.
func (c *Client) Send(text string) error {
	rec := protocol.NewRecordOfType(protocol.TypeMessage)
	rec.Set(protocol.TagText, protocol.Text(text))
	return c.send(rec)
}

// SendTo delivers a chat message to the single user with the given
// uid. The server drops it silently when no such user exists.
func (c *Client) SendTo(uid, text string) error {
	rec := protocol.NewRecordOfType(protocol.TypeMessage)
	rec.Set(protocol.TagText, protocol.Text(text))
	rec.Set(protocol.TagReceiverUid, protocol.Text(uid))
	return c.send(rec)
}

// Close terminates the stream and the connection. Safe to call more
// than once.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.writeMu.Lock()
	_ = c.enc.Close()
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) send(rec protocol.Record) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.enc.Encode(rec); err != nil {
		return fmt.Errorf("client: send %s record: %w", rec.Type(), err)
	}
	return nil
}

func (c *Client) readLoop() {
	var endErr error
	dec := protocol.NewStreamDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			recs, derr := dec.Feed(buf[:n])
			for _, rec := range recs {
				c.dispatch(rec)
			}
			if derr != nil {
				endErr = derr
				break
			}
			if dec.Done() {
				break
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !c.closed.Load() {
				endErr = err
			}
			break
		}
	}
	c.closed.Store(true)
	_ = c.conn.Close()
	c.once.Do(func() {
		if c.handlers.OnDisconnected != nil {
			c.handlers.OnDisconnected(endErr)
		}
		close(c.done)
	})
}

func (c *Client) dispatch(rec protocol.Record) {
	switch rec.Type() {
	case protocol.TypeLogin:
		v, ok := rec.Get(protocol.TagSuccess)
		if ok && v.AsBool() {
			if c.handlers.OnLoggedIn != nil {
				c.handlers.OnLoggedIn(parseRoster(rec))
			}
			return
		}
		if c.handlers.OnLoginFailed != nil {
			c.handlers.OnLoginFailed(rec.Text(protocol.TagReason))
		}
	case protocol.TypeMessage:
		if c.handlers.OnMessage != nil {
			sender := User{
				Name: rec.Text(protocol.TagSenderName),
				Uid:  rec.Text(protocol.TagSenderUid),
			}
			c.handlers.OnMessage(sender, rec.Text(protocol.TagText))
		}
	case protocol.TypeNewUser:
		if c.handlers.OnUserJoined != nil {
			c.handlers.OnUserJoined(recordUser(rec))
		}
	case protocol.TypeUserDisconnected:
		if c.handlers.OnUserLeft != nil {
			c.handlers.OnUserLeft(recordUser(rec))
		}
	case protocol.TypeUsers:
		if c.handlers.OnRoster != nil {
			c.handlers.OnRoster(parseRoster(rec))
		}
	default:
		c.logger.Debug("ignoring record of unknown type", "type", rec.Type())
	}
}

func recordUser(rec protocol.Record) User {
	return User{
		Name: rec.Text(protocol.TagUserName),
		Uid:  rec.Text(protocol.TagUserUid),
	}
}

// parseRoster unpacks the wire roster, one "name\nuid" text per user.
func parseRoster(rec protocol.Record) []User {
	v, ok := rec.Get(protocol.TagUsers)
	if !ok {
		return nil
	}
	entries := v.AsTextList()
	out := make([]User, 0, len(entries))
	for _, e := range entries {
		name, uid, _ := strings.Cut(e, "\n")
		out = append(out, User{Name: name, Uid: uid})
	}
	return out
}

func newUid() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("client: no entropy: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
