package relay

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relay-dev/relay/pkg/protocol"
)

// Router applies the login state machine and delivery rules to decoded
// records. Process runs on the sender's lane; every write it triggers
// is posted to the target session's own lane, never performed inline.
type Router struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer

	// loginMu serializes the duplicate-name check against the name
	// claim, so exactly one of two racing logins for the same name
	// wins.
	loginMu sync.Mutex
}

func NewRouter(registry *Registry, logger *slog.Logger, metrics *Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("relay/router"),
	}
}

// Process routes one record from sess. Runs on the session's lane.
func (r *Router) Process(sess *Session, rec protocol.Record) {
	_, span := r.tracer.Start(context.Background(), "router.process",
		trace.WithAttributes(
			attribute.String("record.type", rec.Type()),
			attribute.Bool("session.authenticated", sess.Authenticated()),
		))
	defer span.End()

	r.metrics.RecordRouted(rec.Type())
	if sess.Authenticated() {
		r.routeAuthenticated(sess, rec)
	} else {
		r.handleLogin(sess, rec)
	}
}

// handleLogin processes records from a session that has not logged in.
// Anything but a login record is ignored.
func (r *Router) handleLogin(sess *Session, rec protocol.Record) {
	if !strings.EqualFold(rec.Type(), protocol.TypeLogin) {
		sess.logger.Debug("ignoring record from anonymous session",
			"type", rec.Type())
		return
	}
	name := normalizeName(rec.Text(protocol.TagUserName))
	uid := rec.Text(protocol.TagUserUid)
	if name == "" || uid == "" {
		sess.logger.Debug("ignoring login with empty identity")
		r.metrics.AuthFailure("empty_identity")
		return
	}

	r.loginMu.Lock()
	for _, other := range r.registry.Snapshot() {
		if other != sess && other.Name() == name {
			r.loginMu.Unlock()
			r.metrics.AuthFailure("duplicate_name")
			sess.logger.Info("login rejected, name in use", "user", name)
			reply := protocol.NewRecordOfType(protocol.TypeLogin)
			reply.Set(protocol.TagSuccess, protocol.Bool(false))
			reply.Set(protocol.TagReason, protocol.Text("duplicate username"))
			sess.deliver(reply)
			return
		}
	}
	sess.setName(name)
	sess.setUid(uid)
	r.loginMu.Unlock()

	sess.logger.Info("user logged in", "user", name, "uid", uid)

	reply := protocol.NewRecordOfType(protocol.TypeLogin)
	reply.Set(protocol.TagSuccess, protocol.Bool(true))
	if roster := r.registry.Roster(sess); len(roster) > 0 {
		reply.Set(protocol.TagUsers, protocol.TextList(encodeRoster(roster)))
	}
	sess.deliver(reply)

	joined := protocol.NewRecordOfType(protocol.TypeNewUser)
	joined.Set(protocol.TagUserName, protocol.Text(name))
	joined.Set(protocol.TagUserUid, protocol.Text(uid))
	r.broadcast(joined, sess)
}

// routeAuthenticated relays a record from a logged-in sender, stamping
// the sender's identity so clients cannot spoof it.
func (r *Router) routeAuthenticated(sess *Session, rec protocol.Record) {
	out := rec.Clone()
	out.Set(protocol.TagSenderName, protocol.Text(sess.Name()))
	out.Set(protocol.TagSenderUid, protocol.Text(sess.Uid()))

	receiver := rec.Text(protocol.TagReceiverUid)
	if receiver == "" || receiver == protocol.ReceiverAll {
		r.broadcast(out, sess)
		r.metrics.Broadcast()
		return
	}
	if target := r.registry.FindByUid(receiver); target != nil {
		target.deliver(out)
		r.metrics.Unicast()
		return
	}
	// No such session: the record is dropped, the sender is not told.
	sess.logger.Debug("dropping record for unknown receiver",
		"receiver_uid", receiver)
	r.metrics.UnicastMiss()
}

// Disconnect removes sess from the registry and, if it had logged in,
// announces the departure to everyone still connected. Called exactly
// once per connection, after its read loop has returned.
func (r *Router) Disconnect(sess *Session) {
	r.registry.Remove(sess)
	if !sess.Authenticated() {
		return
	}
	name, uid := sess.Name(), sess.Uid()
	sess.logger.Info("user disconnected", "user", name, "uid", uid)
	left := protocol.NewRecordOfType(protocol.TypeUserDisconnected)
	left.Set(protocol.TagUserName, protocol.Text(name))
	left.Set(protocol.TagUserUid, protocol.Text(uid))
	r.broadcast(left, nil)
}

// broadcast delivers rec to every logged-in session except exclude.
func (r *Router) broadcast(rec protocol.Record, exclude *Session) {
	for _, s := range r.registry.Snapshot() {
		if s == exclude || !s.Authenticated() {
			continue
		}
		s.deliver(rec)
	}
}

// normalizeName collapses runs of whitespace in a display name to
// single spaces and trims the ends.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// encodeRoster flattens roster entries to the wire form, one text
// element per user with name and uid joined by a newline.
func encodeRoster(roster []RosterEntry) []string {
	out := make([]string, len(roster))
	for i, e := range roster {
		out[i] = e.Name + "\n" + e.Uid
	}
	return out
}
