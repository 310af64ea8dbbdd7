package client

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/relay-dev/relay/pkg/relay"
)

func startServer(t *testing.T) string {
	t.Helper()
	srv := relay.New(&relay.Config{
		Addr:   "127.0.0.1:0",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("starting server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			t.Errorf("stopping server: %v", err)
		}
	})
	return srv.Addr().String()
}

type events struct {
	loggedIn    chan []User
	loginFailed chan string
	messages    chan receivedMessage
	joined      chan User
	left        chan User
	dropped     chan error
}

type receivedMessage struct {
	sender User
	text   string
}

func connect(t *testing.T, addr string) (*Client, *events) {
	t.Helper()
	ev := &events{
		loggedIn:    make(chan []User, 4),
		loginFailed: make(chan string, 4),
		messages:    make(chan receivedMessage, 16),
		joined:      make(chan User, 4),
		left:        make(chan User, 4),
		dropped:     make(chan error, 1),
	}
	c, err := Dial(context.Background(), addr, Handlers{
		OnLoggedIn:    func(roster []User) { ev.loggedIn <- roster },
		OnLoginFailed: func(reason string) { ev.loginFailed <- reason },
		OnMessage: func(sender User, text string) {
			ev.messages <- receivedMessage{sender, text}
		},
		OnUserJoined:   func(u User) { ev.joined <- u },
		OnUserLeft:     func(u User) { ev.left <- u },
		OnDisconnected: func(err error) { ev.dropped <- err },
	}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, ev
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func expectQuiet[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %v", what, v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLoginAndRoster(t *testing.T) {
	addr := startServer(t)

	alice, aliceEv := connect(t, addr)
	if err := alice.Login("alice"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if roster := recv(t, aliceEv.loggedIn, "alice login"); len(roster) != 0 {
		t.Fatalf("first login roster = %v, want empty", roster)
	}

	bob, bobEv := connect(t, addr)
	if err := bob.Login("bob"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	roster := recv(t, bobEv.loggedIn, "bob login")
	if len(roster) != 1 || roster[0].Name != "alice" || roster[0].Uid != alice.Uid() {
		t.Fatalf("bob's roster = %v, want [alice]", roster)
	}

	joined := recv(t, aliceEv.joined, "join announcement")
	if joined.Name != "bob" || joined.Uid != bob.Uid() {
		t.Fatalf("join announcement = %v, want bob", joined)
	}
}

func TestLoginRejectedForDuplicateName(t *testing.T) {
	addr := startServer(t)

	alice, aliceEv := connect(t, addr)
	if err := alice.Login("alice"); err != nil {
		t.Fatal(err)
	}
	recv(t, aliceEv.loggedIn, "alice login")

	imposter, impEv := connect(t, addr)
	if err := imposter.Login("alice"); err != nil {
		t.Fatal(err)
	}
	if reason := recv(t, impEv.loginFailed, "rejection"); reason == "" {
		t.Fatal("rejection carried no reason")
	}

	// A second attempt under a free name succeeds on the same
	// connection.
	if err := imposter.Login("alice2"); err != nil {
		t.Fatal(err)
	}
	recv(t, impEv.loggedIn, "retry login")
}

func TestBroadcastMessage(t *testing.T) {
	addr := startServer(t)

	alice, aliceEv := connect(t, addr)
	alice.Login("alice")
	recv(t, aliceEv.loggedIn, "alice login")
	bob, bobEv := connect(t, addr)
	bob.Login("bob")
	recv(t, bobEv.loggedIn, "bob login")
	recv(t, aliceEv.joined, "join announcement")

	if err := alice.Send("hello everyone"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	msg := recv(t, bobEv.messages, "broadcast")
	if msg.text != "hello everyone" {
		t.Errorf("text = %q, want %q", msg.text, "hello everyone")
	}
	if msg.sender.Name != "alice" || msg.sender.Uid != alice.Uid() {
		t.Errorf("sender = %v, want alice", msg.sender)
	}
	expectQuiet(t, aliceEv.messages, "echo of own broadcast")
}

func TestDirectMessage(t *testing.T) {
	addr := startServer(t)

	alice, aliceEv := connect(t, addr)
	alice.Login("alice")
	recv(t, aliceEv.loggedIn, "alice login")
	bob, bobEv := connect(t, addr)
	bob.Login("bob")
	recv(t, bobEv.loggedIn, "bob login")
	carol, carolEv := connect(t, addr)
	carol.Login("carol")
	recv(t, carolEv.loggedIn, "carol login")

	if err := alice.SendTo(bob.Uid(), "psst"); err != nil {
		t.Fatalf("SendTo() error: %v", err)
	}
	msg := recv(t, bobEv.messages, "direct message")
	if msg.text != "psst" || msg.sender.Name != "alice" {
		t.Errorf("direct message = %+v", msg)
	}
	expectQuiet(t, carolEv.messages, "message addressed to bob")

	// A stale uid is dropped without any error surfacing.
	if err := alice.SendTo("no-such-uid", "void"); err != nil {
		t.Fatalf("SendTo() to unknown uid error: %v", err)
	}
	expectQuiet(t, aliceEv.messages, "bounce for unknown uid")
}

func TestUserLeftAnnouncement(t *testing.T) {
	addr := startServer(t)

	alice, aliceEv := connect(t, addr)
	alice.Login("alice")
	recv(t, aliceEv.loggedIn, "alice login")
	bob, bobEv := connect(t, addr)
	bob.Login("bob")
	recv(t, bobEv.loggedIn, "bob login")
	recv(t, aliceEv.joined, "join announcement")

	if err := bob.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	left := recv(t, aliceEv.left, "leave announcement")
	if left.Name != "bob" || left.Uid != bob.Uid() {
		t.Fatalf("leave announcement = %v, want bob", left)
	}
}

func TestCloseFiresDisconnectedOnce(t *testing.T) {
	addr := startServer(t)

	c, ev := connect(t, addr)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := recv(t, ev.dropped, "disconnect"); err != nil {
		t.Fatalf("local close surfaced error: %v", err)
	}
	recv(t, c.Done(), "done channel")

	if err := c.Send("too late"); err != ErrClosed {
		t.Fatalf("Send() after close = %v, want ErrClosed", err)
	}
}
