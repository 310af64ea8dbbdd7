package ops

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relay-dev/relay/pkg/protocol"
	"github.com/relay-dev/relay/pkg/relay"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) (*Server, *relay.Server, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	rs := relay.New(&relay.Config{
		Logger:     testLogger(),
		Registerer: reg,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rs.Stop(ctx)
	})
	ops := New(Config{
		Logger:   testLogger(),
		Gatherer: reg,
		Relay:    rs,
	})
	ts := httptest.NewServer(ops.Handler())
	t.Cleanup(ts.Close)
	return ops, rs, ts
}

func TestHealthEndpoint(t *testing.T) {
	_, _, ts := newHarness(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Status != "ok" || body.Sessions != 0 {
		t.Fatalf("body = %+v, want ok with 0 sessions", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, ts := newHarness(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "relay_sessions_total") {
		t.Error("exposition does not include relay_sessions_total")
	}
}

func TestWebSocketBridge(t *testing.T) {
	_, _, ts := newHarness(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	defer ws.Close()

	login := protocol.NewRecordOfType(protocol.TypeLogin)
	login.Set(protocol.TagUserName, protocol.Text("web"))
	login.Set(protocol.TagUserUid, protocol.Text("w1"))
	enc := protocol.NewEncoder()
	if err := enc.AppendRecord(login); err != nil {
		t.Fatal(err)
	}
	// 0x9f opens the connection-lifetime record sequence.
	payload := append([]byte{0x9f}, enc.Bytes()...)
	if err := ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("writing login: %v", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	dec := protocol.NewStreamDecoder()
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("reading reply: %v", err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		recs, derr := dec.Feed(data)
		if derr != nil {
			t.Fatalf("decoding reply: %v", derr)
		}
		if len(recs) == 0 {
			continue
		}
		reply := recs[0]
		if v, ok := reply.Get(protocol.TagSuccess); !ok || !v.AsBool() {
			t.Fatalf("bridged login rejected: %s", &reply)
		}
		return
	}
}
