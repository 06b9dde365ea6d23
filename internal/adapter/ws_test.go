package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestRun_ConnectSubscribeConsume(t *testing.T) {
	var gotHeader atomic.Value
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-Test-Auth"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		// Wait for the subscription, then deliver one frame.
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
		c.WriteMessage(websocket.TextMessage, []byte(`{"hello":"world"}`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan []byte, 1)
	hooks := Hooks{
		Name: "test",
		Prepare: func(ctx context.Context) (http.Header, error) {
			h := http.Header{}
			h.Set("X-Test-Auth", "token")
			return h, nil
		},
		OnConnect: func(ctx context.Context, conn *websocket.Conn) error {
			return SendJSON(conn, map[string]any{"type": "subscribe"})
		},
		OnMessage: func(data []byte) {
			select {
			case received <- data:
			default:
			}
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{URL: wsURL(srv), BackoffMin: 10 * time.Millisecond}, hooks, zerolog.Nop())
	}()

	select {
	case msg := <-received:
		if string(msg) != `{"hello":"world"}` {
			t.Fatalf("message = %s", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no message received")
	}
	if gotHeader.Load() != "token" {
		t.Fatalf("handshake header = %v", gotHeader.Load())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRun_ReconnectsAfterDrop(t *testing.T) {
	var connects int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&connects, 1)
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			c.Close() // drop the first connection immediately
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Run(ctx, Config{
		URL:        wsURL(srv),
		BackoffMin: 10 * time.Millisecond,
		BackoffMax: 50 * time.Millisecond,
	}, Hooks{Name: "test", OnMessage: func([]byte) {}}, zerolog.Nop())

	deadline := time.After(3 * time.Second)
	for atomic.LoadInt32(&connects) < 2 {
		select {
		case <-deadline:
			t.Fatalf("no reconnect, connects=%d", atomic.LoadInt32(&connects))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{}.Normalize()
	if cfg.PingInterval != 20*time.Second || cfg.BackoffMin != 2*time.Second {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.BackoffFactor != 2.0 {
		t.Fatalf("factor = %v", cfg.BackoffFactor)
	}
}

func TestNextDelay_Caps(t *testing.T) {
	cfg := Config{BackoffMin: time.Second, BackoffMax: 4 * time.Second, BackoffFactor: 2}.Normalize()
	d := nextDelay(time.Second, cfg)
	if d != 2*time.Second {
		t.Fatalf("delay = %v", d)
	}
	if d = nextDelay(3*time.Second, cfg); d != 4*time.Second {
		t.Fatalf("capped delay = %v", d)
	}
}
