// Package adapter provides the websocket supervision loop shared by the
// venue listeners: prepare auth, dial, subscribe, keep alive with pings, and
// reconnect with exponential backoff.
package adapter

import (
	"context"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// authStall is the fixed sleep applied when auth preparation fails; unlike
// transient dial errors, bad credentials do not benefit from tight retries.
const authStall = 30 * time.Second

// Config holds the tunable parameters of one supervised connection.
type Config struct {
	URL string

	// Buffer sizes for the underlying TCP connection.
	ReadBufferSize  int
	WriteBufferSize int

	// PingInterval is how often keepalive pings are sent; PingTimeout is the
	// extra grace a pong (or any frame) gets before the connection is
	// considered dead.
	PingInterval time.Duration
	PingTimeout  time.Duration

	// Backoff parameters for reconnection.
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	BackoffFactor float64
}

// Normalize fills zero fields with defaults.
func (c Config) Normalize() Config {
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = 4096
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = 4096
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 20 * time.Second
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 2 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 60 * time.Second
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2.0
	}
	return c
}

// Hooks customize one venue's connection lifecycle. OnMessage is required;
// the others may be nil.
type Hooks struct {
	// Name labels log lines for this connection.
	Name string

	// Prepare runs before each dial and returns handshake headers. An error
	// stalls the loop for a fixed 30s instead of the dial backoff.
	Prepare func(ctx context.Context) (http.Header, error)

	// OnConnect runs on each fresh connection, typically sending
	// subscriptions. An error tears the connection down and backs off.
	OnConnect func(ctx context.Context, conn *websocket.Conn) error

	// OnMessage handles one inbound frame.
	OnMessage func(data []byte)
}

// Run supervises one websocket connection until ctx is cancelled: it loops
// prepare → dial → subscribe → read, reconnecting with exponential backoff
// that resets after every successful dial.
func Run(ctx context.Context, cfg Config, hooks Hooks, logger zerolog.Logger) error {
	cfg = cfg.Normalize()
	log := logger.With().Str("component", hooks.Name).Logger()

	delay := cfg.BackoffMin
	for {
		if ctx.Err() != nil {
			return nil
		}
		var headers http.Header
		if hooks.Prepare != nil {
			h, err := hooks.Prepare(ctx)
			if err != nil {
				log.Warn().Err(err).Dur("stall", authStall).Msg("auth preparation failed")
				if !sleepCtx(ctx, authStall) {
					return nil
				}
				continue
			}
			headers = h
		}

		conn, err := dial(ctx, cfg, headers)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Dur("retry_in", delay).Msg("dial failed")
			if !sleepCtx(ctx, delay) {
				return nil
			}
			delay = nextDelay(delay, cfg)
			continue
		}
		delay = cfg.BackoffMin
		log.Info().Str("url", cfg.URL).Msg("connected")

		err = serve(ctx, cfg, hooks, conn)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Dur("retry_in", delay).Msg("connection lost, reconnecting")
		if !sleepCtx(ctx, delay) {
			return nil
		}
		delay = nextDelay(delay, cfg)
	}
}

// dial establishes the connection with TCP_NODELAY enabled.
func dial(ctx context.Context, cfg Config, headers http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			}
			return conn, nil
		},
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, headers)
	return conn, err
}

// serve runs one connection: subscribe, ping keepalive, read frames.
// Returns when the connection dies or ctx is cancelled.
func serve(ctx context.Context, cfg Config, hooks Hooks, conn *websocket.Conn) error {
	if hooks.OnConnect != nil {
		if err := hooks.OnConnect(ctx, conn); err != nil {
			return err
		}
	}

	deadline := cfg.PingInterval + cfg.PingTimeout
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.PingTimeout)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(deadline))
		hooks.OnMessage(msg)
	}
}

func nextDelay(delay time.Duration, cfg Config) time.Duration {
	return time.Duration(math.Min(
		float64(delay)*cfg.BackoffFactor,
		float64(cfg.BackoffMax),
	))
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// SendJSON writes one JSON text frame with a write deadline.
func SendJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}
