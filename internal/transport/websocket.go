// Package transport carries fabric calls to remote ledgers over websocket.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var ErrOutboxFull = errors.New("ws: outbox full")

// CircuitState is the health of the websocket connection. Callers fail fast
// while it is open instead of queueing calls that cannot be delivered.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota // healthy
	CircuitOpen                       // reconnecting
)

func (s CircuitState) String() string {
	if s == CircuitOpen {
		return "open"
	}
	return "closed"
}

// WSConfig holds tunable parameters for a WSClient.
type WSConfig struct {
	URL string

	ReadBufferSize  int
	WriteBufferSize int

	// HeartbeatTimeout is the maximum silence, pongs included, before the
	// connection is considered dead. Pings go out every HeartbeatTimeout/2.
	HeartbeatTimeout time.Duration

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffFactor  float64

	// Headers sent during the handshake.
	Headers http.Header
}

// DefaultWSConfig returns defaults for a ledger connection.
func DefaultWSConfig(url string) WSConfig {
	return WSConfig{
		URL:              url,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HeartbeatTimeout: 10 * time.Second,
		BackoffInitial:   50 * time.Millisecond,
		BackoffMax:       5 * time.Second,
		BackoffFactor:    2.0,
	}
}

// WSClient is a reconnecting websocket connection. Inbound messages are
// fanned out to subscribers; outbound messages go through a bounded outbox.
type WSClient struct {
	cfg    WSConfig
	logger *slog.Logger

	circuit atomic.Int32

	mu   sync.RWMutex
	conn *websocket.Conn

	subMu sync.RWMutex
	subs  []chan []byte

	outbox chan []byte

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// onReconnect runs after each successful reconnection.
	onReconnect func()
}

// NewWSClient creates a client. Call Connect to start it.
func NewWSClient(cfg WSConfig, logger *slog.Logger) *WSClient {
	return &WSClient{
		cfg:    cfg,
		logger: logger,
		outbox: make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// OnReconnect sets fn to run after every reconnection. Must be called
// before Connect.
func (ws *WSClient) OnReconnect(fn func()) { ws.onReconnect = fn }

// Circuit returns the current connection health.
func (ws *WSClient) Circuit() CircuitState {
	return CircuitState(ws.circuit.Load())
}

// Subscribe returns a channel receiving every inbound message. Slow
// subscribers lose messages.
func (ws *WSClient) Subscribe() <-chan []byte {
	ch := make(chan []byte, 512)
	ws.subMu.Lock()
	ws.subs = append(ws.subs, ch)
	ws.subMu.Unlock()
	return ch
}

// Send enqueues data for delivery.
func (ws *WSClient) Send(data []byte) error {
	select {
	case ws.outbox <- data:
		return nil
	default:
		ws.logger.Warn("ws: outbox full, dropping message", "bytes", len(data))
		return ErrOutboxFull
	}
}

// Connect dials the endpoint and starts the read and write loops. It blocks
// until the first connection succeeds or fails.
func (ws *WSClient) Connect(ctx context.Context) error {
	ctx, ws.cancel = context.WithCancel(ctx)

	if err := ws.dial(ctx); err != nil {
		ws.cancel()
		return err
	}
	ws.circuit.Store(int32(CircuitClosed))

	go ws.readLoop(ctx)
	go ws.writeLoop(ctx)

	return nil
}

// Close shuts the client down and closes every subscriber channel. Safe to
// call more than once.
func (ws *WSClient) Close() {
	ws.closeOnce.Do(func() {
		if ws.cancel != nil {
			ws.cancel()
		}
		ws.mu.Lock()
		if ws.conn != nil {
			ws.conn.Close()
		}
		ws.mu.Unlock()

		ws.subMu.Lock()
		for _, ch := range ws.subs {
			close(ch)
		}
		ws.subs = nil
		ws.subMu.Unlock()

		close(ws.done)
	})
}

// Done is closed once the client has shut down.
func (ws *WSClient) Done() <-chan struct{} {
	return ws.done
}

func (ws *WSClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		ReadBufferSize:  ws.cfg.ReadBufferSize,
		WriteBufferSize: ws.cfg.WriteBufferSize,
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

	conn, _, err := dialer.DialContext(ctx, ws.cfg.URL, ws.cfg.Headers)
	if err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ws.cfg.HeartbeatTimeout))
	})

	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
	return nil
}

// reconnect retries with exponential backoff until a connection is
// re-established or ctx is cancelled.
func (ws *WSClient) reconnect(ctx context.Context) bool {
	ws.circuit.Store(int32(CircuitOpen))

	delay := ws.cfg.BackoffInitial
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		if err := ws.dial(ctx); err != nil {
			ws.logger.Warn("ws: reconnect failed", "err", err, "retry_in", delay)
			delay = time.Duration(math.Min(
				float64(delay)*ws.cfg.BackoffFactor,
				float64(ws.cfg.BackoffMax),
			))
			continue
		}

		ws.circuit.Store(int32(CircuitClosed))
		ws.logger.Info("ws: reconnected", "url", ws.cfg.URL)
		if ws.onReconnect != nil {
			ws.onReconnect()
		}
		return true
	}
}

// readLoop reads and fans out messages. A read error or heartbeat timeout
// triggers a reconnect.
func (ws *WSClient) readLoop(ctx context.Context) {
	for {
		ws.mu.RLock()
		c := ws.conn
		ws.mu.RUnlock()

		c.SetReadDeadline(time.Now().Add(ws.cfg.HeartbeatTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ws.logger.Warn("ws: read error, reconnecting", "err", err)
			c.Close()
			if !ws.reconnect(ctx) {
				return
			}
			continue
		}

		ws.fanOut(msg)
	}
}

// writeLoop drains the outbox and keeps the connection alive with pings.
func (ws *WSClient) writeLoop(ctx context.Context) {
	ping := time.NewTicker(ws.cfg.HeartbeatTimeout / 2)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			ws.mu.RLock()
			c := ws.conn
			ws.mu.RUnlock()
			deadline := time.Now().Add(ws.cfg.HeartbeatTimeout / 2)
			if err := c.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				ws.logger.Debug("ws: ping failed", "err", err)
			}
		case data := <-ws.outbox:
			ws.mu.RLock()
			c := ws.conn
			ws.mu.RUnlock()
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				ws.logger.Warn("ws: write error", "err", err)
			}
		}
	}
}

func (ws *WSClient) fanOut(msg []byte) {
	ws.subMu.RLock()
	defer ws.subMu.RUnlock()

	for _, ch := range ws.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}
