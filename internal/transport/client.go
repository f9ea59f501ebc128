package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/caesar-terminal/amm/internal/fabric"
	"github.com/caesar-terminal/amm/internal/ledger"
)

var (
	ErrCircuitOpen     = errors.New("transport: ledger connection unavailable")
	ErrConnectionReset = errors.New("transport: connection reset before reply")
	ErrClosed          = errors.New("transport: client closed")
	ErrRemote          = errors.New("transport: remote error")
)

// Client implements fabric.Transport over a WSClient. Each call gets its own
// correlation ID and fails after CallTimeout without a reply.
type Client struct {
	ws      *WSClient
	logger  *slog.Logger
	timeout time.Duration

	seq atomic.Uint64

	mu       sync.Mutex
	pending  map[uint64]chan Frame
	accounts []common.Address

	notes chan ledger.Notification
}

// Dial connects to a ledger endpoint.
func Dial(ctx context.Context, cfg WSConfig, callTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	c := &Client{
		ws:      NewWSClient(cfg, logger),
		logger:  logger,
		timeout: callTimeout,
		pending: make(map[uint64]chan Frame),
		notes:   make(chan ledger.Notification, 256),
	}
	c.ws.OnReconnect(c.resume)
	inbound := c.ws.Subscribe()

	if err := c.ws.Connect(ctx); err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", cfg.URL, err)
	}
	go c.route(inbound)
	return c, nil
}

// Circuit reports the connection health.
func (c *Client) Circuit() CircuitState { return c.ws.Circuit() }

// Notifications delivers ft_on_transfer pushes for subscribed accounts.
// Closed when the client closes.
func (c *Client) Notifications() <-chan ledger.Notification { return c.notes }

// Subscribe asks the ledger to push transfer notifications addressed to
// account. Subscriptions are renewed after a reconnect.
func (c *Client) Subscribe(account common.Address) error {
	c.mu.Lock()
	c.accounts = append(c.accounts, account)
	c.mu.Unlock()
	return c.send(Frame{Type: FrameSubscribe, Account: &account})
}

// Invoke sends call and waits for its result.
func (c *Client) Invoke(ctx context.Context, call fabric.Call) ([]byte, error) {
	if c.ws.Circuit() == CircuitOpen {
		return nil, ErrCircuitOpen
	}

	id := c.seq.Add(1)
	reply := make(chan Frame, 1)
	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(Frame{Type: FrameCall, ID: id, Call: &call}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case f, ok := <-reply:
		if !ok {
			return nil, ErrConnectionReset
		}
		if f.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRemote, f.Error)
		}
		return f.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("transport: %s on %s: %w", call.Method, call.Target.Hex(), ctx.Err())
	case <-c.ws.Done():
		return nil, ErrClosed
	}
}

// Close shuts the connection down.
func (c *Client) Close() { c.ws.Close() }

func (c *Client) send(f Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("transport: encode frame: %w", err)
	}
	return c.ws.Send(raw)
}

// route reads inbound frames until the WSClient closes.
func (c *Client) route(inbound <-chan []byte) {
	defer close(c.notes)

	for msg := range inbound {
		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			c.logger.Warn("transport: malformed frame", "err", err)
			continue
		}

		switch f.Type {
		case FrameResult:
			c.mu.Lock()
			reply, ok := c.pending[f.ID]
			if ok {
				delete(c.pending, f.ID)
				reply <- f
			}
			c.mu.Unlock()
			if !ok {
				c.logger.Debug("transport: late result dropped", "id", f.ID)
			}

		case FrameNotify:
			if f.Notification == nil {
				continue
			}
			select {
			case c.notes <- *f.Notification:
			case <-c.ws.Done():
				return
			}

		default:
			c.logger.Warn("transport: unexpected frame", "type", f.Type)
		}
	}
}

// resume fails calls that were in flight on the dropped connection and
// renews subscriptions on the new one.
func (c *Client) resume() {
	c.mu.Lock()
	for id, reply := range c.pending {
		close(reply)
		delete(c.pending, id)
	}
	accounts := append([]common.Address(nil), c.accounts...)
	c.mu.Unlock()

	for i := range accounts {
		if err := c.send(Frame{Type: FrameSubscribe, Account: &accounts[i]}); err != nil {
			c.logger.Warn("transport: resubscribe failed", "account", accounts[i].Hex(), "err", err)
		}
	}
}
