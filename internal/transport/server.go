package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/caesar-terminal/amm/internal/fabric"
	"github.com/caesar-terminal/amm/internal/ledger"
)

// Backend is the ledger a Server exposes.
type Backend interface {
	fabric.Transport
	Subscribe(account common.Address, r ledger.Receiver) (cancel func())
}

// Server serves a Backend to websocket clients.
type Server struct {
	backend  Backend
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a Server for backend.
func NewServer(backend Backend, logger *slog.Logger) *Server {
	return &Server{
		backend: backend,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP upgrades the request and serves frames until the peer leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("transport: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	sc := &serverConn{
		conn: conn,
		out:  make(chan Frame, 256),
		done: make(chan struct{}),
	}
	s.logger.Info("transport: client connected", "remote", r.RemoteAddr)

	go sc.writeLoop(s.logger)
	s.readLoop(r.Context(), sc)

	close(sc.done)
	conn.Close()
	sc.mu.Lock()
	for _, cancel := range sc.subs {
		cancel()
	}
	sc.mu.Unlock()
	s.logger.Info("transport: client disconnected", "remote", r.RemoteAddr)
}

type serverConn struct {
	conn *websocket.Conn
	out  chan Frame
	done chan struct{}

	mu   sync.Mutex
	subs []func()
}

func (sc *serverConn) push(f Frame) {
	select {
	case sc.out <- f:
	case <-sc.done:
	}
}

// writeLoop is the connection's only writer.
func (sc *serverConn) writeLoop(logger *slog.Logger) {
	for {
		select {
		case <-sc.done:
			return
		case f := <-sc.out:
			raw, err := json.Marshal(f)
			if err != nil {
				logger.Error("transport: encode frame", "type", f.Type, "err", err)
				continue
			}
			sc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := sc.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				logger.Warn("transport: write error", "err", err)
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, sc *serverConn) {
	for {
		_, msg, err := sc.conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			s.logger.Warn("transport: malformed frame", "err", err)
			continue
		}

		switch f.Type {
		case FrameCall:
			if f.Call == nil {
				sc.push(Frame{Type: FrameResult, ID: f.ID, Error: "missing call"})
				continue
			}
			go s.invoke(context.WithoutCancel(ctx), sc, f.ID, *f.Call)

		case FrameSubscribe:
			if f.Account == nil {
				continue
			}
			cancel := s.backend.Subscribe(*f.Account, ledger.ReceiverFunc(func(_ context.Context, n ledger.Notification) {
				sc.push(Frame{Type: FrameNotify, Notification: &n})
			}))
			sc.mu.Lock()
			sc.subs = append(sc.subs, cancel)
			sc.mu.Unlock()
			s.logger.Debug("transport: subscribed", "account", f.Account.Hex())

		default:
			s.logger.Warn("transport: unexpected frame", "type", f.Type)
		}
	}
}

func (s *Server) invoke(ctx context.Context, sc *serverConn, id uint64, call fabric.Call) {
	payload, err := s.backend.Invoke(ctx, call)
	if err != nil {
		sc.push(Frame{Type: FrameResult, ID: id, Error: err.Error()})
		return
	}
	sc.push(Frame{Type: FrameResult, ID: id, Result: payload})
}
