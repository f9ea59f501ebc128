// Package fabric dispatches calls to remote ledgers and resumes the caller
// once a batch of calls has resolved.
//
// Calls run on their own goroutines. Continuations registered with JoinThen
// are queued and executed one at a time by Run, so code inside a
// continuation never races another continuation.
package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sourcegraph/conc"
)

// Continuation receives one result per joined handle, in the order the
// handles were passed to JoinThen.
type Continuation func(results []Result)

// Handle tracks a dispatched call.
type Handle struct {
	call   Call
	done   chan struct{}
	result Result
}

// Call returns the envelope that was sent.
func (h *Handle) Call() Call { return h.call }

// Done is closed once the call has resolved.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the outcome, or a pending result if the call is in flight.
func (h *Handle) Result() Result {
	select {
	case <-h.done:
		return h.result
	default:
		return Result{Status: StatusPending}
	}
}

func (h *Handle) resolve(r Result) {
	h.result = r
	close(h.done)
}

// Option configures a Fabric.
type Option func(*Fabric)

// WithSigner signs every outgoing call and uses the signer's address as the
// caller identity.
func WithSigner(s Signer) Option {
	return func(f *Fabric) { f.signer = s }
}

// WithCaller sets the caller identity for unsigned calls.
func WithCaller(addr common.Address) Option {
	return func(f *Fabric) { f.caller = addr }
}

// WithQueueSize sets the continuation queue capacity. Default: 256.
func WithQueueSize(n int) Option {
	return func(f *Fabric) { f.queueSize = n }
}

// Fabric is the remote call dispatcher and continuation loop.
type Fabric struct {
	transport Transport
	signer    Signer
	caller    common.Address
	logger    *slog.Logger

	queueSize int
	queue     chan func()

	seq atomic.Uint64
	wg  conc.WaitGroup
}

// New creates a Fabric that sends calls through transport.
func New(transport Transport, logger *slog.Logger, opts ...Option) *Fabric {
	f := &Fabric{
		transport: transport,
		logger:    logger,
		queueSize: 256,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.signer != nil {
		f.caller = f.signer.Address()
	}
	f.queue = make(chan func(), f.queueSize)
	return f
}

// Caller returns the identity calls are sent as.
func (f *Fabric) Caller() common.Address { return f.caller }

// Dispatch sends req without blocking and returns its handle. The call is
// detached from ctx cancellation: once dispatched it runs until the
// transport reports success or failure.
func (f *Fabric) Dispatch(ctx context.Context, req Request) *Handle {
	h := &Handle{done: make(chan struct{})}

	call, err := f.build(req)
	h.call = call
	if err != nil {
		f.logger.Warn("fabric: call not sent", "target", req.Target.Hex(), "method", req.Method, "err", err)
		h.resolve(Result{Status: StatusFailed, Err: err})
		return h
	}

	callCtx := context.WithoutCancel(ctx)
	f.wg.Go(func() {
		payload, err := f.transport.Invoke(callCtx, call)
		if err != nil {
			f.logger.Warn("fabric: remote call failed",
				"id", call.ID, "target", call.Target.Hex(), "method", call.Method, "err", err)
			h.resolve(Result{Status: StatusFailed, Err: err})
			return
		}
		f.logger.Debug("fabric: remote call resolved", "id", call.ID, "method", call.Method)
		h.resolve(Result{Status: StatusSuccessful, Payload: payload})
	})
	return h
}

// JoinThen queues k to run on the loop once every handle has resolved.
func (f *Fabric) JoinThen(handles []*Handle, k Continuation) {
	joined := make([]*Handle, len(handles))
	copy(joined, handles)

	f.wg.Go(func() {
		results := make([]Result, len(joined))
		for i, h := range joined {
			<-h.done
			results[i] = h.result
		}
		f.queue <- func() { k(results) }
	})
}

// Run executes queued continuations until ctx is cancelled.
func (f *Fabric) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-f.queue:
			fn()
		}
	}
}

// Wait blocks until every dispatched call and pending join has finished.
// Joins only finish once Run has drained their continuation from the queue
// or the queue has room for it.
func (f *Fabric) Wait() {
	f.wg.Wait()
}

func (f *Fabric) build(req Request) (Call, error) {
	call := Call{
		ID:      f.seq.Add(1),
		Caller:  f.caller,
		Target:  req.Target,
		Method:  req.Method,
		Deposit: req.Deposit,
	}
	if req.Args != nil {
		raw, err := json.Marshal(req.Args)
		if err != nil {
			return call, fmt.Errorf("fabric: encode args: %w", err)
		}
		call.Args = raw
	}
	if f.signer == nil {
		return call, nil
	}

	digest, err := call.Digest()
	if err != nil {
		return call, err
	}
	sig, err := f.signer.Sign(digest.Bytes())
	if err != nil {
		return call, fmt.Errorf("fabric: sign call: %w", err)
	}
	call.Signature = sig
	return call, nil
}
