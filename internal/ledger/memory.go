package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/caesar-terminal/amm/internal/fabric"
)

var (
	ErrUnknownToken        = errors.New("ledger: unknown token")
	ErrUnknownMethod       = errors.New("ledger: unknown method")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrDepositRequired     = errors.New("ledger: attached deposit required")
	ErrZeroTransfer        = errors.New("ledger: amount must be positive")
	ErrSelfTransfer        = errors.New("ledger: sender and receiver are the same")
)

// Receiver is notified when it is the receiver of ft_transfer_call.
type Receiver interface {
	OnTransfer(ctx context.Context, n Notification)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, n Notification)

func (f ReceiverFunc) OnTransfer(ctx context.Context, n Notification) { f(ctx, n) }

type token struct {
	meta       Metadata
	balances   map[common.Address]*uint256.Int
	registered map[common.Address]bool
}

type override struct {
	payload []byte
	err     error
}

type overrideKey struct {
	token  common.Address
	method string
}

// Memory is an in-process multi-asset ledger. It implements
// fabric.Transport so the exchange can run against it directly.
type Memory struct {
	logger *slog.Logger

	mu         sync.Mutex
	tokens     map[common.Address]*token
	receivers  map[common.Address]map[uint64]Receiver
	nextSub    uint64
	overrides  map[overrideKey]override
	verifySigs bool
}

// NewMemory creates an empty ledger.
func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		logger:    logger,
		tokens:    make(map[common.Address]*token),
		receivers: make(map[common.Address]map[uint64]Receiver),
		overrides: make(map[overrideKey]override),
	}
}

// AddToken registers an asset under addr.
func (m *Memory) AddToken(addr common.Address, meta Metadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[addr] = &token{
		meta:       meta,
		balances:   make(map[common.Address]*uint256.Int),
		registered: make(map[common.Address]bool),
	}
}

// RequireSignatures makes mutating calls verify the caller signature.
func (m *Memory) RequireSignatures(on bool) {
	m.mu.Lock()
	m.verifySigs = on
	m.mu.Unlock()
}

// Mint credits amount to account.
func (m *Memory) Mint(tok, account common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tok]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, tok.Hex())
	}
	t.registered[account] = true
	t.credit(account, amount)
	return nil
}

// BalanceOf returns a copy of account's balance.
func (m *Memory) BalanceOf(tok, account common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tok]
	if !ok {
		return new(uint256.Int)
	}
	return t.balance(account)
}

// IsRegistered reports whether account holds storage on tok.
func (m *Memory) IsRegistered(tok, account common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tok]
	return ok && t.registered[account]
}

// Subscribe registers r for transfer notifications addressed to account.
// The returned func removes the subscription.
func (m *Memory) Subscribe(account common.Address, r Receiver) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.receivers[account]
	if !ok {
		subs = make(map[uint64]Receiver)
		m.receivers[account] = subs
	}
	m.nextSub++
	id := m.nextSub
	subs[id] = r

	return func() {
		m.mu.Lock()
		delete(m.receivers[account], id)
		m.mu.Unlock()
	}
}

// Override makes every call of method on tok fail with err, or, when err is
// nil, return payload verbatim.
func (m *Memory) Override(tok common.Address, method string, payload []byte, err error) {
	m.mu.Lock()
	m.overrides[overrideKey{tok, method}] = override{payload: payload, err: err}
	m.mu.Unlock()
}

// ClearOverrides removes all injected responses.
func (m *Memory) ClearOverrides() {
	m.mu.Lock()
	m.overrides = make(map[overrideKey]override)
	m.mu.Unlock()
}

// TransferCall moves amount from sender to receiver and notifies the
// receiver's subscribers asynchronously. It is the user-facing deposit path.
func (m *Memory) TransferCall(ctx context.Context, tok, sender, receiver common.Address, amount *uint256.Int, msg string) error {
	m.mu.Lock()
	t, ok := m.tokens[tok]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownToken, tok.Hex())
	}
	if err := t.move(sender, receiver, amount); err != nil {
		m.mu.Unlock()
		return err
	}
	receivers := make([]Receiver, 0, len(m.receivers[receiver]))
	for _, r := range m.receivers[receiver] {
		receivers = append(receivers, r)
	}
	m.mu.Unlock()

	n := Notification{Ledger: tok, Sender: sender, Amount: new(uint256.Int).Set(amount), Msg: msg}
	for _, r := range receivers {
		go r.OnTransfer(context.WithoutCancel(ctx), n)
	}
	return nil
}

// Invoke executes a fabric call.
func (m *Memory) Invoke(ctx context.Context, call fabric.Call) ([]byte, error) {
	m.mu.Lock()
	ov, overridden := m.overrides[overrideKey{call.Target, call.Method}]
	verify := m.verifySigs
	m.mu.Unlock()

	if overridden {
		if ov.err != nil {
			return nil, ov.err
		}
		return ov.payload, nil
	}

	switch call.Method {
	case MethodBalanceOf:
		var args BalanceOfArgs
		if err := decodeArgs(call, &args); err != nil {
			return nil, err
		}
		return m.withToken(call.Target, func(t *token) ([]byte, error) {
			return json.Marshal(t.balance(args.AccountID))
		})

	case MethodMetadata:
		return m.withToken(call.Target, func(t *token) ([]byte, error) {
			return json.Marshal(t.meta)
		})

	case MethodTransfer:
		if verify {
			if err := call.Verify(); err != nil {
				return nil, err
			}
		}
		if call.Deposit == nil || call.Deposit.IsZero() {
			return nil, ErrDepositRequired
		}
		var args TransferArgs
		if err := decodeArgs(call, &args); err != nil {
			return nil, err
		}
		if args.Amount == nil {
			return nil, ErrZeroTransfer
		}
		_, err := m.withToken(call.Target, func(t *token) ([]byte, error) {
			t.registered[args.ReceiverID] = true
			return nil, t.move(call.Caller, args.ReceiverID, args.Amount)
		})
		if err != nil {
			return nil, err
		}
		m.logger.Debug("ledger: transfer",
			"token", call.Target.Hex(), "from", call.Caller.Hex(), "to", args.ReceiverID.Hex(), "amount", args.Amount.Dec())
		return []byte("null"), nil

	case MethodTransferCall:
		if verify {
			if err := call.Verify(); err != nil {
				return nil, err
			}
		}
		var args TransferCallArgs
		if err := decodeArgs(call, &args); err != nil {
			return nil, err
		}
		if args.Amount == nil {
			return nil, ErrZeroTransfer
		}
		if err := m.TransferCall(ctx, call.Target, call.Caller, args.ReceiverID, args.Amount, args.Msg); err != nil {
			return nil, err
		}
		return json.Marshal(args.Amount)

	case MethodStorageDeposit:
		var args StorageDepositArgs
		if err := decodeArgs(call, &args); err != nil {
			return nil, err
		}
		return m.withToken(call.Target, func(t *token) ([]byte, error) {
			t.registered[args.AccountID] = true
			return []byte("true"), nil
		})

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, call.Method)
	}
}

func decodeArgs(call fabric.Call, v any) error {
	if err := json.Unmarshal(call.Args, v); err != nil {
		return fmt.Errorf("ledger: %s args: %w", call.Method, err)
	}
	return nil
}

func (m *Memory) withToken(addr common.Address, fn func(*token) ([]byte, error)) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return fn(t)
}

func (t *token) balance(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

func (t *token) credit(account common.Address, amount *uint256.Int) {
	b, ok := t.balances[account]
	if !ok {
		b = new(uint256.Int)
		t.balances[account] = b
	}
	b.Add(b, amount)
}

// move is all-or-nothing. Caller must hold the ledger lock.
func (t *token) move(from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return ErrZeroTransfer
	}
	if from == to {
		return ErrSelfTransfer
	}
	b := t.balance(from)
	if b.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), b.Dec(), amount.Dec())
	}
	t.balances[from] = b.Sub(b, amount)
	t.credit(to, amount)
	return nil
}
