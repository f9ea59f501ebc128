// Package exchange is a two-asset constant-product pool whose reserves live
// on remote ledgers. Every deposit is priced against freshly queried
// balances and settled with an outbound transfer issued through the fabric.
package exchange

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/caesar-terminal/amm/internal/codec"
	"github.com/caesar-terminal/amm/internal/events"
	"github.com/caesar-terminal/amm/internal/fabric"
	"github.com/caesar-terminal/amm/internal/ledger"
	"github.com/caesar-terminal/amm/internal/pricing"
)

// Params configures a pool.
type Params struct {
	// Self is the account holding the reserves. Defaults to the fabric's
	// caller identity.
	Self   common.Address
	Owner  common.Address
	AssetA common.Address
	AssetB common.Address

	// RegistrationFee is attached to every outbound transfer. Defaults to 1.
	RegistrationFee *uint256.Int

	// StateKey guards construction. Defaults to "amm:pool:<asset_a>:<asset_b>".
	StateKey string
}

// Deps are the collaborators of a pool. Logger and Metrics may be nil.
type Deps struct {
	Fabric  *fabric.Fabric
	Store   StateStore
	Logger  *slog.Logger
	Metrics *Metrics
}

// MetadataPair holds the descriptive records of both assets.
type MetadataPair struct {
	A ledger.Metadata
	B ledger.Metadata
}

// Exchange is one constructed pool.
type Exchange struct {
	self    common.Address
	owner   common.Address
	assetA  common.Address
	assetB  common.Address
	stipend *uint256.Int
	key     string

	fabric  *fabric.Fabric
	logger  *slog.Logger
	metrics *Metrics
	events  chan events.Event

	mu       sync.RWMutex
	reserveA *uint256.Int
	reserveB *uint256.Int
	meta     *MetadataPair
	bootErr  error
	booted   chan struct{}
}

// Construct claims p.StateKey and starts the metadata bootstrap. It fails
// with ErrAlreadyInitialized if the key was claimed before. Construct does
// not wait for bootstrap; see Bootstrapped.
func Construct(ctx context.Context, p Params, d Deps) (*Exchange, error) {
	if p.AssetA == p.AssetB {
		return nil, fmt.Errorf("%w: %s", ErrIdenticalAssets, p.AssetA.Hex())
	}
	if p.Self == (common.Address{}) {
		p.Self = d.Fabric.Caller()
	}
	if p.RegistrationFee == nil || p.RegistrationFee.IsZero() {
		p.RegistrationFee = uint256.NewInt(1)
	}
	if p.StateKey == "" {
		p.StateKey = fmt.Sprintf("amm:pool:%s:%s", p.AssetA.Hex(), p.AssetB.Hex())
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}

	claimed, err := d.Store.Claim(ctx, p.StateKey)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, p.StateKey)
	}

	e := &Exchange{
		self:     p.Self,
		owner:    p.Owner,
		assetA:   p.AssetA,
		assetB:   p.AssetB,
		stipend:  new(uint256.Int).Set(p.RegistrationFee),
		key:      p.StateKey,
		fabric:   d.Fabric,
		logger:   d.Logger.With("pool", p.StateKey),
		metrics:  d.Metrics,
		events:   make(chan events.Event, 256),
		reserveA: new(uint256.Int),
		reserveB: new(uint256.Int),
		booted:   make(chan struct{}),
	}
	e.logger.Info("exchange: constructed",
		"self", e.self.Hex(), "owner", e.owner.Hex(), "asset_a", e.assetA.Hex(), "asset_b", e.assetB.Hex())

	e.bootstrap(ctx)
	return e, nil
}

func (e *Exchange) bootstrap(ctx context.Context) {
	ha := e.fabric.Dispatch(ctx, ledger.MetadataOf(e.assetA))
	hb := e.fabric.Dispatch(ctx, ledger.MetadataOf(e.assetB))
	e.fabric.JoinThen([]*fabric.Handle{ha, hb}, e.onMetadata)
}

func (e *Exchange) onMetadata(results []fabric.Result) {
	if len(results) != 2 {
		e.bootstrapFailed(fmt.Errorf("%w: expected 2 results, got %d", ErrBootstrap, len(results)))
		return
	}
	metaA, ok := codec.Decode[ledger.Metadata](results[0])
	if !ok {
		e.bootstrapFailed(fmt.Errorf("%w: asset_a %s: %w", ErrBootstrap, e.assetA.Hex(), ErrRemoteDecode))
		return
	}
	metaB, ok := codec.Decode[ledger.Metadata](results[1])
	if !ok {
		e.bootstrapFailed(fmt.Errorf("%w: asset_b %s: %w", ErrBootstrap, e.assetB.Hex(), ErrRemoteDecode))
		return
	}

	e.mu.Lock()
	e.meta = &MetadataPair{A: metaA, B: metaB}
	e.mu.Unlock()
	close(e.booted)

	e.logger.Info("exchange: metadata loaded", "ticker", metaA.Symbol+"-"+metaB.Symbol,
		"decimals_a", metaA.Decimals, "decimals_b", metaB.Decimals)
	e.emit(events.Event{Kind: events.KindBootstrapped})
}

func (e *Exchange) bootstrapFailed(err error) {
	e.mu.Lock()
	e.bootErr = err
	e.mu.Unlock()
	close(e.booted)

	e.logger.Error("exchange: bootstrap failed", "err", err)
	e.emit(events.Event{Kind: events.KindBootstrapFailed, Reason: err.Error()})
}

// Bootstrapped is closed once the metadata bootstrap has finished, whether
// or not it succeeded.
func (e *Exchange) Bootstrapped() <-chan struct{} { return e.booted }

// BootstrapErr is the bootstrap failure cause. Nil while pending or after
// success.
func (e *Exchange) BootstrapErr() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bootErr
}

// Events implements events.Source. Events are dropped when nobody reads.
func (e *Exchange) Events() <-chan events.Event { return e.events }

func (e *Exchange) Self() common.Address  { return e.self }
func (e *Exchange) Owner() common.Address { return e.owner }
func (e *Exchange) StateKey() string      { return e.key }

// Assets returns the ledger identities of asset A and asset B.
func (e *Exchange) Assets() (common.Address, common.Address) { return e.assetA, e.assetB }

// Ticker returns "SYMA-SYMB".
func (e *Exchange) Ticker() (string, error) {
	m, err := e.MetadataSnapshot()
	if err != nil {
		return "", err
	}
	return m.A.Symbol + "-" + m.B.Symbol, nil
}

// Decimals returns the decimals of asset A and asset B.
func (e *Exchange) Decimals() (uint8, uint8, error) {
	m, err := e.MetadataSnapshot()
	if err != nil {
		return 0, 0, err
	}
	return m.A.Decimals, m.B.Decimals, nil
}

// MetadataSnapshot returns both metadata records, or
// ErrUninitializedMetadata until bootstrap has succeeded.
func (e *Exchange) MetadataSnapshot() (MetadataPair, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.meta == nil {
		if e.bootErr != nil {
			return MetadataPair{}, fmt.Errorf("%w: %w", ErrUninitializedMetadata, e.bootErr)
		}
		return MetadataPair{}, ErrUninitializedMetadata
	}
	return *e.meta, nil
}

// PoolAmount returns the last observed reserve of asset A or asset B.
func (e *Exchange) PoolAmount(isAssetA bool) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if isAssetA {
		return new(uint256.Int).Set(e.reserveA)
	}
	return new(uint256.Int).Set(e.reserveB)
}

// Quote prices amount against the last observed reserves. Settlement never
// uses this; it re-queries the ledgers.
func (e *Exchange) Quote(amount *uint256.Int, d pricing.Direction) (*uint256.Int, error) {
	e.mu.RLock()
	a, b := new(uint256.Int).Set(e.reserveA), new(uint256.Int).Set(e.reserveB)
	e.mu.RUnlock()
	return pricing.QuoteDirection(a, b, amount, d)
}

func (e *Exchange) setReserves(a, b *uint256.Int) {
	e.mu.Lock()
	e.reserveA = new(uint256.Int).Set(a)
	e.reserveB = new(uint256.Int).Set(b)
	e.mu.Unlock()
	e.metrics.observeReserves(a, b)
}

func (e *Exchange) emit(ev events.Event) {
	ev.Pool = e.key
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case e.events <- ev:
	default:
	}
}
