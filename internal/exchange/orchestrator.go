package exchange

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/caesar-terminal/amm/internal/codec"
	"github.com/caesar-terminal/amm/internal/events"
	"github.com/caesar-terminal/amm/internal/fabric"
	"github.com/caesar-terminal/amm/internal/ledger"
	"github.com/caesar-terminal/amm/internal/pricing"
)

const settlementMemo = "amm settlement"

// OnDeposit handles a transfer notification. The caller guard runs before
// anything else. Owner deposits seed the pool and settle nothing, so they
// are accepted while metadata is missing. Any other deposit fails with
// ErrUninitializedMetadata until bootstrap has succeeded; otherwise it
// queries both reserves and, from a continuation, pays out the quoted
// amount. The returned Settlement tracks that progress.
func (e *Exchange) OnDeposit(ctx context.Context, d Deposit) (*Settlement, error) {
	side, err := e.resolve(d)
	if err != nil {
		e.metrics.Deposits.WithLabelValues("unauthorized").Inc()
		e.logger.Warn("exchange: rejected deposit notification", "ledger", d.Ledger.Hex(), "sender", d.Sender.Hex())
		return nil, err
	}

	if d.Sender == e.owner {
		s := newSettlement(d.Sender, side, d.Amount)
		s.complete()
		e.metrics.Deposits.WithLabelValues("owner").Inc()
		e.logger.Info("exchange: owner deposit", "side", side, "amount", dec(d.Amount))
		e.emit(events.Event{Kind: events.KindSeeded, Counterparty: d.Sender, Direction: side.Direction().String(), AmountIn: d.Amount})
		return s, nil
	}

	if _, err := e.MetadataSnapshot(); err != nil {
		e.metrics.Deposits.WithLabelValues("uninitialized").Inc()
		e.logger.Warn("exchange: deposit on unusable pool", "sender", d.Sender.Hex(), "err", err)
		return nil, err
	}

	if d.Amount == nil || d.Amount.IsZero() {
		e.metrics.Deposits.WithLabelValues("zero_amount").Inc()
		return nil, ErrZeroAmount
	}

	s := newSettlement(d.Sender, side, new(uint256.Int).Set(d.Amount))
	s.advance(StageAwaitingBalances)
	e.fabric.JoinThen(e.queryReserves(ctx), func(results []fabric.Result) {
		e.settle(ctx, s, results)
	})
	return s, nil
}

// Refresh re-reads both reserves and overwrites the local snapshot on
// success. It is how the owner makes seeded funds visible to Quote.
func (e *Exchange) Refresh(ctx context.Context) *Settlement {
	s := newSettlement(e.owner, 0, nil)
	s.advance(StageAwaitingBalances)
	e.fabric.JoinThen(e.queryReserves(ctx), func(results []fabric.Result) {
		a, b, err := decodeBalances(results)
		if err != nil {
			s.abort(err)
			e.logger.Warn("exchange: refresh failed", "err", err)
			return
		}
		s.observe(a, b)
		e.setReserves(a, b)
		s.complete()
		e.logger.Info("exchange: reserves refreshed", "reserve_a", a.Dec(), "reserve_b", b.Dec())
		e.emit(events.Event{Kind: events.KindRefreshed, ReserveA: a, ReserveB: b})
	})
	return s
}

// queryReserves dispatches balance_of(self) on asset A then asset B.
func (e *Exchange) queryReserves(ctx context.Context) []*fabric.Handle {
	return []*fabric.Handle{
		e.fabric.Dispatch(ctx, ledger.BalanceOf(e.assetA, e.self)),
		e.fabric.Dispatch(ctx, ledger.BalanceOf(e.assetB, e.self)),
	}
}

func decodeBalances(results []fabric.Result) (a, b *uint256.Int, err error) {
	if len(results) != 2 {
		return nil, nil, fmt.Errorf("%w: expected 2 balances, got %d", ErrRemoteDecode, len(results))
	}
	balA, ok := codec.Decode[ledger.Amount](results[0])
	if !ok {
		return nil, nil, fmt.Errorf("%w: asset_a balance", ErrRemoteDecode)
	}
	balB, ok := codec.Decode[ledger.Amount](results[1])
	if !ok {
		return nil, nil, fmt.Errorf("%w: asset_b balance", ErrRemoteDecode)
	}
	return balA.Value(), balB.Value(), nil
}

// settle runs on the fabric loop once both balances have resolved.
func (e *Exchange) settle(ctx context.Context, s *Settlement, results []fabric.Result) {
	a, b, err := decodeBalances(results)
	if err != nil {
		e.abort(s, err)
		return
	}
	s.observe(a, b)

	dir := s.Side.Direction()
	observedIn, observedOut := dir.Orient(a, b)
	if observedIn.Lt(s.Amount) {
		e.abort(s, fmt.Errorf("%w: %s has %s, deposit %s", ErrInconsistentBalance, s.Side, observedIn.Dec(), s.Amount.Dec()))
		return
	}

	// The balance already includes the deposit.
	reserveIn := new(uint256.Int).Sub(observedIn, s.Amount)
	out, err := pricing.Quote(reserveIn, observedOut, s.Amount)
	if err != nil {
		e.abort(s, err)
		return
	}
	if out.IsZero() {
		e.abort(s, fmt.Errorf("%w: %s in against reserves %s/%s", ErrZeroOutput, s.Amount.Dec(), reserveIn.Dec(), observedOut.Dec()))
		return
	}

	h := e.fabric.Dispatch(ctx, ledger.Transfer(e.owed(s.Side), s.Counterparty, out, e.stipend, settlementMemo))
	s.settling(out, h)

	postOut := new(uint256.Int).Sub(observedOut, out)
	if s.Side == FromAssetA {
		e.setReserves(observedIn, postOut)
	} else {
		e.setReserves(postOut, observedIn)
	}
	s.complete()

	e.metrics.Deposits.WithLabelValues("settled").Inc()
	e.logger.Info("exchange: settled",
		"counterparty", s.Counterparty.Hex(), "direction", dir, "amount_in", s.Amount.Dec(), "amount_out", out.Dec())
	ra, rb := e.PoolAmount(true), e.PoolAmount(false)
	e.emit(events.Event{
		Kind:         events.KindSettled,
		Counterparty: s.Counterparty,
		Direction:    dir.String(),
		AmountIn:     s.Amount,
		AmountOut:    out,
		ReserveA:     ra,
		ReserveB:     rb,
	})
}

func (e *Exchange) abort(s *Settlement, err error) {
	s.abort(err)
	e.metrics.Deposits.WithLabelValues("aborted").Inc()
	e.metrics.Aborted.WithLabelValues(reason(err)).Inc()
	e.logger.Warn("exchange: settlement aborted", "counterparty", s.Counterparty.Hex(), "side", s.Side, "err", err)
	e.emit(events.Event{
		Kind:         events.KindAborted,
		Counterparty: s.Counterparty,
		Direction:    s.Side.Direction().String(),
		AmountIn:     s.Amount,
		Reason:       reason(err),
	})
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
