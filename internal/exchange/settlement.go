package exchange

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/caesar-terminal/amm/internal/fabric"
)

// Stage is the lifecycle position of a settlement.
type Stage uint8

const (
	StageIdle Stage = iota + 1
	StageAwaitingBalances
	StageSettling
	StageAborted
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageAwaitingBalances:
		return "awaiting_balances"
	case StageSettling:
		return "settling"
	case StageAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Settlement tracks one deposit (or one reserve refresh) through the
// orchestrator. It is owned by its continuation chain; callers only read it.
type Settlement struct {
	Counterparty common.Address
	Side         Side
	Amount       *uint256.Int

	mu       sync.RWMutex
	stage    Stage
	observed [2]*uint256.Int
	output   *uint256.Int
	transfer *fabric.Handle
	err      error
	done     chan struct{}
}

func newSettlement(counterparty common.Address, side Side, amount *uint256.Int) *Settlement {
	return &Settlement{
		Counterparty: counterparty,
		Side:         side,
		Amount:       amount,
		stage:        StageIdle,
		done:         make(chan struct{}),
	}
}

// Stage returns the current stage.
func (s *Settlement) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// Done is closed when the settlement is back in Idle or has aborted.
func (s *Settlement) Done() <-chan struct{} { return s.done }

// Err is the abort cause, nil otherwise.
func (s *Settlement) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Output is the amount sent to the counterparty. Zero until settled, and
// zero for owner deposits.
func (s *Settlement) Output() *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.output == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(s.output)
}

// Observed returns the balances of asset A and asset B seen by the
// balance queries, or nils before they resolve.
func (s *Settlement) Observed() (a, b *uint256.Int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.observed[0], s.observed[1]
}

// Transfer is the outbound transfer handle. The orchestrator never waits on
// it; nil unless the settlement reached Settling.
func (s *Settlement) Transfer() *fabric.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transfer
}

func (s *Settlement) advance(to Stage) {
	s.mu.Lock()
	s.stage = to
	s.mu.Unlock()
}

func (s *Settlement) observe(a, b *uint256.Int) {
	s.mu.Lock()
	s.observed = [2]*uint256.Int{a, b}
	s.mu.Unlock()
}

func (s *Settlement) settling(out *uint256.Int, h *fabric.Handle) {
	s.mu.Lock()
	s.stage = StageSettling
	s.output = out
	s.transfer = h
	s.mu.Unlock()
}

func (s *Settlement) complete() {
	s.mu.Lock()
	s.stage = StageIdle
	s.mu.Unlock()
	close(s.done)
}

func (s *Settlement) abort(err error) {
	s.mu.Lock()
	s.stage = StageAborted
	s.err = err
	s.mu.Unlock()
	close(s.done)
}
