// Package events distributes exchange activity to in-process subscribers
// and persists pool snapshots to Redis.
package events

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Kind classifies an Event.
type Kind uint8

const (
	KindBootstrapped Kind = iota + 1
	KindBootstrapFailed
	KindSettled
	KindAborted
	KindSeeded
	KindRefreshed
)

func (k Kind) String() string {
	switch k {
	case KindBootstrapped:
		return "bootstrapped"
	case KindBootstrapFailed:
		return "bootstrap_failed"
	case KindSettled:
		return "settled"
	case KindAborted:
		return "aborted"
	case KindSeeded:
		return "seeded"
	case KindRefreshed:
		return "refreshed"
	default:
		return "unknown"
	}
}

// Event is one observable step of a pool's life. Reserve fields are set
// only when the event carries a fresh reserve observation.
type Event struct {
	Kind Kind
	Pool string

	Counterparty common.Address
	Direction    string
	AmountIn     *uint256.Int
	AmountOut    *uint256.Int

	ReserveA *uint256.Int
	ReserveB *uint256.Int

	Reason    string
	Timestamp time.Time
}

// HasReserves reports whether e carries a reserve observation.
func (e Event) HasReserves() bool {
	return e.ReserveA != nil && e.ReserveB != nil
}

// Source is anything that emits events, typically an exchange.
type Source interface {
	Events() <-chan Event
}
