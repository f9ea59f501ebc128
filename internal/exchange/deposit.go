package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/caesar-terminal/amm/internal/pricing"
)

// Deposit is an inbound transfer notification. Ledger is the asset ledger
// that reports the transfer; Sender is the counterparty.
type Deposit struct {
	Ledger common.Address
	Sender common.Address
	Amount *uint256.Int
	Memo   string
}

// Side is the asset a deposit was made in, resolved once at entry.
type Side uint8

const (
	FromAssetA Side = iota + 1
	FromAssetB
)

func (s Side) String() string {
	switch s {
	case FromAssetA:
		return "asset_a"
	case FromAssetB:
		return "asset_b"
	default:
		return "unknown"
	}
}

// Direction is the pricing direction of a trade paid in on this side.
func (s Side) Direction() pricing.Direction {
	if s == FromAssetB {
		return pricing.Negative
	}
	return pricing.Positive
}

// resolve maps the notifying ledger to a Side.
func (e *Exchange) resolve(d Deposit) (Side, error) {
	switch d.Ledger {
	case e.assetA:
		return FromAssetA, nil
	case e.assetB:
		return FromAssetB, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnauthorizedCaller, d.Ledger.Hex())
	}
}

// owed returns the ledger paying out for a deposit on side s.
func (e *Exchange) owed(s Side) common.Address {
	if s == FromAssetB {
		return e.assetA
	}
	return e.assetB
}
