package exchange

import (
	"errors"

	"github.com/caesar-terminal/amm/internal/pricing"
)

// Sentinel errors. Every one is terminal for the operation that returns it;
// exchange state is only written on success paths.
var (
	ErrUnauthorizedCaller    = errors.New("exchange: deposit notification from unknown ledger")
	ErrRemoteDecode          = errors.New("exchange: remote result unusable")
	ErrArithmeticOverflow    = pricing.ErrArithmeticOverflow
	ErrUninitializedMetadata = errors.New("exchange: metadata not initialized")
	ErrAlreadyInitialized    = errors.New("exchange: already initialized")
	ErrIdenticalAssets       = errors.New("exchange: asset_a and asset_b must differ")
	ErrZeroAmount            = errors.New("exchange: deposit amount is zero")
	ErrInconsistentBalance   = errors.New("exchange: observed balance below deposit")
	ErrZeroOutput            = errors.New("exchange: trade quotes zero output")
	ErrBootstrap             = errors.New("exchange: metadata bootstrap failed")
)

// reason maps an abort cause to its metric label.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrRemoteDecode):
		return "remote_decode"
	case errors.Is(err, ErrArithmeticOverflow):
		return "overflow"
	case errors.Is(err, ErrInconsistentBalance):
		return "inconsistent_balance"
	case errors.Is(err, ErrZeroOutput):
		return "zero_output"
	default:
		return "other"
	}
}
