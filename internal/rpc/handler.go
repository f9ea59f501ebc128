// Package rpc exposes an exchange over gRPC on a Unix domain socket.
// Messages are plain structs encoded with a JSON codec.
package rpc

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/caesar-terminal/amm/internal/exchange"
	"github.com/caesar-terminal/amm/internal/pricing"
)

// Pool is the exchange surface served over RPC. Deposit notifications are
// not part of it; they reach the pool only from the ledger connection.
type Pool interface {
	Refresh(ctx context.Context) *exchange.Settlement
	Quote(amount *uint256.Int, d pricing.Direction) (*uint256.Int, error)
	Ticker() (string, error)
	Decimals() (uint8, uint8, error)
	PoolAmount(isAssetA bool) *uint256.Int
	Assets() (common.Address, common.Address)
	Self() common.Address
	Owner() common.Address
}

// Handler implements ExchangeServer on top of a Pool.
type Handler struct {
	pool Pool
}

func NewHandler(pool Pool) *Handler {
	return &Handler{pool: pool}
}

// Quote prices an amount against the last observed reserves.
func (h *Handler) Quote(_ context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	if req.Amount == nil {
		return nil, status.Errorf(codes.InvalidArgument, "amount is required")
	}
	var dir pricing.Direction
	switch req.Direction {
	case pricing.Positive.String():
		dir = pricing.Positive
	case pricing.Negative.String():
		dir = pricing.Negative
	default:
		return nil, status.Errorf(codes.InvalidArgument, "invalid direction %q", req.Direction)
	}

	out, err := h.pool.Quote(req.Amount, dir)
	if err != nil {
		return nil, toStatus(err)
	}
	return &QuoteResponse{Amount: out}, nil
}

// PoolInfo returns the query surface in one call.
func (h *Handler) PoolInfo(_ context.Context, _ *PoolInfoRequest) (*PoolInfoResponse, error) {
	ticker, err := h.pool.Ticker()
	if err != nil {
		return nil, toStatus(err)
	}
	da, db, err := h.pool.Decimals()
	if err != nil {
		return nil, toStatus(err)
	}
	a, b := h.pool.Assets()
	return &PoolInfoResponse{
		Ticker:    ticker,
		DecimalsA: da,
		DecimalsB: db,
		AssetA:    a,
		AssetB:    b,
		Self:      h.pool.Self(),
		Owner:     h.pool.Owner(),
		ReserveA:  h.pool.PoolAmount(true),
		ReserveB:  h.pool.PoolAmount(false),
	}, nil
}

// Refresh re-reads the reserves and waits for the result.
func (h *Handler) Refresh(ctx context.Context, _ *RefreshRequest) (*RefreshResponse, error) {
	s := h.pool.Refresh(ctx)
	select {
	case <-s.Done():
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	if err := s.Err(); err != nil {
		return nil, toStatus(err)
	}
	a, b := s.Observed()
	return &RefreshResponse{ReserveA: a, ReserveB: b}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, exchange.ErrUninitializedMetadata):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, exchange.ErrArithmeticOverflow):
		return status.Error(codes.OutOfRange, err.Error())
	default:
		return status.Errorf(codes.Internal, "%v", err)
	}
}
