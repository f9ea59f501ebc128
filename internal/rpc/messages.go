package rpc

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type QuoteRequest struct {
	Amount *uint256.Int `json:"amount"`
	// Direction is "a->b" or "b->a".
	Direction string `json:"direction"`
}

type QuoteResponse struct {
	Amount *uint256.Int `json:"amount"`
}

type PoolInfoRequest struct{}

type PoolInfoResponse struct {
	Ticker    string         `json:"ticker"`
	DecimalsA uint8          `json:"decimals_a"`
	DecimalsB uint8          `json:"decimals_b"`
	AssetA    common.Address `json:"asset_a"`
	AssetB    common.Address `json:"asset_b"`
	Self      common.Address `json:"self"`
	Owner     common.Address `json:"owner"`
	ReserveA  *uint256.Int   `json:"reserve_a"`
	ReserveB  *uint256.Int   `json:"reserve_b"`
}

type RefreshRequest struct{}

type RefreshResponse struct {
	ReserveA *uint256.Int `json:"reserve_a"`
	ReserveB *uint256.Int `json:"reserve_b"`
}
