// Package ledger defines the fungible-asset ledger protocol the exchange
// talks to, and an in-memory ledger that implements it.
package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/caesar-terminal/amm/internal/fabric"
)

// Ledger methods.
const (
	MethodBalanceOf      = "ft_balance_of"
	MethodTransfer       = "ft_transfer"
	MethodTransferCall   = "ft_transfer_call"
	MethodMetadata       = "ft_metadata"
	MethodStorageDeposit = "storage_deposit"

	// MethodOnTransfer names the notification a ledger sends to the
	// receiver of ft_transfer_call.
	MethodOnTransfer = "ft_on_transfer"
)

var ErrInvalidMetadata = errors.New("ledger: invalid metadata")

// Amount is a quantity in the asset's smallest unit, encoded as a quoted
// decimal string.
type Amount struct {
	uint256.Int
}

// NewAmount copies v into an Amount.
func NewAmount(v *uint256.Int) Amount {
	var a Amount
	a.Set(v)
	return a
}

// Value returns a copy of the amount.
func (a *Amount) Value() *uint256.Int { return new(uint256.Int).Set(&a.Int) }

// Metadata describes an asset.
type Metadata struct {
	Spec     string `json:"spec"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Validate rejects records without a symbol.
func (m *Metadata) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidMetadata)
	}
	return nil
}

type BalanceOfArgs struct {
	AccountID common.Address `json:"account_id"`
}

type TransferArgs struct {
	ReceiverID common.Address `json:"receiver_id"`
	Amount     *uint256.Int   `json:"amount"`
	Memo       string         `json:"memo,omitempty"`
}

type TransferCallArgs struct {
	ReceiverID common.Address `json:"receiver_id"`
	Amount     *uint256.Int   `json:"amount"`
	Memo       string         `json:"memo,omitempty"`
	Msg        string         `json:"msg"`
}

type StorageDepositArgs struct {
	AccountID common.Address `json:"account_id"`
}

// Notification is delivered to the receiver of ft_transfer_call after the
// funds have moved. Ledger is the asset that moved them.
type Notification struct {
	Ledger common.Address `json:"ledger"`
	Sender common.Address `json:"sender_id"`
	Amount *uint256.Int   `json:"amount"`
	Msg    string         `json:"msg,omitempty"`
}

// BalanceOf builds an ft_balance_of request.
func BalanceOf(token, holder common.Address) fabric.Request {
	return fabric.Request{
		Target: token,
		Method: MethodBalanceOf,
		Args:   BalanceOfArgs{AccountID: holder},
	}
}

// MetadataOf builds an ft_metadata request.
func MetadataOf(token common.Address) fabric.Request {
	return fabric.Request{Target: token, Method: MethodMetadata}
}

// Transfer builds an ft_transfer request with stipend attached.
func Transfer(token, receiver common.Address, amount, stipend *uint256.Int, memo string) fabric.Request {
	return fabric.Request{
		Target:  token,
		Method:  MethodTransfer,
		Args:    TransferArgs{ReceiverID: receiver, Amount: amount, Memo: memo},
		Deposit: stipend,
	}
}
