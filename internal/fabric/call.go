package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	ErrUnsigned     = errors.New("fabric: call is not signed")
	ErrBadSignature = errors.New("fabric: signature does not match caller")
)

// Status is the state of a remote call result.
type Status uint8

const (
	StatusPending Status = iota
	StatusSuccessful
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccessful:
		return "successful"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what a continuation observes for one dispatched call. Err is
// diagnostic only; a failed result carries no payload.
type Result struct {
	Status  Status
	Payload []byte
	Err     error
}

// Call is the envelope sent to a ledger. Deposit is the amount attached to
// the call (the registration stipend for transfers).
type Call struct {
	ID        uint64          `json:"id"`
	Caller    common.Address  `json:"caller"`
	Target    common.Address  `json:"target"`
	Method    string          `json:"method"`
	Args      json.RawMessage `json:"args,omitempty"`
	Deposit   *uint256.Int    `json:"deposit,omitempty"`
	Signature hexutil.Bytes   `json:"signature,omitempty"`
}

// Digest is the keccak256 hash of the envelope with the signature cleared.
func (c Call) Digest() (common.Hash, error) {
	c.Signature = nil
	raw, err := json.Marshal(c)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fabric: encode call: %w", err)
	}
	return crypto.Keccak256Hash(raw), nil
}

// Verify checks that Signature was produced by Caller over Digest.
func (c Call) Verify() error {
	if len(c.Signature) != crypto.SignatureLength {
		return ErrUnsigned
	}
	digest, err := c.Digest()
	if err != nil {
		return err
	}
	pub, err := crypto.SigToPub(digest.Bytes(), c.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != c.Caller {
		return ErrBadSignature
	}
	return nil
}

// Transport executes a call against the remote ledger and returns its raw
// JSON result.
type Transport interface {
	Invoke(ctx context.Context, call Call) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, call Call) ([]byte, error)

func (f TransportFunc) Invoke(ctx context.Context, call Call) ([]byte, error) { return f(ctx, call) }

// Signer stamps outgoing calls with the exchange identity.
type Signer interface {
	Address() common.Address
	Sign(digest []byte) ([]byte, error)
}

// Request describes a call to dispatch. Args is marshalled to JSON.
type Request struct {
	Target  common.Address
	Method  string
	Args    any
	Deposit *uint256.Int
}
