// Package pricing implements the constant-product swap rule used by the
// exchange. All arithmetic is unsigned 256-bit; reserves and amounts are in
// the asset's smallest unit.
package pricing

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrArithmeticOverflow is returned when an intermediate product or sum does
// not fit in 256 bits. It is never silently wrapped.
var ErrArithmeticOverflow = errors.New("pricing: arithmetic overflow")

// Direction selects which reserve is paid in and which is paid out.
type Direction uint8

const (
	// Positive quotes asset B output for asset A input.
	Positive Direction = iota + 1
	// Negative quotes asset A output for asset B input.
	Negative
)

func (d Direction) String() string {
	switch d {
	case Positive:
		return "a->b"
	case Negative:
		return "b->a"
	default:
		return "unknown"
	}
}

// Orient returns (reserveIn, reserveOut) for the direction.
func (d Direction) Orient(reserveA, reserveB *uint256.Int) (*uint256.Int, *uint256.Int) {
	if d == Negative {
		return reserveB, reserveA
	}
	return reserveA, reserveB
}

// Invariant returns k = a * b.
func Invariant(a, b *uint256.Int) (*uint256.Int, error) {
	k, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}
	return k, nil
}

// Quote returns the output paid for amountIn against the given reserves:
//
//	out = reserveOut - floor(reserveIn*reserveOut / (reserveIn+amountIn))
//
// A zero or nil reserve or amount quotes zero. The result is capped one
// unit below reserveOut so the pool is never emptied. Inputs are not
// modified.
func Quote(reserveIn, reserveOut, amountIn *uint256.Int) (*uint256.Int, error) {
	if isZero(reserveIn) || isZero(reserveOut) || isZero(amountIn) {
		return new(uint256.Int), nil
	}

	k, err := Invariant(reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}

	x, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrArithmeticOverflow, reserveIn.Dec(), amountIn.Dec())
	}

	remaining := new(uint256.Int).Div(k, x)
	if remaining.IsZero() {
		// Dust-sized pool: keep one unit behind.
		remaining.SetOne()
	}
	return new(uint256.Int).Sub(reserveOut, remaining), nil
}

// QuoteDirection prices amountIn against (reserveA, reserveB) in the given
// direction.
func QuoteDirection(reserveA, reserveB, amountIn *uint256.Int, d Direction) (*uint256.Int, error) {
	in, out := d.Orient(reserveA, reserveB)
	return Quote(in, out, amountIn)
}

func isZero(v *uint256.Int) bool { return v == nil || v.IsZero() }
