package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func e8(v uint64) *uint256.Int { return new(uint256.Int).Mul(u(v), u(100_000_000)) }

func TestQuote_PositiveScenario(t *testing.T) {
	out, err := QuoteDirection(e8(10), e8(40000), e8(1), Positive)
	require.NoError(t, err)
	require.Equal(t, "363636363637", out.Dec())

	whole := new(uint256.Int).Div(out, u(100_000_000))
	require.Equal(t, uint64(3636), whole.Uint64())
}

func TestQuote_NegativeScenario(t *testing.T) {
	out, err := QuoteDirection(e8(10), e8(40000), e8(4000), Negative)
	require.NoError(t, err)
	require.Equal(t, uint64(90909091), out.Uint64())
}

func TestQuote_ZeroAmount(t *testing.T) {
	out, err := Quote(u(1_000_000), u(2_000_000), u(0))
	require.NoError(t, err)
	require.True(t, out.IsZero())
}

func TestQuote_NilOperandsQuoteZero(t *testing.T) {
	for _, tc := range []struct {
		name            string
		in, out, amount *uint256.Int
	}{
		{"amount", u(1_000), u(2_000), nil},
		{"reserve_in", nil, u(2_000), u(10)},
		{"reserve_out", u(1_000), nil, u(10)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Quote(tc.in, tc.out, tc.amount)
			require.NoError(t, err)
			require.True(t, got.IsZero())
		})
	}

	got, err := QuoteDirection(e8(10), e8(40000), nil, Negative)
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestQuote_ZeroReserve(t *testing.T) {
	for _, tc := range []struct {
		name    string
		in, out *uint256.Int
	}{
		{"in", u(0), u(500)},
		{"out", u(500), u(0)},
		{"both", u(0), u(0)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Quote(tc.in, tc.out, u(1_000))
			require.NoError(t, err)
			require.True(t, got.IsZero())
		})
	}
}

func TestQuote_DustPoolKeepsOneUnit(t *testing.T) {
	got, err := Quote(u(1), u(1), u(1))
	require.NoError(t, err)
	require.True(t, got.IsZero())

	got, err = Quote(u(1), u(10), u(1_000))
	require.NoError(t, err)
	require.Equal(t, uint64(9), got.Uint64())
}

func TestQuote_DoesNotMutateInputs(t *testing.T) {
	in, out, amt := u(1_000), u(2_000), u(10)
	_, err := Quote(in, out, amt)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), in.Uint64())
	require.Equal(t, uint64(2_000), out.Uint64())
	require.Equal(t, uint64(10), amt.Uint64())
}

func TestQuote_Overflow(t *testing.T) {
	top := new(uint256.Int).SetAllOne()
	_, err := Quote(top, u(2), u(1))
	require.True(t, errors.Is(err, ErrArithmeticOverflow), "got %v", err)

	half := new(uint256.Int).Rsh(top, 1)
	_, err = Quote(top, u(1), half)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestQuote_128BitReserves(t *testing.T) {
	r := new(uint256.Int).Lsh(u(1), 127)
	out, err := Quote(r, r, r)
	require.NoError(t, err)
	// k / 2r = r/2, so out = r - r/2.
	require.Equal(t, new(uint256.Int).Rsh(r, 1), out)
}

func TestInvariant(t *testing.T) {
	k, err := Invariant(e8(10), e8(40000))
	require.NoError(t, err)
	require.Equal(t, "4000000000000000000000", k.Dec())
}

func TestDirection_String(t *testing.T) {
	require.Equal(t, "a->b", Positive.String())
	require.Equal(t, "b->a", Negative.String())
	require.Equal(t, "unknown", Direction(0).String())
}

func TestQuote_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rIn := rapid.Uint64Range(1, math.MaxUint64).Draw(t, "reserveIn")
		rOut := rapid.Uint64Range(1, math.MaxUint64).Draw(t, "reserveOut")
		a := rapid.Uint64Range(1, math.MaxUint64-1).Draw(t, "amountIn")

		out, err := Quote(u(rIn), u(rOut), u(a))
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		if !out.Lt(u(rOut)) {
			t.Fatalf("output %s not below reserve %d", out.Dec(), rOut)
		}

		more, err := Quote(u(rIn), u(rOut), u(a+1))
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		if more.Lt(out) {
			t.Fatalf("not monotone: q(%d)=%s > q(%d)=%s", a, out.Dec(), a+1, more.Dec())
		}
	})
}

// The floor in Quote can hand the trader at most one extra unit, so the
// reverse trade is priced on the output less that unit.
func TestQuote_RoundTripFavorsPool(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rIn := rapid.Uint64Range(1, math.MaxUint64).Draw(t, "reserveIn")
		rOut := rapid.Uint64Range(1, math.MaxUint64).Draw(t, "reserveOut")
		a := rapid.Uint64Range(1, math.MaxUint64>>1).Draw(t, "amountIn")

		out, err := Quote(u(rIn), u(rOut), u(a))
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		if out.IsZero() {
			return
		}
		back, err := Quote(u(rOut), u(rIn), new(uint256.Int).Sub(out, u(1)))
		if err != nil {
			t.Fatalf("reverse quote: %v", err)
		}
		if back.Gt(u(a)) {
			t.Fatalf("round trip returned %s for %d", back.Dec(), a)
		}
	})
}

func TestQuote_RoundTripScenario(t *testing.T) {
	out, err := QuoteDirection(e8(10), e8(40000), e8(1), Positive)
	require.NoError(t, err)
	back, err := QuoteDirection(e8(10), e8(40000), out, Negative)
	require.NoError(t, err)
	require.False(t, back.Gt(e8(1)), "got %s", back.Dec())
}

// k only shrinks by the truncation of the floor division, which is less
// than the post-trade input reserve.
func TestInvariantAfterTrade(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rIn := rapid.Uint64Range(1, 1<<62).Draw(t, "reserveIn")
		rOut := rapid.Uint64Range(1, 1<<62).Draw(t, "reserveOut")
		a := rapid.Uint64Range(0, 1<<62).Draw(t, "amountIn")

		out, err := Quote(u(rIn), u(rOut), u(a))
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		x := new(uint256.Int).Add(u(rIn), u(a))
		before, _ := Invariant(u(rIn), u(rOut))
		after, _ := Invariant(x, new(uint256.Int).Sub(u(rOut), out))
		if !new(uint256.Int).Add(after, x).Gt(before) {
			t.Fatalf("k dropped more than truncation: %s -> %s", before.Dec(), after.Dec())
		}
	})
}
