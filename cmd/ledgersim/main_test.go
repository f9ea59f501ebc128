package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/caesar-terminal/amm/internal/ledger"
)

func TestApplyGrants(t *testing.T) {
	tok := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice := common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	mem := ledger.NewMemory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	mem.AddToken(tok, ledger.Metadata{Symbol: "WBTC", Decimals: 8})

	grants := tok.Hex() + ":" + alice.Hex() + ":100000000, " + tok.Hex() + ":" + bob.Hex() + ":7,"
	if err := applyGrants(mem, grants); err != nil {
		t.Fatalf("applyGrants: %v", err)
	}
	if got := mem.BalanceOf(tok, alice).Uint64(); got != 100_000_000 {
		t.Fatalf("alice balance = %d", got)
	}
	if got := mem.BalanceOf(tok, bob).Uint64(); got != 7 {
		t.Fatalf("bob balance = %d", got)
	}
}

func TestApplyGrantsRejectsMalformed(t *testing.T) {
	tok := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	mem := ledger.NewMemory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	mem.AddToken(tok, ledger.Metadata{Symbol: "WBTC"})

	for _, grants := range []string{
		"nonsense",
		tok.Hex() + ":alice:1",
		tok.Hex() + ":" + tok.Hex() + ":-5",
		"0x00000000000000000000000000000000000000cc:" + tok.Hex() + ":1",
	} {
		if err := applyGrants(mem, grants); err == nil {
			t.Errorf("expected error for %q", grants)
		}
	}
}
