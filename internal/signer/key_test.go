package signer

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

type fakeDecrypter struct {
	plain []byte
	err   error
}

func (f fakeDecrypter) Decrypt(context.Context, []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]byte, len(f.plain))
	copy(out, f.plain)
	return out, nil
}

func TestKey_SignRecoversAddress(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	want := crypto.PubkeyToAddress(priv.PublicKey)

	k, err := FromHex("0x" + hex.EncodeToString(crypto.FromECDSA(priv)))
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if k.Address() != want {
		t.Fatalf("address mismatch: got %s, want %s", k.Address().Hex(), want.Hex())
	}

	digest := crypto.Keccak256([]byte("ft_transfer"))
	sig, err := k.Sign(digest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != crypto.SignatureLength {
		t.Fatalf("expected %d-byte signature, got %d", crypto.SignatureLength, len(sig))
	}
	if v := sig[64]; v != 0 && v != 1 {
		t.Fatalf("expected v in {0,1}, got %d", v)
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub); got != want {
		t.Fatalf("recovered %s, want %s", got.Hex(), want.Hex())
	}
	if k.Signed() != 1 {
		t.Fatalf("expected 1 signature counted, got %d", k.Signed())
	}
}

func TestKey_WipesInput(t *testing.T) {
	priv, _ := crypto.GenerateKey()
	raw := crypto.FromECDSA(priv)

	if _, err := New(raw); err != nil {
		t.Fatalf("New: %v", err)
	}
	for i, b := range raw {
		if b != 0 {
			t.Fatalf("key byte %d not wiped", i)
		}
	}
}

func TestKey_RejectsBadInput(t *testing.T) {
	if _, err := FromHex("not-hex"); err == nil {
		t.Fatal("expected hex decode error")
	}
	if _, err := New(make([]byte, 32)); err == nil {
		t.Fatal("expected zero key to be rejected")
	}

	priv, _ := crypto.GenerateKey()
	k, err := New(crypto.FromECDSA(priv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := k.Sign([]byte("short")); !errors.Is(err, ErrInvalidDigest) {
		t.Fatalf("expected ErrInvalidDigest, got %v", err)
	}
}

func TestKey_Destroy(t *testing.T) {
	priv, _ := crypto.GenerateKey()
	k, err := New(crypto.FromECDSA(priv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	k.Destroy()
	if k.Loaded() {
		t.Fatal("key still loaded after Destroy")
	}
	if _, err := k.Sign(crypto.Keccak256([]byte("x"))); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
}

func TestFromCiphertext(t *testing.T) {
	priv, _ := crypto.GenerateKey()
	want := crypto.PubkeyToAddress(priv.PublicKey)

	k, err := FromCiphertext(context.Background(), fakeDecrypter{plain: crypto.FromECDSA(priv)}, []byte("sealed"))
	if err != nil {
		t.Fatalf("FromCiphertext: %v", err)
	}
	if k.Address() != want {
		t.Fatalf("address mismatch")
	}

	boom := errors.New("AccessDeniedException")
	if _, err := FromCiphertext(context.Background(), fakeDecrypter{err: boom}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected decrypt error, got %v", err)
	}
}
