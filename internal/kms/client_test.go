package kms

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// xorAPI "encrypts" by xoring with a fixed byte so tests can round-trip.
type xorAPI struct {
	lastKeyID string
	err       error
}

func xor(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ 0x5a
	}
	return out
}

func (x *xorAPI) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if x.err != nil {
		return nil, x.err
	}
	x.lastKeyID = aws.ToString(in.KeyId)
	return &kms.DecryptOutput{Plaintext: xor(in.CiphertextBlob)}, nil
}

func (x *xorAPI) Encrypt(_ context.Context, in *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	if x.err != nil {
		return nil, x.err
	}
	x.lastKeyID = aws.ToString(in.KeyId)
	return &kms.EncryptOutput{CiphertextBlob: xor(in.Plaintext)}, nil
}

func TestClient_RoundTrip(t *testing.T) {
	api := &xorAPI{}
	c := NewWithAPI(api, "alias/amm-exchange")

	sealed, err := c.Encrypt(context.Background(), []byte("secret key"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if api.lastKeyID != "alias/amm-exchange" {
		t.Fatalf("encrypt used key %q", api.lastKeyID)
	}

	plain, err := c.Decrypt(context.Background(), sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(plain, []byte("secret key")) {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestClient_Errors(t *testing.T) {
	boom := errors.New("AccessDeniedException")
	c := NewWithAPI(&xorAPI{err: boom}, "alias/amm-exchange")

	if _, err := c.Decrypt(context.Background(), []byte{1}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped decrypt error, got %v", err)
	}
	if _, err := c.Encrypt(context.Background(), []byte{1}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped encrypt error, got %v", err)
	}

	if _, err := NewWithAPI(&xorAPI{}, "").Encrypt(context.Background(), []byte{1}); err == nil {
		t.Fatal("expected encrypt without key id to fail")
	}
	if _, err := NewWithAPI(&xorAPI{}, "").Decrypt(context.Background(), nil); !errors.Is(err, ErrEmptyPlaintext) {
		t.Fatalf("expected ErrEmptyPlaintext, got %v", err)
	}
}
