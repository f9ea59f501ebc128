// Package signer holds the exchange account key and signs call envelopes
// with it.
package signer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrNoKey         = errors.New("signer: no key loaded")
	ErrInvalidDigest = errors.New("signer: digest must be 32 bytes")
)

// Decrypter unwraps a sealed key. Satisfied by *kms.Client.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Key keeps a secp256k1 private key sealed in a memguard Enclave. The key is
// only opened for the duration of a Sign call.
type Key struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
	address common.Address

	signed atomic.Uint64
}

// New seals keyBytes and derives the account address. keyBytes is wiped.
func New(keyBytes []byte) (*Key, error) {
	defer memguard.WipeBytes(keyBytes)

	privKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid private key: %w", err)
	}
	k := &Key{address: crypto.PubkeyToAddress(privKey.PublicKey)}
	k.enclave = memguard.NewEnclave(keyBytes)
	return k, nil
}

// FromHex loads a hex-encoded key, with or without 0x prefix.
func FromHex(s string) (*Key, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer: decode key hex: %w", err)
	}
	return New(raw)
}

// FromCiphertext decrypts a sealed key with d and loads it.
func FromCiphertext(ctx context.Context, d Decrypter, ciphertext []byte) (*Key, error) {
	plain, err := d.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, err
	}
	return New(plain)
}

// Address is the account the key controls.
func (k *Key) Address() common.Address {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.address
}

// Sign returns a 65-byte [R || S || V] signature over digest, V in {0, 1}.
func (k *Key) Sign(digest []byte) ([]byte, error) {
	if len(digest) != common.HashLength {
		return nil, ErrInvalidDigest
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.enclave == nil {
		return nil, ErrNoKey
	}

	buf, err := k.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("signer: open enclave: %w", err)
	}
	privKey, err := crypto.ToECDSA(buf.Bytes())
	buf.Destroy()
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}

	sig, err := crypto.Sign(digest, privKey)
	if err != nil {
		return nil, fmt.Errorf("signer: ecdsa sign: %w", err)
	}
	k.signed.Add(1)
	return sig, nil
}

// Signed is the number of signatures produced.
func (k *Key) Signed() uint64 { return k.signed.Load() }

// Loaded reports whether the key is still available.
func (k *Key) Loaded() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.enclave != nil
}

// Destroy drops the enclave. Sign fails afterwards.
func (k *Key) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enclave = nil
}
