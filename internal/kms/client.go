// Package kms seals and unseals the exchange key with AWS KMS.
package kms

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

var ErrEmptyPlaintext = errors.New("kms: empty plaintext")

// API is the subset of the KMS SDK client used here.
type API interface {
	Decrypt(ctx context.Context, in *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
	Encrypt(ctx context.Context, in *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
}

// Client wraps KMS for key sealing. KeyID is only needed to Encrypt;
// symmetric ciphertexts carry their key reference.
type Client struct {
	api   API
	keyID string
}

// New creates a Client. A non-empty localStackEndpoint targets LocalStack
// with static test credentials; otherwise the default credential chain is
// used.
func New(ctx context.Context, region, keyID, localStackEndpoint string) (*Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if localStackEndpoint != "" {
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("kms: load aws config: %w", err)
	}

	var kmsOpts []func(*kms.Options)
	if localStackEndpoint != "" {
		kmsOpts = append(kmsOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(localStackEndpoint)
		})
	}

	return NewWithAPI(kms.NewFromConfig(cfg, kmsOpts...), keyID), nil
}

// NewWithAPI wraps an existing API implementation.
func NewWithAPI(api API, keyID string) *Client {
	return &Client{api: api, keyID: keyID}
}

// Decrypt returns the plaintext of ciphertext. The caller owns the returned
// bytes and should wipe them.
func (c *Client) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	in := &kms.DecryptInput{CiphertextBlob: ciphertext}
	if c.keyID != "" {
		in.KeyId = aws.String(c.keyID)
	}
	out, err := c.api.Decrypt(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("kms: decrypt: %w", err)
	}
	if len(out.Plaintext) == 0 {
		return nil, ErrEmptyPlaintext
	}
	return out.Plaintext, nil
}

// Encrypt seals plaintext under the configured key.
func (c *Client) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if c.keyID == "" {
		return nil, errors.New("kms: encrypt needs a key id")
	}
	out, err := c.api.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(c.keyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("kms: encrypt %s: %w", c.keyID, err)
	}
	return out.CiphertextBlob, nil
}
