package main

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/caesar-terminal/amm/internal/config"
	"github.com/caesar-terminal/amm/internal/kms"
	"github.com/caesar-terminal/amm/internal/signer"
)

func sealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal [hex-key]",
		Short: "Encrypt an exchange key with KMS",
		Long: `Encrypts a hex-encoded secp256k1 key with AMM_SIGNER_KMS_KEY_ID and prints
the base64 ciphertext. Store it in the file named by
AMM_SIGNER_KEY_CIPHERTEXT_FILE.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return seal(cmd, cfg, args[0])
		},
	}
}

func seal(cmd *cobra.Command, cfg *config.Config, keyHex string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	key, err := signer.FromHex(keyHex)
	if err != nil {
		return err
	}
	defer key.Destroy()

	kc, err := kms.New(ctx, cfg.Signer.AWSRegion, cfg.Signer.KMSKeyID, cfg.LocalStackEndpoint)
	if err != nil {
		return err
	}
	plain := common.FromHex(keyHex)
	defer memguard.WipeBytes(plain)
	ciphertext, err := kc.Encrypt(ctx, plain)
	if err != nil {
		return err
	}
	cmd.PrintErrf("sealed key for %s\n", key.Address().Hex())
	fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(ciphertext))
	return nil
}
