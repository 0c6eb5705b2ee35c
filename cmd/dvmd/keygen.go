package main

import (
	"crypto/sha256"
	"fmt"

	"github.com/spf13/cobra"
	bip39 "github.com/tyler-smith/go-bip39"

	"github.com/dfinance/dvm-sub000/address"
)

type keygenResponse struct {
	Mnemonic string `json:"mnemonic"`
	Address  string `json:"address"`
}

// keygenCmd derives a throwaway signer address from a fresh BIP-39
// mnemonic, the same generator shape load-generator/src/dvm/client.rs
// uses to mint test signer addresses: this module has no HD-wallet key
// hierarchy of its own, so the derivation stops one step short of the
// teacher's full hardened-derivation tree (core/wallet.go's
// NewHDWalletFromSeed) and instead takes the seed's own hash as the
// address, which is all a harness fixture needs.
func keygenCmd() *cobra.Command {
	var bits int
	var passphrase string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "derive a deterministic test signer address from a fresh BIP-39 mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			entropy, err := bip39.NewEntropy(bits)
			if err != nil {
				return fmt.Errorf("cmd/dvmd: keygen: entropy: %w", err)
			}
			mnemonic, err := bip39.NewMnemonic(entropy)
			if err != nil {
				return fmt.Errorf("cmd/dvmd: keygen: mnemonic: %w", err)
			}
			seed := bip39.NewSeed(mnemonic, passphrase)
			sum := sha256.Sum256(seed)
			addr, err := address.FromBytes(sum[:address.Size])
			if err != nil {
				return err
			}
			return writeResponse(keygenResponse{Mnemonic: mnemonic, Address: addr.Hex()})
		},
	}
	cmd.Flags().IntVar(&bits, "bits", 128, "entropy bits for the generated mnemonic (128, 160, 192, 224, or 256)")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "optional BIP-39 passphrase")
	return cmd
}
