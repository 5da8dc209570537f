package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/aethercore-labs/aethercore/crypto/address"
	"github.com/spf13/cobra"
)

var errInvalidSignature = errors.New("signature is not valid")

// keyFile is what keygen writes and sign reads.
type keyFile struct {
	Mnemonic        string               `json:"mnemonic,omitempty"`
	Address         string               `json:"address"`
	SignatureScheme string               `json:"signatureScheme"`
	SecurityLevel   crypto.SecurityLevel `json:"securityLevel"`
	PublicKey       []byte               `json:"publicKey"`
	PrivateKey      []byte               `json:"privateKey"`
}

func newKeygenCommand() *cobra.Command {
	var (
		level      int
		mnemonic   string
		passphrase string
		out        string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a key pair and address, optionally recovered from a mnemonic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sl := crypto.SecurityLevel(level)
			if mnemonic == "" {
				var err error
				if mnemonic, err = crypto.NewMnemonic(); err != nil {
					return err
				}
			}
			kp, err := crypto.KeyPairFromMnemonic(mnemonic, passphrase, sl)
			if err != nil {
				return err
			}
			addr, err := address.FromPublicKey(kp.PublicKey)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(keyFile{
				Mnemonic:        mnemonic,
				Address:         addr,
				SignatureScheme: sl.SignatureScheme(),
				SecurityLevel:   kp.SecurityLevel,
				PublicKey:       kp.PublicKey,
				PrivateKey:      kp.PrivateKey,
			}, "", "  ")
			if err != nil {
				return err
			}
			if out != "" {
				if err := os.WriteFile(out, data, 0o600); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), addr)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().IntVar(&level, "level", 3, "security level 1-5")
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "recover from this BIP-39 phrase")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "BIP-39 passphrase")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the key file here instead of stdout")
	return cmd
}

func readKeyFile(path string) (*crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	return crypto.ParsePrivateKey(kf.PrivateKey)
}

func newSignCommand() *cobra.Command {
	var keyPath, message string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a message with a key file and print the base64 signature",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := readKeyFile(keyPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(key.Sign([]byte(message))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "key file written by keygen")
	cmd.Flags().StringVarP(&message, "message", "m", "", "message to sign")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newVerifyCommand() *cobra.Command {
	var publicKey, message, signature string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a base64 signature against a base64 public key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pub, err := base64.StdEncoding.DecodeString(publicKey)
			if err != nil {
				return fmt.Errorf("public key: %w", err)
			}
			sig, err := base64.StdEncoding.DecodeString(signature)
			if err != nil {
				return fmt.Errorf("signature: %w", err)
			}
			if !crypto.Verify([]byte(message), sig, pub) {
				return errInvalidSignature
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&publicKey, "public-key", "", "base64 public key")
	cmd.Flags().StringVarP(&message, "message", "m", "", "signed message")
	cmd.Flags().StringVarP(&signature, "signature", "s", "", "base64 signature")
	_ = cmd.MarkFlagRequired("public-key")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}
