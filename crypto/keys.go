package crypto

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/sha3"
)

var mnemonicDomain = []byte("aethercore/mnemonic/v1")

// KeyPair is the serialized form of an identity's keys.
type KeyPair struct {
	PublicKey     []byte        `json:"publicKey"`
	PrivateKey    []byte        `json:"privateKey"`
	SecurityLevel SecurityLevel `json:"securityLevel"`
}

// GenerateKeyPair creates a new random key pair. Higher levels select larger
// seeds and stronger ML-DSA/ML-KEM parameter sets.
func GenerateKeyPair(level SecurityLevel) (*KeyPair, error) {
	priv, err := NewPrivateKey(level)
	if err != nil {
		return nil, err
	}
	return keyPairOf(priv), nil
}

// NewMnemonic returns a fresh 24-word BIP-39 phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// KeyPairFromMnemonic deterministically derives a key pair from a BIP-39
// phrase, so a wallet can be recovered from its words alone.
func KeyPairFromMnemonic(mnemonic, passphrase string, level SecurityLevel) (*KeyPair, error) {
	priv, err := PrivateKeyFromMnemonic(mnemonic, passphrase, level)
	if err != nil {
		return nil, err
	}
	return keyPairOf(priv), nil
}

func PrivateKeyFromMnemonic(mnemonic, passphrase string, level SecurityLevel) (*PrivateKey, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSecurityLevel, int(level))
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, invalidKey("invalid mnemonic", nil)
	}
	bipSeed := bip39.NewSeed(mnemonic, passphrase)
	seed := make([]byte, level.SeedSize())
	sha3.ShakeSum256(seed, append(append([]byte{}, mnemonicDomain...), bipSeed...))
	return NewPrivateKeyFromSeed(level, seed)
}

func keyPairOf(priv *PrivateKey) *KeyPair {
	return &KeyPair{
		PublicKey:     priv.PublicKey().Bytes(),
		PrivateKey:    priv.Bytes(),
		SecurityLevel: priv.Level(),
	}
}

// Sign signs message with a serialized private key.
func Sign(message, privateKey []byte) ([]byte, error) {
	priv, err := ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return priv.Sign(message), nil
}

// Verify checks signature against a serialized public key. Any malformed
// input yields false.
func Verify(message, signature, publicKey []byte) bool {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return false
	}
	return pub.Verify(message, signature)
}
