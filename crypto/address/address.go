package address

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/aethercore-labs/aethercore/crypto/hash"
)

const (
	// AddressWords is the number of 5-bit words in the data part: 20 hash
	// bytes are 160 bits, 32 words.
	AddressWords = 32
	AddressHRP   = "atc"
)

// Address holds the 32 5-bit words of the bech32 data part.
type Address [AddressWords]byte

// New derives the address of a public key from the first 20 bytes of its
// SHA3-256 digest.
func New(pubKey *crypto.PublicKey) (*Address, error) {
	if pubKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	digest := hash.NewHash(pubKey.Bytes())
	words, err := bech32.ConvertBits(digest[:20], 8, 5, true)
	if err != nil {
		return nil, fmt.Errorf("failed to convert public key hash to 5-bit words: %v", err)
	}
	if len(words) != AddressWords {
		return nil, fmt.Errorf("unexpected number of words after conversion: got %d, want %d", len(words), AddressWords)
	}
	var address Address
	copy(address[:], words)
	return &address, nil
}

// FromPublicKey derives the bech32 string address of a serialized public key.
func FromPublicKey(publicKey []byte) (string, error) {
	pub, err := crypto.ParsePublicKey(publicKey)
	if err != nil {
		return "", err
	}
	addr, err := New(pub)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

// Validate checks that addr is a bech32 string with our HRP and data length.
func Validate(addr string) bool {
	_, err := FromString(addr)
	return err == nil
}

func FromString(addr string) (*Address, error) {
	hrp, words, err := bech32.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bech32 address %q: %v", addr, err)
	}
	if hrp != AddressHRP {
		return nil, fmt.Errorf("invalid address HRP: expected %q, got %q", AddressHRP, hrp)
	}
	if len(words) != AddressWords {
		return nil, fmt.Errorf("invalid decoded data length: expected %d words, got %d", AddressWords, len(words))
	}
	var a Address
	copy(a[:], words)
	return &a, nil
}

func (a *Address) Bytes() []byte {
	return a[:]
}

func (a *Address) String() string {
	encoded, err := bech32.Encode(AddressHRP, a.Bytes())
	if err != nil {
		return ""
	}
	return encoded
}

// Matches reports whether the address belongs to the given public key.
func (a *Address) Matches(pubKey *crypto.PublicKey) bool {
	other, err := New(pubKey)
	if err != nil {
		return false
	}
	return bytes.Equal(a[:], other[:])
}
