package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

var hybridInfo = []byte("aethercore/hybrid/v1")

// Envelope is the output of Encrypt. Ciphertext is nonce || sealed data.
type Envelope struct {
	Ciphertext      []byte `json:"ciphertext"`
	EncapsulatedKey []byte `json:"encapsulatedKey"`
}

// Encrypt seals data to the recipient with ML-KEM encapsulation and
// XChaCha20-Poly1305. The encapsulated key is bound as associated data.
func Encrypt(data, recipientPublicKey []byte) (*Envelope, error) {
	pub, err := ParsePublicKey(recipientPublicKey)
	if err != nil {
		return nil, err
	}
	return pub.Encrypt(data)
}

func (p *PublicKey) Encrypt(data []byte) (*Envelope, error) {
	encapsulated, secret, err := p.kemKey.Scheme().Encapsulate(p.kemKey)
	if err != nil {
		return nil, fmt.Errorf("encapsulation failed: %w", err)
	}
	aead, err := newAEAD(secret, encapsulated)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return &Envelope{
		Ciphertext:      aead.Seal(nonce, nonce, data, encapsulated),
		EncapsulatedKey: encapsulated,
	}, nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any modification of the
// ciphertext or the encapsulated key yields a DecryptionError.
func Decrypt(ciphertext, encapsulatedKey, recipientPrivateKey []byte) ([]byte, error) {
	priv, err := ParsePrivateKey(recipientPrivateKey)
	if err != nil {
		return nil, err
	}
	return priv.Decrypt(ciphertext, encapsulatedKey)
}

func (p *PrivateKey) Decrypt(ciphertext, encapsulatedKey []byte) ([]byte, error) {
	scheme := p.kemKey.Scheme()
	if len(encapsulatedKey) != scheme.CiphertextSize() {
		return nil, &DecryptionError{Reason: fmt.Sprintf("encapsulated key must be %d bytes", scheme.CiphertextSize())}
	}
	secret, err := scheme.Decapsulate(p.kemKey, encapsulatedKey)
	if err != nil {
		return nil, &DecryptionError{Reason: "decapsulation failed"}
	}
	aead, err := newAEAD(secret, encapsulatedKey)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, &DecryptionError{Reason: "ciphertext too short"}
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, encapsulatedKey)
	if err != nil {
		return nil, &DecryptionError{Reason: "authentication failed"}
	}
	return plain, nil
}

func newAEAD(secret, salt []byte) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha3.New256, secret, salt, hybridInfo), key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return chacha20poly1305.NewX(key)
}
