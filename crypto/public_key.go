package crypto

import (
	"bytes"
	"fmt"

	"github.com/aethercore-labs/aethercore/codec"
	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/sign"
)

// PublicKey bundles the verification key and the encapsulation key of one
// identity.
type PublicKey struct {
	level   SecurityLevel
	signKey sign.PublicKey
	kemKey  kem.PublicKey
	raw     []byte
}

type publicKeyEnvelope struct {
	Level SecurityLevel `cbor:"1,keyasint"`
	Sign  []byte        `cbor:"2,keyasint"`
	KEM   []byte        `cbor:"3,keyasint"`
}

func newPublicKey(level SecurityLevel, signKey sign.PublicKey, kemKey kem.PublicKey) (*PublicKey, error) {
	signBytes, err := signKey.MarshalBinary()
	if err != nil {
		return nil, invalidKey("encoding verification key", err)
	}
	kemBytes, err := kemKey.MarshalBinary()
	if err != nil {
		return nil, invalidKey("encoding encapsulation key", err)
	}
	raw, err := codec.Marshal(publicKeyEnvelope{Level: level, Sign: signBytes, KEM: kemBytes})
	if err != nil {
		return nil, invalidKey("encoding public key", err)
	}
	return &PublicKey{level: level, signKey: signKey, kemKey: kemKey, raw: raw}, nil
}

// ParsePublicKey decodes the output of PublicKey.Bytes.
func ParsePublicKey(data []byte) (*PublicKey, error) {
	if len(data) == 0 {
		return nil, invalidKey("empty public key", nil)
	}
	var env publicKeyEnvelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, invalidKey("malformed public key encoding", err)
	}
	s, err := env.Level.suite()
	if err != nil {
		return nil, invalidKey(fmt.Sprintf("unknown security level %d", env.Level), nil)
	}
	signKey, err := s.sign.UnmarshalBinaryPublicKey(env.Sign)
	if err != nil {
		return nil, invalidKey("decoding verification key", err)
	}
	kemKey, err := s.kem.UnmarshalBinaryPublicKey(env.KEM)
	if err != nil {
		return nil, invalidKey("decoding encapsulation key", err)
	}
	return &PublicKey{
		level:   env.Level,
		signKey: signKey,
		kemKey:  kemKey,
		raw:     append([]byte{}, data...),
	}, nil
}

func (p *PublicKey) Level() SecurityLevel {
	return p.level
}

func (p *PublicKey) Bytes() []byte {
	return append([]byte{}, p.raw...)
}

// Verify reports whether sig is a valid signature of data. Malformed
// signatures are rejected, never raised.
func (p *PublicKey) Verify(data, sig []byte) (ok bool) {
	if len(sig) != p.signKey.Scheme().SignatureSize() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return p.signKey.Scheme().Verify(p.signKey, data, sig, nil)
}

func (p *PublicKey) Equal(other *PublicKey) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(p.raw, other.raw)
}
