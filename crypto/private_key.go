package crypto

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/aethercore-labs/aethercore/codec"
	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/sign"
	"golang.org/x/crypto/sha3"
)

var (
	signDomain = []byte("aethercore/sign/v1")
	kemDomain  = []byte("aethercore/kem/v1")
)

// PrivateKey holds the seed of an identity together with the signing and
// decapsulation keys expanded from it. Only the seed is ever serialized.
type PrivateKey struct {
	level   SecurityLevel
	seed    []byte
	signKey sign.PrivateKey
	kemKey  kem.PrivateKey
	public  *PublicKey
}

type privateKeyEnvelope struct {
	Level SecurityLevel `cbor:"1,keyasint"`
	Seed  []byte        `cbor:"2,keyasint"`
}

// NewPrivateKey generates a fresh private key at the given level.
func NewPrivateKey(level SecurityLevel) (*PrivateKey, error) {
	return newPrivateKey(level, rand.Reader)
}

func newPrivateKey(level SecurityLevel, r io.Reader) (*PrivateKey, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSecurityLevel, int(level))
	}
	seed := make([]byte, level.SeedSize())
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("failed to read key seed: %w", err)
	}
	return NewPrivateKeyFromSeed(level, seed)
}

// NewPrivateKeyFromSeed expands seed into signing and KEM keys. The expansion
// runs through SHAKE256 and the schemes' own key generation, so the public
// key cannot be used to recover the seed.
func NewPrivateKeyFromSeed(level SecurityLevel, seed []byte) (*PrivateKey, error) {
	s, err := level.suite()
	if err != nil {
		return nil, err
	}
	if len(seed) != s.seedSize {
		return nil, invalidKey(fmt.Sprintf("seed must be %d bytes for level %d, got %d", s.seedSize, level, len(seed)), nil)
	}

	signSeed := make([]byte, s.sign.SeedSize())
	sha3.ShakeSum256(signSeed, append(append([]byte{}, signDomain...), seed...))
	kemSeed := make([]byte, s.kem.SeedSize())
	sha3.ShakeSum256(kemSeed, append(append([]byte{}, kemDomain...), seed...))

	signPub, signPriv := s.sign.DeriveKey(signSeed)
	kemPub, kemPriv := s.kem.DeriveKeyPair(kemSeed)

	pub, err := newPublicKey(level, signPub, kemPub)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{
		level:   level,
		seed:    append([]byte{}, seed...),
		signKey: signPriv,
		kemKey:  kemPriv,
		public:  pub,
	}, nil
}

// ParsePrivateKey decodes the output of PrivateKey.Bytes.
func ParsePrivateKey(data []byte) (*PrivateKey, error) {
	if len(data) == 0 {
		return nil, invalidKey("empty private key", nil)
	}
	var env privateKeyEnvelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, invalidKey("malformed private key encoding", err)
	}
	if !env.Level.Valid() {
		return nil, invalidKey(fmt.Sprintf("unknown security level %d", env.Level), nil)
	}
	return NewPrivateKeyFromSeed(env.Level, env.Seed)
}

func (p *PrivateKey) Level() SecurityLevel {
	return p.level
}

// Bytes returns the serialized private key. It must stay inside the owner's
// trust boundary.
func (p *PrivateKey) Bytes() []byte {
	b, err := codec.Marshal(privateKeyEnvelope{Level: p.level, Seed: p.seed})
	if err != nil {
		// Encoding a level and a byte slice cannot fail.
		panic(fmt.Sprintf("crypto: encoding private key: %v", err))
	}
	return b
}

func (p *PrivateKey) PublicKey() *PublicKey {
	return p.public
}

// Sign produces an ML-DSA signature over msg.
func (p *PrivateKey) Sign(msg []byte) []byte {
	return p.signKey.Scheme().Sign(p.signKey, msg, nil)
}

func (p *PrivateKey) Equal(other *PrivateKey) bool {
	if other == nil {
		return false
	}
	return p.level == other.level && bytes.Equal(p.seed, other.seed)
}

// Zero wipes the seed. The key is unusable for serialization afterwards.
func (p *PrivateKey) Zero() {
	for i := range p.seed {
		p.seed[i] = 0
	}
}
