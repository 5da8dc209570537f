package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/kem/mlkem/mlkem512"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// SecurityLevel selects the post-quantum parameter sets of a key pair.
//
//	1: ML-DSA-44 / ML-KEM-512,  32-byte seed
//	2: ML-DSA-44 / ML-KEM-768,  48-byte seed
//	3: ML-DSA-65 / ML-KEM-768,  64-byte seed
//	4: ML-DSA-87 / ML-KEM-1024, 96-byte seed
//	5: ML-DSA-87 / ML-KEM-1024, 128-byte seed
type SecurityLevel int

const (
	MinSecurityLevel     SecurityLevel = 1
	MaxSecurityLevel     SecurityLevel = 5
	DefaultSecurityLevel SecurityLevel = 3
)

type suite struct {
	sign     sign.Scheme
	kem      kem.Scheme
	seedSize int
}

var suites = map[SecurityLevel]suite{
	1: {sign: mldsa44.Scheme(), kem: mlkem512.Scheme(), seedSize: 32},
	2: {sign: mldsa44.Scheme(), kem: mlkem768.Scheme(), seedSize: 48},
	3: {sign: mldsa65.Scheme(), kem: mlkem768.Scheme(), seedSize: 64},
	4: {sign: mldsa87.Scheme(), kem: mlkem1024.Scheme(), seedSize: 96},
	5: {sign: mldsa87.Scheme(), kem: mlkem1024.Scheme(), seedSize: 128},
}

func (l SecurityLevel) Valid() bool {
	return l >= MinSecurityLevel && l <= MaxSecurityLevel
}

func (l SecurityLevel) suite() (suite, error) {
	s, ok := suites[l]
	if !ok {
		return suite{}, fmt.Errorf("%w: %d", ErrInvalidSecurityLevel, int(l))
	}
	return s, nil
}

// SeedSize is the amount of private key material for the level, 0 if the
// level is out of range.
func (l SecurityLevel) SeedSize() int {
	return suites[l].seedSize
}

// SignatureScheme names the signing algorithm for the level.
func (l SecurityLevel) SignatureScheme() string {
	s, ok := suites[l]
	if !ok {
		return ""
	}
	return s.sign.Name()
}

// KEMScheme names the key encapsulation algorithm for the level.
func (l SecurityLevel) KEMScheme() string {
	s, ok := suites[l]
	if !ok {
		return ""
	}
	return s.kem.Name()
}
