package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHashIsStable(t *testing.T) {
	a := NewHash([]byte("aethercore"))
	b := NewHash([]byte("aethercore"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, NewHash([]byte("aethercorE")))
}

func TestConcatMatchesNewHash(t *testing.T) {
	assert.Equal(t, NewHash([]byte("abcdef")), Concat([]byte("abc"), []byte("def")))
}

func TestStringRoundTrip(t *testing.T) {
	h := NewHash([]byte("block"))
	parsed, err := FromString(h.String())
	require.NoError(t, err)
	assert.True(t, h.Equal(parsed))
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	require.Error(t, err)

	_, err = FromString("zz")
	require.Error(t, err)
}

func TestNullHash(t *testing.T) {
	assert.True(t, NullHash().IsNull())
	assert.False(t, NewHash(nil).IsNull())
}
