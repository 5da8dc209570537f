package chain

import (
	"testing"
	"time"

	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	priv, err := crypto.NewPrivateKey(2)
	require.NoError(t, err)
	return priv
}

func newTx(t *testing.T, key *crypto.PrivateKey, amount string) *Transaction {
	t.Helper()
	tx, err := NewTransaction("atc1sender", "atc1receiver", amount, "0.01", nil, key, baseTime)
	require.NoError(t, err)
	return tx
}
