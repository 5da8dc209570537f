// Package chaintest builds signed, linked chains for tests.
package chaintest

import (
	"fmt"
	"testing"
	"time"

	"github.com/aethercore-labs/aethercore/chain"
	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/stretchr/testify/require"
)

// BaseTime is the genesis timestamp of every generated chain.
var BaseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// BlockInterval separates consecutive generated blocks.
const BlockInterval = 10 * time.Second

type Options struct {
	Blocks      int
	TxsPerBlock int
	// Seal attaches a quantum security proof to every block.
	Seal  bool
	Level crypto.SecurityLevel
}

// Fixture is a generated chain plus the keys that produced it.
type Fixture struct {
	Blocks    []*chain.Block
	Sender    *crypto.PrivateKey
	Validator *crypto.PrivateKey
}

func Key(t testing.TB, level crypto.SecurityLevel) *crypto.PrivateKey {
	t.Helper()
	priv, err := crypto.NewPrivateKey(level)
	require.NoError(t, err)
	return priv
}

func Tx(t testing.TB, key *crypto.PrivateKey, amount string, at time.Time) *chain.Transaction {
	t.Helper()
	tx, err := chain.NewTransaction("atc1sender", "atc1receiver", amount, "0.01", nil, key, at)
	require.NoError(t, err)
	return tx
}

// Build generates a genesis block followed by opts.Blocks-1 successors.
func Build(t testing.TB, opts Options) *Fixture {
	t.Helper()
	if opts.Blocks < 1 {
		opts.Blocks = 1
	}
	if opts.Level == 0 {
		opts.Level = 2
	}
	f := &Fixture{Sender: Key(t, opts.Level), Validator: Key(t, opts.Level)}

	genesis, err := chain.NewGenesisBlock(BaseTime)
	require.NoError(t, err)
	f.seal(t, genesis, opts.Seal, BaseTime)
	f.Blocks = append(f.Blocks, genesis)

	for i := 1; i < opts.Blocks; i++ {
		at := BaseTime.Add(time.Duration(i) * BlockInterval)
		txs := make([]*chain.Transaction, 0, opts.TxsPerBlock)
		for j := 0; j < opts.TxsPerBlock; j++ {
			txs = append(txs, Tx(t, f.Sender, fmt.Sprintf("%d.5", i*100+j), at.Add(time.Duration(j)*time.Millisecond)))
		}
		b, err := chain.NewBlock(f.Blocks[i-1], txs, at, 1, uint64(i))
		require.NoError(t, err)
		f.seal(t, b, opts.Seal, at)
		f.Blocks = append(f.Blocks, b)
	}
	return f
}

func (f *Fixture) seal(t testing.TB, b *chain.Block, seal bool, at time.Time) {
	t.Helper()
	if !seal {
		return
	}
	require.NoError(t, chain.SealQuantumProof(b, f.Validator, at))
}

// Tip is the last block of the chain.
func (f *Fixture) Tip() *chain.Block {
	return f.Blocks[len(f.Blocks)-1]
}

// Now is a validator clock shortly after the tip.
func (f *Fixture) Now() time.Time {
	return time.UnixMilli(f.Tip().Header.Timestamp).Add(time.Second)
}
