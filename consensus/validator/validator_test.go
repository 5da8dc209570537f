package validator

import (
	"strings"
	"testing"
	"time"

	"github.com/aethercore-labs/aethercore/chain"
	"github.com/aethercore-labs/aethercore/chain/chaintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateGenesisStandard(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 1})

	res := ValidateBlock(f.Blocks[0], nil, f.Now(), LevelStandard)

	assert.True(t, res.IsValid, res.Errors)
	assert.Equal(t, LevelStandard.MaxScore(), res.SecurityScore)
	assert.Equal(t, uint64(0), res.BlockHeight)
	assert.Equal(t, f.Blocks[0].Hash, res.BlockHash)
	assert.Empty(t, res.Errors)
}

func TestValidateLinkedBlockAllLevels(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 3, TxsPerBlock: 3, Seal: true})

	for _, level := range []Level{LevelStandard, LevelEnhanced, LevelQuantum} {
		t.Run(string(level), func(t *testing.T) {
			res := ValidateBlock(f.Blocks[2], f.Blocks[1], f.Now(), level)
			require.True(t, res.IsValid, res.Errors)
			assert.Equal(t, clamp(level.MaxScore(), 0, 100), res.SecurityScore)
			assert.Equal(t, level, res.ValidationLevel)
		})
	}
}

func TestQuantumScoreIsCapped(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 2, TxsPerBlock: 1, Seal: true})

	res := ValidateBlock(f.Blocks[1], f.Blocks[0], f.Now(), LevelQuantum)

	require.True(t, res.IsValid, res.Errors)
	assert.Equal(t, 100, res.SecurityScore)
}

func TestTamperedTransactionBreaksMerkleRoot(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 2, TxsPerBlock: 2})
	b := f.Blocks[1]
	b.Transactions[0].Amount = "999999"

	res := ValidateBlock(b, f.Blocks[0], f.Now(), LevelStandard)

	assert.False(t, res.IsValid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "merkle root mismatch")
}

func TestRepeatedTransactionIsRejectedAtEveryLevel(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 2, TxsPerBlock: 11, Seal: true})
	orig := f.Blocks[1]

	padded := *orig
	padded.Transactions = append(append([]*chain.Transaction{}, orig.Transactions...), orig.Transactions[len(orig.Transactions)-1])

	for _, level := range []Level{LevelStandard, LevelEnhanced, LevelQuantum} {
		t.Run(string(level), func(t *testing.T) {
			res := ValidateBlock(&padded, f.Blocks[0], f.Now(), level)
			assert.False(t, res.IsValid)
			require.NotEmpty(t, res.Errors)
			assert.Contains(t, strings.Join(res.Errors, "\n"), "merkle root")
		})
	}
}

func TestTamperedHeaderBreaksHash(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 2})
	b := f.Blocks[1]
	b.Header.Nonce++

	res := ValidateBlock(b, f.Blocks[0], f.Now(), LevelStandard)

	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "block hash mismatch")
}

func TestBrokenLinkage(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 3})

	// Block 2 presented against the genesis block instead of block 1.
	res := ValidateBlock(f.Blocks[2], f.Blocks[0], f.Now(), LevelStandard)

	assert.False(t, res.IsValid)
	joined := ""
	for _, e := range res.Errors {
		joined += e + "\n"
	}
	assert.Contains(t, joined, "previous hash mismatch")
	assert.Contains(t, joined, "height 2 does not follow previous height 0")
}

func TestNonGenesisWithoutPrevious(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 2})

	res := ValidateBlock(f.Blocks[1], nil, f.Now(), LevelStandard)

	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "has no previous block")
}

func TestTimestampMustIncrease(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 1})
	genesis := f.Blocks[0]
	next, err := chain.NewBlock(genesis, nil, chaintest.BaseTime, 1, 1)
	require.NoError(t, err)

	res := ValidateBlock(next, genesis, f.Now(), LevelStandard)

	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "is not after previous block timestamp")
}

func TestFutureTimestampIsWarning(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 2})
	past := chaintest.BaseTime.Add(-time.Hour)

	res := ValidateBlock(f.Blocks[1], f.Blocks[0], past, LevelStandard)

	assert.True(t, res.IsValid, res.Errors)
	assert.Equal(t, LevelStandard.MaxScore()-scoreFreshness, res.SecurityScore)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "ahead of local clock")
}

func TestEnhancedRejectsMostlyInvalidTransactions(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 1})
	key := chaintest.Key(t, 2)
	at := chaintest.BaseTime.Add(time.Second)
	tx := chaintest.Tx(t, key, "1", at)
	tx.Signature = nil

	b, err := chain.NewBlock(f.Blocks[0], []*chain.Transaction{tx}, at, 1, 1)
	require.NoError(t, err)

	standard := ValidateBlock(b, f.Blocks[0], f.Now(), LevelStandard)
	assert.True(t, standard.IsValid, standard.Errors)

	enhanced := ValidateBlock(b, f.Blocks[0], f.Now(), LevelEnhanced)
	assert.False(t, enhanced.IsValid)
	assert.Contains(t, enhanced.Errors[0], "only 0 of 1 transactions are valid")
	require.NotEmpty(t, enhanced.Warnings)
	assert.Contains(t, enhanced.Warnings[0], "missing signature")
}

func TestEnhancedToleratesFewInvalidTransactions(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 1})
	key := chaintest.Key(t, 2)
	at := chaintest.BaseTime.Add(time.Second)
	txs := make([]*chain.Transaction, 0, 10)
	for i := 0; i < 10; i++ {
		txs = append(txs, chaintest.Tx(t, key, "1", at.Add(time.Duration(i)*time.Millisecond)))
	}
	txs[3].Fee = "-1"

	b, err := chain.NewBlock(f.Blocks[0], txs, at, 1, 1)
	require.NoError(t, err)

	res := ValidateBlock(b, f.Blocks[0], f.Now(), LevelEnhanced)
	assert.True(t, res.IsValid, res.Errors)
	assert.Equal(t, LevelEnhanced.MaxScore()-scoreTransactions+scorePartialTx, res.SecurityScore)
	assert.NotEmpty(t, res.Warnings)
}

func TestQuantumRequiresProof(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 2})

	res := ValidateBlock(f.Blocks[1], f.Blocks[0], f.Now(), LevelQuantum)

	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "quantum security proof is missing")
}

func TestQuantumProofForgedSignature(t *testing.T) {
	f := chaintest.Build(t, chaintest.Options{Blocks: 2, Seal: true})
	b := f.Blocks[1]
	b.QuantumSecurityProof.Signature[0] ^= 0xff

	res := ValidateBlock(b, f.Blocks[0], f.Now(), LevelQuantum)

	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "does not verify")
}

func TestNilBlockAndUnknownLevel(t *testing.T) {
	res := ValidateBlock(nil, nil, time.Now(), LevelStandard)
	assert.False(t, res.IsValid)

	f := chaintest.Build(t, chaintest.Options{Blocks: 1})
	res = ValidateBlock(f.Blocks[0], nil, f.Now(), Level("paranoid"))
	assert.False(t, res.IsValid)
	assert.Zero(t, res.SecurityScore)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel(" Quantum ")
	require.NoError(t, err)
	assert.Equal(t, LevelQuantum, l)

	_, err = ParseLevel("maximum")
	assert.Error(t, err)

	assert.True(t, LevelQuantum.AtLeast(LevelEnhanced))
	assert.False(t, LevelStandard.AtLeast(LevelEnhanced))
}
