package detection

import (
	"testing"
	"time"

	"github.com/aethercore-labs/aethercore/chain"
	"github.com/aethercore-labs/aethercore/chain/chaintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedBatch(t *testing.T, n int) []*chain.Transaction {
	t.Helper()
	key := chaintest.Key(t, 1)
	txs := make([]*chain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		at := chaintest.BaseTime.Add(time.Duration(i) * time.Second)
		txs = append(txs, chaintest.Tx(t, key, "1", at))
	}
	return txs
}

func countType(details []Anomaly, typ AnomalyType) int {
	n := 0
	for _, d := range details {
		if d.Type == typ {
			n++
		}
	}
	return n
}

func TestAnalyzeEmptyBatch(t *testing.T) {
	res := NewAnalyzer().AnalyzeQuantumThreats(nil)
	assert.Equal(t, ThreatLow, res.ThreatLevel)
	assert.Zero(t, res.Anomalies)
}

func TestAnalyzeCleanBatch(t *testing.T) {
	res := NewAnalyzer().AnalyzeQuantumThreats(signedBatch(t, 6))

	assert.Equal(t, ThreatLow, res.ThreatLevel)
	assert.Equal(t, 6, res.Transactions)
	assert.Zero(t, res.Anomalies)
	assert.Empty(t, res.Recommendations)
}

func TestAnalyzeDuplicateID(t *testing.T) {
	txs := signedBatch(t, 6)
	txs = append(txs, txs[2])

	res := NewAnalyzer().AnalyzeQuantumThreats(txs)

	assert.Equal(t, 1, res.Anomalies)
	assert.Equal(t, 1, countType(res.Details, AnomalyDuplicateID))
	assert.Equal(t, txs[2].ID, res.Details[0].TransactionID)
	assert.Equal(t, ThreatMedium, res.ThreatLevel)
}

func TestAnalyzeSignatureReplay(t *testing.T) {
	txs := signedBatch(t, 2)
	forged := *txs[1]
	forged.Amount = "5000"
	forged.ID, _ = forged.ComputeID()
	forged.Signature = txs[0].Signature
	txs = append(txs, &forged)

	res := NewAnalyzer().AnalyzeQuantumThreats(txs)

	assert.Equal(t, 1, countType(res.Details, AnomalySignatureReplay))
	assert.Equal(t, 1, countType(res.Details, AnomalyInvalidSignature))
	assert.Equal(t, ThreatHigh, res.ThreatLevel)
}

func TestAnalyzeClassicalSignatureIsAtLeastMedium(t *testing.T) {
	txs := signedBatch(t, 10)
	txs[4].Signature = make([]byte, 64)

	res := NewAnalyzer().AnalyzeQuantumThreats(txs)

	assert.Equal(t, 1, countType(res.Details, AnomalyClassicalSignature))
	assert.Equal(t, ThreatMedium, res.ThreatLevel)
	assert.Contains(t, res.Recommendations, batchRecommendation[AnomalyClassicalSignature])
}

func TestAnalyzeMostlyUnsignedIsHigh(t *testing.T) {
	txs := signedBatch(t, 4)
	for _, tx := range txs[:3] {
		tx.Signature = nil
	}
	txs = append(txs, nil)

	res := NewAnalyzer().AnalyzeQuantumThreats(txs)

	assert.Equal(t, 4, countType(res.Details, AnomalyMissingSignature))
	assert.Equal(t, ThreatHigh, res.ThreatLevel)
}

func TestAnalyzeBurstAndKeyReuse(t *testing.T) {
	th := DefaultThresholds()
	th.BurstSize = 3
	th.KeyReuseLimit = 4
	a := NewAnalyzerWithThresholds(th)

	key := chaintest.Key(t, 1)
	txs := make([]*chain.Transaction, 0, 5)
	for i := 0; i < 5; i++ {
		txs = append(txs, chaintest.Tx(t, key, "1", chaintest.BaseTime.Add(time.Duration(i)*100*time.Millisecond)))
	}

	res := a.AnalyzeQuantumThreats(txs)

	require.Equal(t, 1, countType(res.Details, AnomalyBurst))
	assert.Contains(t, res.Details[len(res.Details)-1].Description, "submitted 5 transactions")
	assert.Equal(t, 1, countType(res.Details, AnomalyKeyReuse))
	assert.Equal(t, ThreatHigh, res.ThreatLevel)
}

func TestNonPositiveBurstWindowDisablesBursts(t *testing.T) {
	for _, window := range []time.Duration{0, -time.Second} {
		th := DefaultThresholds()
		th.BurstWindow = window
		a := NewAnalyzerWithThresholds(th)
		assert.NotPanics(t, func() {
			assert.Equal(t, 0, a.largestBurst([]int64{0, 0, 1, 2}))
		})
	}
}

func TestLargestBurst(t *testing.T) {
	a := NewAnalyzer()
	assert.Equal(t, 0, a.largestBurst(nil))
	assert.Equal(t, 3, a.largestBurst([]int64{5000, 0, 999, 10, 2000}))
	assert.Equal(t, 1, a.largestBurst([]int64{0, 1000, 2000}))
}
