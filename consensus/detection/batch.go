package detection

import (
	"fmt"
	"sort"

	"github.com/aethercore-labs/aethercore/chain"
	"github.com/aethercore-labs/aethercore/crypto/hash"
	"github.com/willf/bloom"
)

type AnomalyType string

const (
	AnomalyDuplicateID        AnomalyType = "duplicate_id"
	AnomalySignatureReplay    AnomalyType = "signature_replay"
	AnomalyMissingSignature   AnomalyType = "missing_signature"
	AnomalyClassicalSignature AnomalyType = "classical_signature"
	AnomalyInvalidSignature   AnomalyType = "invalid_signature"
	AnomalyKeyReuse           AnomalyType = "key_reuse"
	AnomalyBurst              AnomalyType = "burst"
)

type Anomaly struct {
	Type          AnomalyType `json:"type"`
	TransactionID string      `json:"transactionId,omitempty"`
	Description   string      `json:"description"`
}

// ThreatAnalysis summarizes a batch of transactions.
type ThreatAnalysis struct {
	ThreatLevel     ThreatLevel `json:"threatLevel"`
	Transactions    int         `json:"transactions"`
	Anomalies       int         `json:"anomalies"`
	Details         []Anomaly   `json:"details"`
	Recommendations []string    `json:"recommendations"`
}

var batchRecommendation = map[AnomalyType]string{
	AnomalyDuplicateID:        "Reject transactions whose id was already seen.",
	AnomalySignatureReplay:    "Reject reused signatures; bind signatures to a unique transaction id.",
	AnomalyMissingSignature:   "Require a signature on every transaction.",
	AnomalyClassicalSignature: "Migrate signers from classical schemes to ML-DSA.",
	AnomalyInvalidSignature:   "Reject transactions whose signature does not verify.",
	AnomalyKeyReuse:           "Rotate keys that sign unusually many transactions.",
	AnomalyBurst:              "Rate limit senders that submit bursts of transactions.",
}

const bloomFalsePositiveRate = 0.001

// AnalyzeQuantumThreats flags duplicated ids and signatures, missing,
// classical-size or unverifiable signatures, excessive key reuse and
// per-sender bursts.
//
// The batch is rated low with no anomalies, medium when anomalies stay below
// MediumRatio of the batch, high otherwise. Classical signatures rate the
// batch at least medium.
func (a *Analyzer) AnalyzeQuantumThreats(txs []*chain.Transaction) ThreatAnalysis {
	res := ThreatAnalysis{ThreatLevel: ThreatLow, Transactions: len(txs), Details: []Anomaly{}}
	if len(txs) == 0 {
		res.Recommendations = []string{}
		return res
	}

	// The filter answers "definitely new" for most ids; only possible
	// repeats fall through to the exact map.
	ids := bloom.NewWithEstimates(uint(len(txs)), bloomFalsePositiveRate)
	seenIDs := make(map[string]struct{}, len(txs))
	sigs := bloom.NewWithEstimates(uint(len(txs)), bloomFalsePositiveRate)
	seenSigs := make(map[string]string, len(txs))
	keyUse := map[string]int{}
	senderTimes := map[string][]int64{}
	classical := false

	add := func(t AnomalyType, id, format string, args ...interface{}) {
		res.Details = append(res.Details, Anomaly{Type: t, TransactionID: id, Description: fmt.Sprintf(format, args...)})
	}

	for i, tx := range txs {
		if tx == nil {
			add(AnomalyMissingSignature, "", "transaction %d is nil", i)
			continue
		}
		if tx.ID != "" {
			if ids.TestAndAddString(tx.ID) {
				if _, dup := seenIDs[tx.ID]; dup {
					add(AnomalyDuplicateID, tx.ID, "transaction id appears more than once")
				}
			}
			seenIDs[tx.ID] = struct{}{}
		}

		switch {
		case len(tx.Signature) == 0:
			add(AnomalyMissingSignature, tx.ID, "transaction is unsigned")
		case len(tx.Signature) <= a.thresholds.ClassicalSignatureSize:
			classical = true
			add(AnomalyClassicalSignature, tx.ID, "signature is %d bytes, consistent with a classical scheme", len(tx.Signature))
		case !tx.VerifySignature():
			add(AnomalyInvalidSignature, tx.ID, "signature does not verify")
		}

		if len(tx.Signature) > 0 {
			if sigs.Test(tx.Signature) {
				if owner, dup := seenSigs[string(tx.Signature)]; dup && owner != tx.ID {
					add(AnomalySignatureReplay, tx.ID, "signature already used by transaction %s", owner)
				}
			}
			sigs.Add(tx.Signature)
			if _, ok := seenSigs[string(tx.Signature)]; !ok {
				seenSigs[string(tx.Signature)] = tx.ID
			}
		}

		if len(tx.PublicKey) > 0 {
			keyUse[hash.NewHash(tx.PublicKey).String()]++
		}
		if tx.From != "" {
			senderTimes[tx.From] = append(senderTimes[tx.From], tx.Timestamp)
		}
	}

	keys := make([]string, 0, len(keyUse))
	for k, n := range keyUse {
		if n > a.thresholds.KeyReuseLimit {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(AnomalyKeyReuse, "", "key %s… signed %d transactions, limit %d", k[:16], keyUse[k], a.thresholds.KeyReuseLimit)
	}

	senders := make([]string, 0, len(senderTimes))
	for s := range senderTimes {
		senders = append(senders, s)
	}
	sort.Strings(senders)
	for _, sender := range senders {
		if n := a.largestBurst(senderTimes[sender]); n > a.thresholds.BurstSize {
			add(AnomalyBurst, "", "sender %s submitted %d transactions within %s", sender, n, a.thresholds.BurstWindow)
		}
	}

	res.Anomalies = len(res.Details)
	switch {
	case res.Anomalies == 0:
		res.ThreatLevel = ThreatLow
	case float64(res.Anomalies)/float64(len(txs)) < a.thresholds.MediumRatio:
		res.ThreatLevel = ThreatMedium
	default:
		res.ThreatLevel = ThreatHigh
	}
	if classical {
		res.ThreatLevel = maxThreat(res.ThreatLevel, ThreatMedium)
	}

	seen := map[AnomalyType]struct{}{}
	res.Recommendations = []string{}
	for _, d := range res.Details {
		if _, ok := seen[d.Type]; ok {
			continue
		}
		seen[d.Type] = struct{}{}
		res.Recommendations = append(res.Recommendations, batchRecommendation[d.Type])
	}
	return res
}

// largestBurst returns the most timestamps falling in any BurstWindow. A
// non-positive window disables burst detection.
func (a *Analyzer) largestBurst(times []int64) int {
	if len(times) == 0 || a.thresholds.BurstWindow <= 0 {
		return 0
	}
	sorted := append([]int64(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	window := a.thresholds.BurstWindow.Milliseconds()
	best, lo := 0, 0
	for hi := range sorted {
		for lo < hi && sorted[hi]-sorted[lo] >= window {
			lo++
		}
		if n := hi - lo + 1; n > best {
			best = n
		}
	}
	return best
}
