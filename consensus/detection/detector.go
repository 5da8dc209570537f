// Package detection screens individual requests and batches of transactions
// for replay, tampering and quantum-vulnerability indicators.
package detection

import "time"

type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "low"
	ThreatMedium ThreatLevel = "medium"
	ThreatHigh   ThreatLevel = "high"
)

func (t ThreatLevel) rank() int {
	switch t {
	case ThreatMedium:
		return 1
	case ThreatHigh:
		return 2
	}
	return 0
}

func maxThreat(a, b ThreatLevel) ThreatLevel {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

type Thresholds struct {
	MaxFieldLength   int
	MaxAddressLength int
	MaxDataBytes     int
	// ReplayWindow bounds the age (and future skew) of a request timestamp.
	ReplayWindow time.Duration
	// ClassicalSignatureSize is the largest signature length still
	// considered a classical scheme (ECDSA/Ed25519).
	ClassicalSignatureSize int
	// KeyReuseLimit is the number of transactions one key may sign in a
	// batch before it is flagged.
	KeyReuseLimit int
	BurstWindow   time.Duration
	BurstSize     int
	// MediumRatio is the anomaly/transaction ratio below which a batch is
	// rated medium rather than high.
	MediumRatio float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxFieldLength:         1024,
		MaxAddressLength:       128,
		MaxDataBytes:           64 * 1024,
		ReplayWindow:           5 * time.Minute,
		ClassicalSignatureSize: 128,
		KeyReuseLimit:          100,
		BurstWindow:            time.Second,
		BurstSize:              25,
		MediumRatio:            0.2,
	}
}

// Analyzer is stateless between calls and safe for concurrent use.
type Analyzer struct {
	thresholds Thresholds
	now        func() time.Time
}

func NewAnalyzer() *Analyzer {
	return NewAnalyzerWithThresholds(DefaultThresholds())
}

func NewAnalyzerWithThresholds(t Thresholds) *Analyzer {
	return &Analyzer{thresholds: t, now: time.Now}
}

// WithClock returns a copy of the analyzer that reads time from now.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	c := *a
	c.now = now
	return &c
}

func (a *Analyzer) Thresholds() Thresholds {
	return a.thresholds
}
