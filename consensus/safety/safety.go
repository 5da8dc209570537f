// Package safety combines block validation, certification and threat
// analysis into a single report for a chain snapshot. Evaluation reads its
// inputs only and never mutates blocks or any persisted state.
package safety

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/aethercore-labs/aethercore/chain"
	"github.com/aethercore-labs/aethercore/consensus/certification"
	"github.com/aethercore-labs/aethercore/consensus/detection"
	"github.com/aethercore-labs/aethercore/consensus/validator"
	"golang.org/x/sync/errgroup"
)

var ErrNoBlocks = errors.New("no blocks to evaluate")

// Params describe the snapshot under evaluation. Blocks must be ordered by
// height; Blocks[0] is validated as genesis when its height is 0.
type Params struct {
	Blocks  []*chain.Block        `json:"blocks"`
	Profile certification.Profile `json:"profile"`
	// Now is the validator clock; the evaluator clock is used when zero.
	Now time.Time `json:"now"`
}

type BlockFailure struct {
	Height uint64   `json:"height"`
	Hash   string   `json:"hash"`
	Errors []string `json:"errors"`
}

type Result struct {
	Passed             bool                     `json:"passed"`
	OverallScore       float64                  `json:"overallScore"`
	Grade              string                   `json:"grade"`
	CertificationLevel certification.Level      `json:"certificationLevel"`
	BlocksEvaluated    int                      `json:"blocksEvaluated"`
	ValidBlocks        int                      `json:"validBlocks"`
	InvalidBlocks      int                      `json:"invalidBlocks"`
	Warnings           int                      `json:"warnings"`
	Failures           []BlockFailure           `json:"failures"`
	Validations        []validator.Result       `json:"validations"`
	Certification      certification.Report     `json:"certification"`
	Threats            detection.ThreatAnalysis `json:"threats"`
	StartedAt          time.Time                `json:"startedAt"`
	CompletedAt        time.Time                `json:"completedAt"`
	DurationMs         int64                    `json:"durationMs"`
}

type Evaluator struct {
	certifier   *certification.Certifier
	analyzer    *detection.Analyzer
	parallelism int
	now         func() time.Time
}

type Option func(*Evaluator)

func WithParallelism(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func NewEvaluator(certifier *certification.Certifier, analyzer *detection.Analyzer, opts ...Option) *Evaluator {
	if certifier == nil {
		certifier = certification.Default()
	}
	if analyzer == nil {
		analyzer = detection.NewAnalyzer()
	}
	e := &Evaluator{
		certifier:   certifier,
		analyzer:    analyzer,
		parallelism: runtime.GOMAXPROCS(0),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateBlockchainSafety validates every block at the depth level
// requires, certifies the results and screens all transactions. It passes
// only when certification passes, every block is valid and the threat level
// is below high.
func (e *Evaluator) EvaluateBlockchainSafety(ctx context.Context, params Params, level certification.Level) (Result, error) {
	if _, err := certification.ParseLevel(string(level)); err != nil {
		return Result{}, err
	}
	if len(params.Blocks) == 0 {
		return Result{}, ErrNoBlocks
	}

	started := e.now()
	clock := params.Now
	if clock.IsZero() {
		clock = started
	}

	validations, err := e.validateAll(ctx, params.Blocks, clock, level.ValidationLevel())
	if err != nil {
		return Result{}, err
	}

	res := Result{
		CertificationLevel: level,
		BlocksEvaluated:    len(validations),
		Validations:        validations,
		Failures:           []BlockFailure{},
		StartedAt:          started,
	}
	var txs []*chain.Transaction
	for i, v := range validations {
		res.Warnings += len(v.Warnings)
		if v.IsValid {
			res.ValidBlocks++
		} else {
			res.InvalidBlocks++
			res.Failures = append(res.Failures, BlockFailure{Height: v.BlockHeight, Hash: v.BlockHash, Errors: v.Errors})
		}
		if b := params.Blocks[i]; b != nil {
			txs = append(txs, b.Transactions...)
		}
	}

	res.Certification = e.certifier.Certify(validations, params.Profile, level)
	res.Threats = e.analyzer.AnalyzeQuantumThreats(txs)
	res.OverallScore = res.Certification.OverallScore
	res.Grade = res.Certification.Grade
	res.Passed = res.Certification.Passed &&
		res.InvalidBlocks == 0 &&
		res.Threats.ThreatLevel != detection.ThreatHigh

	res.CompletedAt = e.now()
	res.DurationMs = res.CompletedAt.Sub(started).Milliseconds()
	return res, nil
}

func (e *Evaluator) validateAll(ctx context.Context, blocks []*chain.Block, now time.Time, level validator.Level) ([]validator.Result, error) {
	results := make([]validator.Result, len(blocks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i := range blocks {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var prev *chain.Block
			if i > 0 {
				prev = blocks[i-1]
			}
			results[i] = validator.ValidateBlock(blocks[i], prev, now, level)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
