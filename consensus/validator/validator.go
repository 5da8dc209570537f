// Package validator checks individual blocks against the structural and
// cryptographic rules of the chain. Validation is a pure function of its
// inputs and is safe to run concurrently.
package validator

import (
	"fmt"
	"strings"
	"time"

	"github.com/aethercore-labs/aethercore/chain"
	"github.com/aethercore-labs/aethercore/crypto/hash"
	"github.com/shopspring/decimal"
)

// Level selects which checks run. Each level is a strict superset of the
// previous one.
type Level string

const (
	LevelStandard Level = "standard"
	LevelEnhanced Level = "enhanced"
	LevelQuantum  Level = "quantum"
)

func (l Level) rank() int {
	switch l {
	case LevelStandard:
		return 1
	case LevelEnhanced:
		return 2
	case LevelQuantum:
		return 3
	}
	return 0
}

func (l Level) Valid() bool {
	return l.rank() > 0
}

// AtLeast reports whether l includes every check of other.
func (l Level) AtLeast(other Level) bool {
	return l.rank() >= other.rank()
}

func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown validation level %q", s)
	}
	return l, nil
}

// MaxScore is the best attainable score at the level.
func (l Level) MaxScore() int {
	max := scoreHash + scoreLinkage + scoreTimestamp + scoreMerkle + scoreFreshness
	if l.AtLeast(LevelEnhanced) {
		max += scoreTransactions
	}
	if l.AtLeast(LevelQuantum) {
		max += scoreProof
	}
	return max
}

const (
	scoreHash         = 20
	scoreLinkage      = 15
	scoreTimestamp    = 5
	scoreGenesis      = scoreLinkage + scoreTimestamp
	scoreMerkle       = 15
	scoreFreshness    = 5
	scoreTransactions = 15
	scorePartialTx    = 10
	scoreProof        = 25

	// partialTxThreshold is the fraction of valid transactions below which
	// a block is rejected.
	partialTxThreshold = 0.9

	// MaxFutureDrift bounds how far ahead of the validator's clock a block
	// timestamp may be.
	MaxFutureDrift = 2 * time.Minute
)

// Result is produced once per block and never mutated afterwards.
type Result struct {
	IsValid         bool     `json:"isValid"`
	SecurityScore   int      `json:"securityScore"`
	ValidationLevel Level    `json:"validationLevel"`
	BlockHeight     uint64   `json:"blockHeight"`
	BlockHash       string   `json:"blockHash"`
	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
}

type report struct {
	score    int
	errors   []string
	warnings []string
}

func (r *report) fail(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *report) warn(format string, args ...interface{}) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

// ValidateBlock runs every check of level against block. prev is nil for a
// genesis block. All checks run regardless of earlier failures; any error
// rejects the block, warnings do not.
func ValidateBlock(block, prev *chain.Block, now time.Time, level Level) Result {
	res := Result{ValidationLevel: level, Errors: []string{}, Warnings: []string{}}
	if block == nil {
		res.Errors = append(res.Errors, "block is nil")
		return res
	}
	res.BlockHeight = block.Header.Height
	res.BlockHash = block.Hash
	if !level.Valid() {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown validation level %q", level))
		return res
	}

	r := &report{}
	checkHash(r, block)
	checkLinkage(r, block, prev)
	checkMerkleRoot(r, block)
	checkFreshness(r, block, now)
	if level.AtLeast(LevelEnhanced) {
		checkTransactions(r, block)
	}
	if level.AtLeast(LevelQuantum) {
		checkQuantumProof(r, block)
	}

	res.SecurityScore = clamp(r.score, 0, 100)
	res.Errors = append(res.Errors, r.errors...)
	res.Warnings = append(res.Warnings, r.warnings...)
	res.IsValid = len(res.Errors) == 0
	return res
}

func checkHash(r *report, b *chain.Block) {
	computed, err := chain.ComputeBlockHash(b)
	if err != nil {
		r.fail("block hash could not be computed: %v", err)
		return
	}
	if computed != b.Hash {
		r.fail("block hash mismatch: stored %s, computed %s", b.Hash, computed)
		return
	}
	r.score += scoreHash
}

func checkLinkage(r *report, b, prev *chain.Block) {
	if prev == nil {
		if b.Header.Height != 0 {
			r.fail("block at height %d has no previous block", b.Header.Height)
			return
		}
		if b.Header.PreviousHash != hash.NullHash().String() {
			r.fail("genesis block must have a null previous hash")
			return
		}
		r.score += scoreGenesis
		return
	}

	if b.Header.PreviousHash == prev.Hash {
		r.score += scoreLinkage
	} else {
		r.fail("previous hash mismatch: block links to %s, previous block is %s", b.Header.PreviousHash, prev.Hash)
	}
	if b.Header.Timestamp > prev.Header.Timestamp {
		r.score += scoreTimestamp
	} else {
		r.fail("timestamp %d is not after previous block timestamp %d", b.Header.Timestamp, prev.Header.Timestamp)
	}
	if b.Header.Height != prev.Header.Height+1 {
		r.fail("height %d does not follow previous height %d", b.Header.Height, prev.Header.Height)
	}
}

func checkMerkleRoot(r *report, b *chain.Block) {
	if id, ok := repeatedID(b.Transactions); ok {
		r.fail("merkle root covers transaction %s more than once", id)
		return
	}
	root, err := chain.TransactionsMerkleRoot(b.Transactions)
	if err != nil {
		r.fail("merkle root could not be computed: %v", err)
		return
	}
	if root != b.Header.MerkleRoot {
		r.fail("merkle root mismatch: header %s, computed %s", b.Header.MerkleRoot, root)
		return
	}
	r.score += scoreMerkle
}

func repeatedID(txs []*chain.Transaction) (string, bool) {
	seen := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		if tx == nil || tx.ID == "" {
			continue
		}
		if _, dup := seen[tx.ID]; dup {
			return tx.ID, true
		}
		seen[tx.ID] = struct{}{}
	}
	return "", false
}

func checkFreshness(r *report, b *chain.Block, now time.Time) {
	if now.IsZero() {
		return
	}
	ts := time.UnixMilli(b.Header.Timestamp)
	if ts.After(now.Add(MaxFutureDrift)) {
		r.warn("block timestamp %s is ahead of local clock %s", ts.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
		return
	}
	r.score += scoreFreshness
}

func checkTransactions(r *report, b *chain.Block) {
	if len(b.Transactions) == 0 {
		r.score += scoreTransactions
		return
	}
	valid := 0
	for i, tx := range b.Transactions {
		problems := transactionProblems(tx)
		if len(problems) == 0 {
			valid++
			continue
		}
		r.warn("transaction %d invalid: %s", i, strings.Join(problems, "; "))
	}

	ratio := float64(valid) / float64(len(b.Transactions))
	switch {
	case ratio == 1:
		r.score += scoreTransactions
	case ratio >= partialTxThreshold:
		r.score += scorePartialTx
		r.warn("%d of %d transactions failed validation", len(b.Transactions)-valid, len(b.Transactions))
	default:
		r.fail("only %d of %d transactions are valid", valid, len(b.Transactions))
	}
}

// transactionProblems lists every reason tx is invalid.
func transactionProblems(tx *chain.Transaction) []string {
	if tx == nil {
		return []string{"transaction is nil"}
	}
	var problems []string
	if tx.ID == "" {
		problems = append(problems, "missing id")
	}
	if tx.From == "" {
		problems = append(problems, "missing sender")
	}
	if tx.To == "" {
		problems = append(problems, "missing recipient")
	}
	if tx.Timestamp <= 0 {
		problems = append(problems, "missing timestamp")
	}
	if p := amountProblem("amount", tx.Amount); p != "" {
		problems = append(problems, p)
	}
	if p := amountProblem("fee", tx.Fee); p != "" {
		problems = append(problems, p)
	}
	if len(tx.Signature) == 0 {
		problems = append(problems, "missing signature")
	} else if !tx.VerifySignature() {
		problems = append(problems, "signature does not verify")
	}
	return problems
}

func amountProblem(field, value string) string {
	if value == "" {
		return "missing " + field
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Sprintf("%s %q is not a decimal", field, value)
	}
	if d.IsNegative() {
		return fmt.Sprintf("%s %q is negative", field, value)
	}
	return ""
}

func checkQuantumProof(r *report, b *chain.Block) {
	if err := chain.VerifyQuantumProof(b); err != nil {
		r.fail("quantum security proof invalid: %v", err)
		return
	}
	r.score += scoreProof
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
