// Package certification turns block validation results and a static chain
// profile into a scored, graded certification report.
package certification

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aethercore-labs/aethercore/consensus/validator"
)

type Level string

const (
	LevelStandard Level = "STANDARD"
	LevelEnhanced Level = "ENHANCED"
	LevelQuantum  Level = "QUANTUM"
)

// Levels in ascending order of rigor.
var Levels = []Level{LevelStandard, LevelEnhanced, LevelQuantum}

func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Levels {
		if l == known {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown certification level %q", s)
}

// ValidationLevel is the block validation depth a certification level
// mandates.
func (l Level) ValidationLevel() validator.Level {
	switch l {
	case LevelQuantum:
		return validator.LevelQuantum
	case LevelEnhanced:
		return validator.LevelEnhanced
	}
	return validator.LevelStandard
}

const (
	CategoryCryptography = "cryptography"
	CategoryConsensus    = "consensus"
	CategoryGovernance   = "governance"
	CategoryPrivacy      = "privacy"
)

// Profile is the static description of a chain under certification.
type Profile struct {
	Name                    string   `json:"name"`
	CryptographicPrimitives []string `json:"cryptographicPrimitives"`
	QuantumResistant        bool     `json:"quantumResistant"`
	PrivacyFeatures         []string `json:"privacyFeatures"`
	GovernanceType          string   `json:"governanceType"`
}

type CategoryResult struct {
	Category string   `json:"category"`
	Score    float64  `json:"score"`
	Weight   float64  `json:"weight"`
	Passed   bool     `json:"passed"`
	Findings []string `json:"findings"`
}

// Report is passed when the overall score meets the level minimum. Level
// requirements beyond the minimum are listed in Advisories and do not affect
// Passed.
type Report struct {
	Passed             bool             `json:"passed"`
	OverallScore       float64          `json:"overallScore"`
	Grade              string           `json:"grade"`
	CertificationLevel Level            `json:"certificationLevel"`
	CategoryResults    []CategoryResult `json:"categoryResults"`
	Advisories         []string         `json:"advisories"`
	Recommendations    []string         `json:"recommendations"`
}

type Certifier struct {
	cfg Config
}

func New(cfg Config) (*Certifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid certification config: %w", err)
	}
	return &Certifier{cfg: cfg}, nil
}

// Default uses DefaultConfig, which is always valid.
func Default() *Certifier {
	return &Certifier{cfg: DefaultConfig()}
}

func (c *Certifier) Config() Config {
	return c.cfg
}

// Grade maps score onto the configured scale. Scores outside [0,100] are
// clamped, so every input has a grade.
func (c *Certifier) Grade(score float64) string {
	return gradeOn(c.cfg.Grades, score)
}

// Grade maps score onto DefaultGrades.
func Grade(score float64) string {
	return gradeOn(DefaultGrades, score)
}

func gradeOn(scale []GradeThreshold, score float64) string {
	if math.IsNaN(score) {
		score = 0
	}
	score = math.Max(0, math.Min(100, score))
	for _, g := range scale {
		if score >= g.Min {
			return g.Grade
		}
	}
	return scale[len(scale)-1].Grade
}

// Certify scores results and profile against the requirements of level.
func (c *Certifier) Certify(results []validator.Result, profile Profile, level Level) Report {
	w := c.cfg.Weights
	categories := []CategoryResult{
		scoreCryptography(profile, w.Cryptography),
		scoreConsensus(results, w.Consensus),
		scoreGovernance(profile, w.Governance),
		scorePrivacy(profile, w.Privacy),
	}

	overall := 0.0
	for i := range categories {
		categories[i].Passed = categories[i].Score >= c.cfg.CategoryFloor
		overall += categories[i].Score * categories[i].Weight
	}
	overall = round2(overall)

	report := Report{
		OverallScore:       overall,
		Grade:              c.Grade(overall),
		CertificationLevel: level,
		CategoryResults:    categories,
	}

	var shortfall []string
	required, ok := c.cfg.Minimums[level]
	if !ok {
		shortfall = append(shortfall, fmt.Sprintf("Unknown certification level %q.", level))
	} else if overall < required {
		shortfall = append(shortfall, fmt.Sprintf("Raise the overall score from %.2f to at least %.2f for %s certification.", overall, required, level))
	}
	report.Passed = len(shortfall) == 0

	advisories := []string{}
	if level == LevelEnhanced || level == LevelQuantum {
		for _, cat := range categories {
			if !cat.Passed {
				advisories = append(advisories, fmt.Sprintf("Improve %s (%.2f) to at least %.2f.", cat.Category, cat.Score, c.cfg.CategoryFloor))
			}
		}
	}
	if level == LevelQuantum {
		if !profile.QuantumResistant {
			advisories = append(advisories, "QUANTUM certification requires a quantum-resistant chain.")
		}
		if crypto := categories[0]; crypto.Score < c.cfg.QuantumCryptoMin {
			advisories = append(advisories, fmt.Sprintf("Raise the cryptography score from %.2f to at least %.2f for QUANTUM certification.", crypto.Score, c.cfg.QuantumCryptoMin))
		}
	}
	report.Advisories = advisories

	report.Recommendations = append(append(shortfall, advisories...), recommendations(categories)...)
	if report.Recommendations == nil {
		report.Recommendations = []string{}
	}
	return report
}

func recommendations(categories []CategoryResult) []string {
	var out []string
	for _, cat := range categories {
		if cat.Score >= 90 {
			continue
		}
		for _, f := range cat.Findings {
			out = append(out, fmt.Sprintf("[%s] %s", cat.Category, f))
		}
	}
	return out
}

var quantumSafePrimitives = map[string]struct{}{
	"ml-dsa-44": {}, "ml-dsa-65": {}, "ml-dsa-87": {},
	"ml-kem-512": {}, "ml-kem-768": {}, "ml-kem-1024": {},
	"dilithium": {}, "kyber": {}, "falcon": {}, "sphincs+": {}, "slh-dsa": {},
	"sha3-256": {}, "sha3-512": {}, "shake256": {}, "blake2b": {}, "blake3": {},
	"xchacha20-poly1305": {}, "chacha20-poly1305": {}, "aes-256-gcm": {},
}

var quantumVulnerablePrimitives = map[string]struct{}{
	"rsa": {}, "ecdsa": {}, "ed25519": {}, "secp256k1": {}, "ecdh": {},
	"x25519": {}, "dsa": {}, "schnorr": {}, "bls12-381": {},
	"sha-1": {}, "md5": {},
}

func normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "_", "-")
	return strings.ReplaceAll(n, " ", "-")
}

const (
	cryptoBaseline        = 40
	cryptoSafeShare       = 60
	classicalPenalty      = 15
	nonResistantCryptoCap = 60
)

func scoreCryptography(p Profile, weight float64) CategoryResult {
	res := CategoryResult{Category: CategoryCryptography, Weight: weight, Findings: []string{}}
	if len(p.CryptographicPrimitives) == 0 {
		res.Findings = append(res.Findings, "No cryptographic primitives declared.")
		return res
	}

	var safe int
	var vulnerable, unknown []string
	for _, raw := range p.CryptographicPrimitives {
		n := normalize(raw)
		if _, ok := quantumSafePrimitives[n]; ok {
			safe++
			continue
		}
		if _, ok := quantumVulnerablePrimitives[n]; ok {
			vulnerable = append(vulnerable, raw)
			continue
		}
		unknown = append(unknown, raw)
	}

	score := cryptoBaseline + cryptoSafeShare*float64(safe)/float64(len(p.CryptographicPrimitives))
	score -= classicalPenalty * float64(len(vulnerable))
	if !p.QuantumResistant {
		score = math.Min(score, nonResistantCryptoCap)
		res.Findings = append(res.Findings, "Chain is not declared quantum resistant; adopt ML-DSA signatures and ML-KEM key exchange.")
	}
	for _, v := range vulnerable {
		res.Findings = append(res.Findings, fmt.Sprintf("Replace quantum-vulnerable primitive %s.", v))
	}
	if p.QuantumResistant && len(vulnerable) > 0 {
		res.Findings = append(res.Findings, "Quantum resistance is declared but classical primitives remain in use.")
	}
	for _, u := range unknown {
		res.Findings = append(res.Findings, fmt.Sprintf("Primitive %s is not recognised and earns no credit.", u))
	}
	res.Score = round2(clamp(score))
	return res
}

func scoreConsensus(results []validator.Result, weight float64) CategoryResult {
	res := CategoryResult{Category: CategoryConsensus, Weight: weight, Findings: []string{}}
	if len(results) == 0 {
		res.Findings = append(res.Findings, "No blocks were validated.")
		return res
	}
	valid, total := 0, 0.0
	var invalid []uint64
	for _, r := range results {
		total += normalizedScore(r)
		if r.IsValid {
			valid++
		} else {
			invalid = append(invalid, r.BlockHeight)
		}
	}
	avg := total / float64(len(results))
	res.Score = round2(clamp(float64(valid)/float64(len(results))*60 + avg*0.4))
	if len(invalid) > 0 {
		sort.Slice(invalid, func(i, j int) bool { return invalid[i] < invalid[j] })
		res.Findings = append(res.Findings, fmt.Sprintf("%d of %d blocks failed validation (heights %v).", len(invalid), len(results), invalid))
	}
	if avg < 80 {
		res.Findings = append(res.Findings, fmt.Sprintf("Average block security score is %.2f; seal blocks with quantum security proofs.", avg))
	}
	return res
}

// normalizedScore puts a block score on a 0-100 scale relative to the best
// score attainable at its validation level.
func normalizedScore(r validator.Result) float64 {
	level := r.ValidationLevel
	if !level.Valid() {
		level = validator.LevelStandard
	}
	return clamp(float64(r.SecurityScore) * 100 / float64(level.MaxScore()))
}

var governanceScores = map[string]float64{
	"on-chain-dao": 90,
	"dao":          85,
	"multisig":     80,
	"council":      75,
	"delegated":    70,
	"foundation":   60,
	"centralized":  40,
}

const unknownGovernanceScore = 50

func scoreGovernance(p Profile, weight float64) CategoryResult {
	res := CategoryResult{Category: CategoryGovernance, Weight: weight, Findings: []string{}}
	g := normalize(p.GovernanceType)
	if g == "" {
		res.Score = 30
		res.Findings = append(res.Findings, "No governance model declared.")
		return res
	}
	score, ok := governanceScores[g]
	if !ok {
		res.Score = unknownGovernanceScore
		res.Findings = append(res.Findings, fmt.Sprintf("Governance model %q is not recognised.", p.GovernanceType))
		return res
	}
	res.Score = score
	if score < 70 {
		res.Findings = append(res.Findings, "Decentralise governance through a DAO or multisig.")
	}
	return res
}

var privacyFeatures = map[string]struct{}{
	"zk-proofs":                 {},
	"confidential-transactions": {},
	"stealth-addresses":         {},
	"ring-signatures":           {},
	"encrypted-memos":           {},
	"post-quantum-encryption":   {},
}

func scorePrivacy(p Profile, weight float64) CategoryResult {
	res := CategoryResult{Category: CategoryPrivacy, Weight: weight, Findings: []string{}}
	known := map[string]struct{}{}
	for _, f := range p.PrivacyFeatures {
		n := normalize(f)
		if _, ok := privacyFeatures[n]; ok {
			known[n] = struct{}{}
		} else {
			res.Findings = append(res.Findings, fmt.Sprintf("Privacy feature %q is not recognised.", f))
		}
	}
	if len(known) == 0 {
		res.Score = 30
		res.Findings = append(res.Findings, "No privacy features declared; consider zero-knowledge proofs or confidential transactions.")
		return res
	}
	res.Score = clamp(40 + 15*float64(len(known)))
	return res
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
