package certification

import (
	"errors"
	"fmt"
	"math"
)

// GradeThreshold maps every score at or above Min to Grade.
type GradeThreshold struct {
	Grade string  `json:"grade" mapstructure:"grade"`
	Min   float64 `json:"min" mapstructure:"min"`
}

// Weights are the category contributions to the overall score and must
// sum to 1.
type Weights struct {
	Cryptography float64 `json:"cryptography" mapstructure:"cryptography"`
	Consensus    float64 `json:"consensus" mapstructure:"consensus"`
	Governance   float64 `json:"governance" mapstructure:"governance"`
	Privacy      float64 `json:"privacy" mapstructure:"privacy"`
}

func (w Weights) sum() float64 {
	return w.Cryptography + w.Consensus + w.Governance + w.Privacy
}

type Config struct {
	Weights Weights `json:"weights" mapstructure:"weights"`
	// Grades must be ordered by descending Min and end with Min 0.
	Grades []GradeThreshold `json:"grades" mapstructure:"grades"`
	// Minimums holds the overall score required per certification level.
	Minimums map[Level]float64 `json:"minimums" mapstructure:"minimums"`
	// CategoryFloor is the lowest category score accepted at ENHANCED and
	// above.
	CategoryFloor float64 `json:"category_floor" mapstructure:"category_floor"`
	// QuantumCryptoMin is the cryptography score required at QUANTUM.
	QuantumCryptoMin float64 `json:"quantum_crypto_min" mapstructure:"quantum_crypto_min"`
}

var DefaultGrades = []GradeThreshold{
	{"A+", 97}, {"A", 93}, {"A-", 90},
	{"B+", 87}, {"B", 83}, {"B-", 80},
	{"C+", 77}, {"C", 73}, {"C-", 70},
	{"D", 60}, {"F", 0},
}

func DefaultConfig() Config {
	grades := make([]GradeThreshold, len(DefaultGrades))
	copy(grades, DefaultGrades)
	return Config{
		Weights: Weights{Cryptography: 0.35, Consensus: 0.35, Governance: 0.15, Privacy: 0.15},
		Grades:  grades,
		Minimums: map[Level]float64{
			LevelStandard: 60,
			LevelEnhanced: 75,
			LevelQuantum:  90,
		},
		CategoryFloor:    50,
		QuantumCryptoMin: 85,
	}
}

func (c Config) Validate() error {
	if math.Abs(c.Weights.sum()-1) > 1e-9 {
		return fmt.Errorf("category weights sum to %.4f, expected 1", c.Weights.sum())
	}
	for _, w := range []float64{c.Weights.Cryptography, c.Weights.Consensus, c.Weights.Governance, c.Weights.Privacy} {
		if w < 0 {
			return errors.New("category weights must not be negative")
		}
	}
	if len(c.Grades) == 0 {
		return errors.New("grade scale is empty")
	}
	for i := 1; i < len(c.Grades); i++ {
		if c.Grades[i].Min >= c.Grades[i-1].Min {
			return fmt.Errorf("grade %s threshold %.2f is not below %s threshold %.2f",
				c.Grades[i].Grade, c.Grades[i].Min, c.Grades[i-1].Grade, c.Grades[i-1].Min)
		}
	}
	if last := c.Grades[len(c.Grades)-1]; last.Min != 0 {
		return fmt.Errorf("lowest grade %s must start at 0, got %.2f", last.Grade, last.Min)
	}
	prev := -1.0
	for _, level := range Levels {
		required, ok := c.Minimums[level]
		if !ok {
			return fmt.Errorf("missing minimum score for level %s", level)
		}
		if required <= prev {
			return fmt.Errorf("minimum for %s (%.2f) must exceed the previous level (%.2f)", level, required, prev)
		}
		prev = required
	}
	return nil
}
