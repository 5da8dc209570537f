// Package metrics exposes Prometheus collectors for the bridge and the
// safety evaluator.
package metrics

import (
	"strconv"
	"time"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/aethercore-labs/aethercore/consensus/safety"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aethercore"

var (
	bridgeTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bridge",
		Name:      "transitions_total",
		Help:      "Count of persisted bridge transaction status changes.",
	}, []string{"from", "to"})
	bridgeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bridge",
		Name:      "operation_failures_total",
		Help:      "Count of failed bridge operations by error kind.",
	}, []string{"operation", "kind"})
	blockValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consensus",
		Name:      "block_validations_total",
		Help:      "Count of block validations by level and outcome.",
	}, []string{"level", "valid"})
	blockSecurityScore = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "consensus",
		Name:      "block_security_score",
		Help:      "Distribution of block security scores.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	}, []string{"level"})
	safetyEvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "safety",
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of blockchain safety evaluations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"level", "passed"})
	safetyOverallScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "safety",
		Name:      "overall_score",
		Help:      "Overall score of the most recent safety evaluation.",
	}, []string{"level"})
)

// Bridge records bridge.Manager activity. The zero value is ready to use.
type Bridge struct{}

func NewBridge() *Bridge {
	return &Bridge{}
}

func (Bridge) ObserveTransition(from, to bridge.Status) {
	f := string(from)
	if f == "" {
		f = "none"
	}
	bridgeTransitionsTotal.WithLabelValues(f, string(to)).Inc()
}

func (Bridge) ObserveFailure(op, kind string) {
	bridgeFailuresTotal.WithLabelValues(op, kind).Inc()
}

// ObserveSafety records a finished evaluation and every block validation in
// it.
func ObserveSafety(res safety.Result) {
	level := string(res.CertificationLevel)
	for _, v := range res.Validations {
		blockValidationsTotal.WithLabelValues(string(v.ValidationLevel), strconv.FormatBool(v.IsValid)).Inc()
		blockSecurityScore.WithLabelValues(string(v.ValidationLevel)).Observe(float64(v.SecurityScore))
	}
	duration := time.Duration(res.DurationMs) * time.Millisecond
	safetyEvaluationDuration.WithLabelValues(level, strconv.FormatBool(res.Passed)).Observe(duration.Seconds())
	safetyOverallScore.WithLabelValues(level).Set(res.OverallScore)
}
