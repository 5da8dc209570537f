package metrics

import (
	"testing"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/aethercore-labs/aethercore/consensus/certification"
	"github.com/aethercore-labs/aethercore/consensus/safety"
	"github.com/aethercore-labs/aethercore/consensus/validator"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBridgeCounters(t *testing.T) {
	m := NewBridge()
	before := testutil.ToFloat64(bridgeTransitionsTotal.WithLabelValues("pending", "confirmed_source"))
	m.ObserveTransition(bridge.StatusPending, bridge.StatusConfirmedSource)
	m.ObserveTransition(bridge.StatusPending, bridge.StatusConfirmedSource)
	assert.Equal(t, before+2, testutil.ToFloat64(bridgeTransitionsTotal.WithLabelValues("pending", "confirmed_source")))

	created := testutil.ToFloat64(bridgeTransitionsTotal.WithLabelValues("none", "initiated"))
	m.ObserveTransition("", bridge.StatusInitiated)
	assert.Equal(t, created+1, testutil.ToFloat64(bridgeTransitionsTotal.WithLabelValues("none", "initiated")))

	failures := testutil.ToFloat64(bridgeFailuresTotal.WithLabelValues("complete", bridge.KindInfrastructure))
	m.ObserveFailure("complete", bridge.KindInfrastructure)
	assert.Equal(t, failures+1, testutil.ToFloat64(bridgeFailuresTotal.WithLabelValues("complete", bridge.KindInfrastructure)))
}

func TestObserveSafety(t *testing.T) {
	before := testutil.ToFloat64(blockValidationsTotal.WithLabelValues("quantum", "true"))
	ObserveSafety(safety.Result{
		Passed:             true,
		OverallScore:       91.5,
		CertificationLevel: certification.LevelQuantum,
		DurationMs:         12,
		Validations: []validator.Result{
			{IsValid: true, SecurityScore: 100, ValidationLevel: validator.LevelQuantum},
			{IsValid: true, SecurityScore: 95, ValidationLevel: validator.LevelQuantum},
		},
	})
	assert.Equal(t, before+2, testutil.ToFloat64(blockValidationsTotal.WithLabelValues("quantum", "true")))
	assert.Equal(t, 91.5, testutil.ToFloat64(safetyOverallScore.WithLabelValues("QUANTUM")))
}
