package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline/internal/metrics"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveRequest(metrics.KindSpecification, "success", time.Second)
	m.ObserveArtifact(metrics.KindDesign, "fallback")
	m.ObserveTransition("DRAFT", "REFINED")
	assert.NotNil(t, m.Handler())
}

func TestCollectorsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveRequest(metrics.KindSpecification, "unavailable", 10*time.Millisecond)
	m.ObserveArtifact(metrics.KindSpecification, "fallback")
	m.ObserveTransition("DRAFT", "READY_FOR_REFINEMENT")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"storyline_generation_requests_total",
		"storyline_generation_duration_seconds",
		"storyline_generation_artifacts_total",
		"storyline_story_transitions_total",
	} {
		assert.True(t, names[want], want)
	}
}
