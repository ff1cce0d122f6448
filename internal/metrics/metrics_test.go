package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.EmbeddingCacheHits.Inc()
	a.SyncFiles.WithLabelValues("indexed").Add(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.EmbeddingCacheHits))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EmbeddingCacheHits))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.SyncFiles.WithLabelValues("indexed")))
}

func TestSnapshot(t *testing.T) {
	m := New()
	m.Extractions.WithLabelValues("stored").Inc()
	m.QueryDuration.Observe(0.01)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap["agent_memory_manager_extractions_total{result=stored}"])
	assert.Equal(t, 1.0, snap["agent_memory_index_query_duration_seconds_count"])
}
