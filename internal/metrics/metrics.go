// Package metrics exposes prometheus instruments for the memory subsystem.
// Instruments live on a private registry so several instances (and tests)
// never collide on the global default registerer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all instruments.
type Metrics struct {
	Registry *prometheus.Registry

	EmbeddingCacheHits   prometheus.Counter
	EmbeddingCacheMisses prometheus.Counter
	EmbeddingErrors      prometheus.Counter
	SyncFiles            *prometheus.CounterVec
	SyncPasses           prometheus.Counter
	QueryDuration        prometheus.Histogram
	Extractions          *prometheus.CounterVec
	SleepRuns            *prometheus.CounterVec
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EmbeddingCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agent_memory", Subsystem: "embedding",
			Name: "cache_hits_total", Help: "Embedding cache hits.",
		}),
		EmbeddingCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agent_memory", Subsystem: "embedding",
			Name: "cache_misses_total", Help: "Embedding cache misses.",
		}),
		EmbeddingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agent_memory", Subsystem: "embedding",
			Name: "provider_errors_total", Help: "Failed embedding provider calls.",
		}),
		SyncFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent_memory", Subsystem: "sync",
			Name: "files_total", Help: "Files visited by sync passes, by result.",
		}, []string{"result"}),
		SyncPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agent_memory", Subsystem: "sync",
			Name: "passes_total", Help: "Completed sync passes.",
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agent_memory", Subsystem: "index",
			Name: "query_duration_seconds", Help: "Hybrid query latency.",
			Buckets: prometheus.DefBuckets,
		}),
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent_memory", Subsystem: "manager",
			Name: "extractions_total", Help: "Message extraction outcomes.",
		}, []string{"result"}),
		SleepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent_memory", Subsystem: "sleep",
			Name: "runs_total", Help: "Consolidation runs, by outcome.",
		}, []string{"result"}),
	}
	m.Registry.MustRegister(
		m.EmbeddingCacheHits, m.EmbeddingCacheMisses, m.EmbeddingErrors,
		m.SyncFiles, m.SyncPasses, m.QueryDuration, m.Extractions, m.SleepRuns,
	)
	return m
}

// Snapshot flattens current counter values into name→value, labelled
// series keyed as name{label=value}.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}
	out := map[string]float64{}
	for _, f := range families {
		for _, s := range f.GetMetric() {
			key := f.GetName()
			for _, l := range s.GetLabel() {
				key += "{" + l.GetName() + "=" + l.GetValue() + "}"
			}
			switch {
			case s.GetCounter() != nil:
				out[key] = s.GetCounter().GetValue()
			case s.GetHistogram() != nil:
				out[key+"_count"] = float64(s.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
