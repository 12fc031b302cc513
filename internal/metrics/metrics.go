package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	documentsTotal *prometheus.CounterVec
	chunksTotal    prometheus.Counter
	queriesTotal   *prometheus.CounterVec
	queryDuration  prometheus.Histogram
	embedDuration  prometheus.Histogram
	indexEntries   prometheus.Gauge

	registry *prometheus.Registry
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "docrag"
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.documentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Documents processed by ingest, by outcome",
		},
		[]string{"outcome"},
	)
	m.chunksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_indexed_total",
		Help:      "Chunks embedded and inserted into the index",
	})
	m.queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Search-and-summarize requests, by outcome",
		},
		[]string{"outcome"},
	)
	m.queryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_duration_seconds",
		Help:      "Time spent retrieving and synthesizing an answer",
		Buckets:   prometheus.DefBuckets,
	})
	m.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "embed_duration_seconds",
		Help:      "Time spent embedding one batch of texts",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
	m.indexEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "index_entries",
		Help:      "Entries currently held by the vector index",
	})

	m.registry.MustRegister(
		m.documentsTotal,
		m.chunksTotal,
		m.queriesTotal,
		m.queryDuration,
		m.embedDuration,
		m.indexEntries,
	)
	return m
}

// Registry exposes the private registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordDocument counts one ingested document; outcome is "ok" or "failed".
func (m *Metrics) RecordDocument(outcome string, chunks int) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(outcome).Inc()
	m.chunksTotal.Add(float64(chunks))
}

func (m *Metrics) RecordEmbed(d time.Duration) {
	if m == nil {
		return
	}
	m.embedDuration.Observe(d.Seconds())
}

// RecordQuery counts one query; outcome is "answered", "empty",
// "not_ready" or "synthesis_failed".
func (m *Metrics) RecordQuery(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(d.Seconds())
}

func (m *Metrics) SetIndexEntries(n int) {
	if m == nil {
		return
	}
	m.indexEntries.Set(float64(n))
}

// WriteTextfile dumps the registry in text format for the node exporter
// textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
