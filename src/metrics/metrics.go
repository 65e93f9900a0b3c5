// Package metrics exposes Prometheus metrics for the chat service.
package metrics

import (
	"errors"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coursematch/src/core/rag"
)

const namespace = "coursematch"

type Metrics struct {
	registry *prom.Registry
	answers  *prom.CounterVec
	failures *prom.CounterVec
	latency  *prom.HistogramVec
	reloads  *prom.CounterVec
}

// New registers the service metrics on a private registry. indexEntries, when set, is
// sampled at scrape time.
func New(indexEntries func() float64) *Metrics {
	registry := prom.NewRegistry()
	m := &Metrics{
		registry: registry,
		answers: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers composed, by lookup and answer kind.",
		}, []string{"lookup", "kind"}),
		failures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_failures_total",
			Help:      "Failed lookups, by lookup and error kind.",
		}, []string{"lookup", "reason"}),
		latency: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Retrieval plus generation latency.",
			Buckets:   prom.ExponentialBuckets(0.05, 2, 10),
		}, []string{"lookup"}),
		reloads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "index_reloads_total",
			Help:      "Index reload attempts, by result.",
		}, []string{"result"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.answers, m.failures, m.latency, m.reloads,
	)
	if indexEntries != nil {
		registry.MustRegister(prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Entries in the serving index.",
		}, indexEntries))
	}
	return m
}

// ObserveLookup records the outcome of one lookup started at start.
func (m *Metrics) ObserveLookup(lookup, kind string, start time.Time, err error) {
	m.latency.WithLabelValues(lookup).Observe(time.Since(start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(lookup, Reason(err)).Inc()
		return
	}
	m.answers.WithLabelValues(lookup, kind).Inc()
}

// ObserveReload counts a reload attempt.
func (m *Metrics) ObserveReload(err error) {
	if err != nil {
		m.reloads.WithLabelValues("failed").Inc()
		return
	}
	m.reloads.WithLabelValues("ok").Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prom.Registry {
	return m.registry
}

// Reason maps an error to a low-cardinality label.
func Reason(err error) string {
	switch {
	case errors.Is(err, rag.ErrEmbedding):
		return "embedding"
	case errors.Is(err, rag.ErrModelInvocation):
		return "model"
	case errors.Is(err, rag.ErrIndexNotFound):
		return "index_not_found"
	case errors.Is(err, rag.ErrConfiguration):
		return "configuration"
	default:
		return "other"
	}
}
