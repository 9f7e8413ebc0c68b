// Package metrics holds the Prometheus instruments for the realm engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the realm engine. Consumers keep
// a possibly-nil pointer and use the nil-safe increment helpers.
type Metrics struct {
	Operations        *prometheus.CounterVec
	AuthSuccess       prometheus.Counter
	AuthFailure       prometheus.Counter
	ListenerVetoes    *prometheus.CounterVec
	FanoutStoreErrors prometheus.Counter
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
}

// New creates and registers all metrics with the given registerer. Pass
// prometheus.DefaultRegisterer in production wiring.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idrealm_operations_total",
			Help: "User store operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		AuthSuccess: factory.NewCounter(prometheus.CounterOpts{
			Name: "idrealm_authentications_success_total",
			Help: "Successful authentications.",
		}),
		AuthFailure: factory.NewCounter(prometheus.CounterOpts{
			Name: "idrealm_authentications_failure_total",
			Help: "Failed authentications.",
		}),
		ListenerVetoes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idrealm_listener_vetoes_total",
			Help: "Operations suppressed by a pre or post listener.",
		}, []string{"operation"}),
		FanoutStoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "idrealm_fanout_store_errors_total",
			Help: "Per-store failures tolerated during multi-store fan-outs.",
		}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idrealm_cache_hits_total",
			Help: "Cache hits by cache name.",
		}, []string{"cache"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idrealm_cache_misses_total",
			Help: "Cache misses by cache name.",
		}, []string{"cache"}),
	}
}

// IncOperation records one operation outcome. Nil-safe.
func (m *Metrics) IncOperation(operation, outcome string) {
	if m != nil {
		m.Operations.WithLabelValues(operation, outcome).Inc()
	}
}

// IncVeto records a listener veto. Nil-safe.
func (m *Metrics) IncVeto(operation string) {
	if m != nil {
		m.ListenerVetoes.WithLabelValues(operation).Inc()
	}
}

// IncAuthSuccess is nil-safe.
func (m *Metrics) IncAuthSuccess() {
	if m != nil {
		m.AuthSuccess.Inc()
	}
}

// IncAuthFailure is nil-safe.
func (m *Metrics) IncAuthFailure() {
	if m != nil {
		m.AuthFailure.Inc()
	}
}

// IncFanoutStoreError is nil-safe.
func (m *Metrics) IncFanoutStoreError() {
	if m != nil {
		m.FanoutStoreErrors.Inc()
	}
}

// IncCacheHit is nil-safe.
func (m *Metrics) IncCacheHit(cache string) {
	if m != nil {
		m.CacheHits.WithLabelValues(cache).Inc()
	}
}

// IncCacheMiss is nil-safe.
func (m *Metrics) IncCacheMiss(cache string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(cache).Inc()
	}
}
