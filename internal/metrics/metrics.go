// Package metrics holds the Prometheus collectors for gateway calls, token fetches and caches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the lookup core.
type Metrics struct {
	GatewayCalls    *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	TokenFetches    *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
}

// New creates and registers all metrics on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		GatewayCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hc_gateway_calls_total",
			Help: "Case gateway calls by operation and outcome",
		}, []string{"op", "outcome"}),
		GatewayDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hc_gateway_call_duration_seconds",
			Help:    "Case gateway call latency including token and decryption",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 16, 32},
		}, []string{"op"}),
		TokenFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hc_gateway_token_fetches_total",
			Help: "OAuth2 token endpoint requests by outcome",
		}, []string{"outcome"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hc_cache_lookups_total",
			Help: "Query cache lookups by cache name and result (hit, miss, shared, tier_hit)",
		}, []string{"cache", "result"}),
	}
}

// ObserveCall records one gateway operation. Safe on a nil receiver.
func (m *Metrics) ObserveCall(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.GatewayCalls.WithLabelValues(op, outcome).Inc()
	m.GatewayDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveToken records one token endpoint request.
func (m *Metrics) ObserveToken(outcome string) {
	if m == nil {
		return
	}
	m.TokenFetches.WithLabelValues(outcome).Inc()
}

// ObserveCache records one cache lookup.
func (m *Metrics) ObserveCache(cache, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}
