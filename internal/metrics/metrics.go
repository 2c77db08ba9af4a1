// Package metrics exposes Prometheus metrics for settlement.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the settlement metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Settlements     *prometheus.CounterVec
	CommitConflicts prometheus.Counter
	Replays         prometheus.Counter
	SettleLatency   prometheus.Histogram
	LedgerSubmits   *prometheus.CounterVec
	PoolsCreated    prometheus.Counter
	LaunchesTotal   prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the metrics on reg. A nil reg uses a fresh registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "bonding_curve"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		Settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "trades_total",
			Help:      "Settled trade attempts by direction and outcome code",
		}, []string{"direction", "outcome"}),
		CommitConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "version_conflicts_total",
			Help:      "Commits rejected because the pool changed since it was read",
		}),
		Replays: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "replays_total",
			Help:      "Requests answered from a previously committed trade",
		}),
		SettleLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "duration_seconds",
			Help:      "Time spent settling one trade request",
			Buckets:   prometheus.DefBuckets,
		}),
		LedgerSubmits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "submissions_total",
			Help:      "Ledger submissions by result",
		}, []string{"result"}),
		PoolsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pools",
			Name:      "created_total",
			Help:      "Pools created",
		}),
		LaunchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pools",
			Name:      "launched_total",
			Help:      "Pools moved to live",
		}),
		gatherer: reg,
	}
}

// ObserveSettlement records one settle call. outcome is "ok" or a rejection code.
func (m *Metrics) ObserveSettlement(direction, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(direction, outcome).Inc()
	m.SettleLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.CommitConflicts.Inc()
}

func (m *Metrics) IncReplay() {
	if m == nil {
		return
	}
	m.Replays.Inc()
}

func (m *Metrics) ObserveSubmit(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.LedgerSubmits.WithLabelValues(result).Inc()
}

func (m *Metrics) IncPoolCreated() {
	if m == nil {
		return
	}
	m.PoolsCreated.Inc()
}

func (m *Metrics) IncLaunch() {
	if m == nil {
		return
	}
	m.LaunchesTotal.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
