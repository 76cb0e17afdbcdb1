// Package prometheus provides the operational metrics the broker exposes
// on its /metrics endpoint.
package prometheus

import (
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	jobTransitions *prometheus.CounterVec
	settlements    *prometheus.CounterVec
	settledAmount  *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	broadcastTicks prometheus.Histogram
	broadcastSkips prometheus.Counter
}

// NewMetrics registers the broker metrics on the given registerer and
// returns the port.Metrics implementation core services record through
func NewMetrics(reg prometheus.Registerer) port.Metrics {
	factory := promauto.With(reg)
	return &metrics{
		jobTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_job_transitions_total",
			Help: "Job state transitions by resulting status",
		}, []string{"status"}),
		settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_settlement_transactions_total",
			Help: "Settlement transactions recorded by type",
		}, []string{"type"}),
		settledAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_settlement_amount_total",
			Help: "Total settled amount by transaction type",
		}, []string{"type"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_balance_cache_lookups_total",
			Help: "Balance cache lookups by outcome",
		}, []string{"outcome"}),
		broadcastTicks: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "broker_earnings_broadcast_seconds",
			Help:    "Duration of earnings broadcast ticks",
			Buckets: prometheus.DefBuckets,
		}),
		broadcastSkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_earnings_broadcast_skips_total",
			Help: "Broadcast ticks skipped because the previous tick was still running",
		}),
	}
}

func (m *metrics) JobStatusChanged(status domain.JobStatus) {
	m.jobTransitions.WithLabelValues(string(status)).Inc()
}

func (m *metrics) SettlementRecorded(txType domain.TransactionType, amount float64) {
	m.settlements.WithLabelValues(string(txType)).Inc()
	m.settledAmount.WithLabelValues(string(txType)).Add(amount)
}

func (m *metrics) BalanceCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func (m *metrics) BroadcastTick(duration time.Duration, skipped bool) {
	if skipped {
		m.broadcastSkips.Inc()
		return
	}
	m.broadcastTicks.Observe(duration.Seconds())
}

// Nop is a no-op metrics recorder for tests and tooling
type Nop struct{}

func (Nop) JobStatusChanged(domain.JobStatus)                  {}
func (Nop) SettlementRecorded(domain.TransactionType, float64) {}
func (Nop) BalanceCacheLookup(bool)                            {}
func (Nop) BroadcastTick(time.Duration, bool)                  {}
