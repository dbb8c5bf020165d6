package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/prizedrop/prize-service/internal/domain"
)

// Round results recorded by Metrics.
const (
	roundResultStarted      = "started"
	roundResultNoPrize      = "no_eligible_prize"
	roundResultAssetMissing = "asset_missing"
	roundResultFailed       = "failed"
)

// Metrics holds the prometheus collectors of the game. A nil *Metrics records nothing.
type Metrics struct {
	claims     *prometheus.CounterVec
	rounds     *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	claimTime  prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		claims: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prize",
			Name:      "claims_total",
			Help:      "Claim attempts by outcome.",
		}, []string{"outcome"}),
		rounds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prize",
			Name:      "rounds_total",
			Help:      "Scheduler ticks by result.",
		}, []string{"result"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prize",
			Name:      "broadcast_deliveries_total",
			Help:      "Hidden prize deliveries by result.",
		}, []string{"result"}),
		claimTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prize",
			Name:      "claim_duration_seconds",
			Help:      "Latency of the atomic claim.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeClaim(status domain.ClaimStatus, seconds float64) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(string(status)).Inc()
	m.claimTime.Observe(seconds)
}

func (m *Metrics) observeRound(result string) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues(result).Inc()
}

func (m *Metrics) observeDeliveries(delivered, failed int) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues("delivered").Add(float64(delivered))
	m.deliveries.WithLabelValues("failed").Add(float64(failed))
}
