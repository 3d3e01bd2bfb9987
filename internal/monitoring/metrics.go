package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	EscrowTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_transactions_total",
			Help: "Total escrow contract transactions by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	Activations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lease_activations_total",
			Help: "Total lease activation attempts by outcome",
		},
		[]string{"outcome"},
	)
	ConfirmationWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lease_confirmation_wait_seconds",
			Help:    "Time from createLease submission until the lease is observable on chain",
			Buckets: prometheus.LinearBuckets(0, 5, 12), // 0 to 60 seconds
		},
	)
)

func InitMetrics() {
	err := prometheus.Register(EscrowTransactions)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register EscrowTransactions metric")
	}

	err = prometheus.Register(Activations)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register Activations metric")
	}

	err = prometheus.Register(ConfirmationWait)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register ConfirmationWait metric")
	}
}
