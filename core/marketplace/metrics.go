package marketplace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSlotConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_slot_conflicts_total",
		Help: "Accept attempts that lost the worker-slot race.",
	})
	metricPayoutsAttempted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_payouts_attempted_total",
		Help: "Escrow transfers the orchestrator attempted.",
	})
	metricPayoutsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_payouts_failed_total",
		Help: "Escrow transfers that failed and were left for reconciliation.",
	})
	metricPayoutCents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_payout_cents_total",
		Help: "Total stablecoin cents settled to workers.",
	})
	metricDisputesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_disputes_opened_total",
		Help: "Disputes opened against rejected submissions.",
	})
	metricDisputesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_disputes_resolved_total",
		Help: "Disputes resolved, by outcome.",
	}, []string{"outcome"})
	metricJurorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_juror_failures_total",
		Help: "Juror invocations that errored and were dropped from the tally.",
	})
)
