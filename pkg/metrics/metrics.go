// Package metrics exposes Prometheus collectors for the settlement engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesTotal counts ledger entries by kind and final status
	EntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Ledger entries written, by kind and status",
	}, []string{"kind", "status"})

	// SettlementDuration observes the append-then-apply latency
	SettlementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_settlement_duration_seconds",
		Help:    "Duration of the atomic append-then-apply sequence",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// WalletLockBusyTotal counts lock-timeout rejections per currency
	WalletLockBusyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_lock_busy_total",
		Help: "Wallet lock acquisitions that timed out",
	}, []string{"currency"})

	// ROIPeriodsCreditedTotal counts ROI periods credited per tick
	ROIPeriodsCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roi_periods_credited_total",
		Help: "ROI periods credited by the scheduler",
	})

	// ReferralBonusesTotal counts referral bonuses by cascade level
	ReferralBonusesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_bonuses_total",
		Help: "Referral bonuses credited, by cascade level",
	}, []string{"level"})

	// MilestonesFiredTotal counts milestone bonuses issued
	MilestonesFiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "milestones_fired_total",
		Help: "Milestone achievement bonuses issued",
	})

	// ReconciliationDriftGauge reports wallets whose projection drifted
	// from the entry sum during the last reconciliation run
	ReconciliationDriftGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_reconciliation_drift_wallets",
		Help: "Wallets with balance drift found by the last reconciliation",
	})

	// DatabaseConnectionsGauge tracks connection pool usage
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "database_connections",
		Help: "Database connection pool state",
	}, []string{"state"})
)
