// Package metrics 账本相关的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "loyalty_ledger"

var (
	CreditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credits_total",
		Help:      "Number of successful point credits.",
	})

	PointsCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_credited_total",
		Help:      "Sum of points credited to accounts.",
	})

	RedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "redemptions_total",
		Help:      "Redemption attempts by outcome.",
	}, []string{"outcome"})

	RedemptionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "redemption_duration_seconds",
		Help:      "Latency of the redemption transaction including lock wait.",
		Buckets:   prometheus.DefBuckets,
	})

	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claims_total",
		Help:      "Number of redemptions marked as claimed.",
	})

	ReconcileDriftTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_drift_total",
		Help:      "Accounts whose balances disagree with the transaction log.",
	})

	OutboxPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_published_total",
		Help:      "Outbox messages handed to Kafka by result.",
	}, []string{"result"})
)

// 兑换结果标签
const (
	OutcomeSuccess      = "success"
	OutcomeInsufficient = "insufficient_points"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
)

// 消息投递结果标签
const (
	ResultSent   = "sent"
	ResultRetry  = "retry"
	ResultFailed = "failed"
)
