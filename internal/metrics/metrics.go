package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "eidos"
	subsystem = "ads"
)

var (
	// ==================== Event Settlement ====================

	// EventsReported 上报事件总数，按类型和结局分类
	EventsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "events_reported_total",
		Help:      "Total number of ad events reported",
	}, []string{"event_type", "outcome"})

	// SettledAmount 累计结算金额
	SettledAmount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "settled_amount_total",
		Help:      "Total amount charged across settled events",
	})

	// ==================== On-Chain Verification ====================

	// VerificationResults 验证结论总数
	VerificationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "verification_results_total",
		Help:      "Total number of on-chain verification results",
	}, []string{"status"})

	// VerificationDuration 单次验证耗时
	VerificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "verification_duration_seconds",
		Help:      "On-chain verification duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// ==================== Search ====================

	// SearchRequests 搜索请求总数
	SearchRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "search_requests_total",
		Help:      "Total number of ad search requests",
	})

	// SearchResultsReturned 返回的搜索结果条数分布
	SearchResultsReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "search_results_returned",
		Help:      "Number of ranked ads returned per search",
		Buckets:   []float64{0, 1, 2, 3, 5, 10},
	})

	// ==================== Reconciliation Worker ====================

	// ReconciliationRuns 对账轮次总数
	ReconciliationRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reconciliation_runs_total",
		Help:      "Total number of reconciliation worker runs",
	})

	// ReconciliationEvents 对账处理事件总数，按结局分类
	ReconciliationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reconciliation_events_total",
		Help:      "Total number of pending events processed by reconciliation",
	}, []string{"outcome"})

	// PendingEvents 当前 pending 事件数
	PendingEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pending_events",
		Help:      "Number of events currently pending verification",
	})
)
