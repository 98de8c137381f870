package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rewardledger"

var (
	metricsOnce sync.Once

	unitsEarned     prometheus.Counter
	unitsSpent      *prometheus.CounterVec
	ledgerOps       *prometheus.CounterVec
	gateChecks      *prometheus.CounterVec
	outboxPublished *prometheus.CounterVec
	grantsCompacted prometheus.Counter

	httpRequestDuration *prometheus.HistogramVec
	httpRequestTotal    *prometheus.CounterVec
)

func initMetrics() {
	unitsEarned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "units_earned_total",
		Help:      "Reward units credited to accounts.",
	})
	unitsSpent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "units_spent_total",
		Help:      "Reward units debited to unlock features.",
	}, []string{"feature"})
	ledgerOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Ledger operations by outcome kind.",
	}, []string{"op", "outcome"})
	gateChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gate",
		Name:      "checks_total",
		Help:      "Feature gate checks by access reason.",
	}, []string{"reason"})
	outboxPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "messages_total",
		Help:      "Outbox messages handled by the relay, by result.",
	}, []string{"result"})
	grantsCompacted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grants",
		Name:      "compacted_total",
		Help:      "Expired grant rows removed by compaction.",
	})
	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration observed at the API layer.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route", "status"})
	httpRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled by the API.",
	}, []string{"method", "route", "status"})

	prometheus.MustRegister(
		unitsEarned, unitsSpent, ledgerOps, gateChecks,
		outboxPublished, grantsCompacted,
		httpRequestDuration, httpRequestTotal,
	)
}

func ensure() { metricsOnce.Do(initMetrics) }

func UnitsEarned(amount int64) {
	ensure()
	unitsEarned.Add(float64(amount))
}

func UnitsSpent(feature string, amount int64) {
	ensure()
	unitsSpent.WithLabelValues(feature).Add(float64(amount))
}

// LedgerOperation counts one Earn/Spend call; outcome is "ok" or an error kind.
func LedgerOperation(op, outcome string) {
	ensure()
	ledgerOps.WithLabelValues(op, outcome).Inc()
}

func GateCheck(reason string) {
	ensure()
	if reason == "" {
		reason = "denied"
	}
	gateChecks.WithLabelValues(reason).Inc()
}

func OutboxMessage(result string) {
	ensure()
	outboxPublished.WithLabelValues(result).Inc()
}

func GrantsCompacted(n int64) {
	ensure()
	grantsCompacted.Add(float64(n))
}

func HTTPRequest(method, route string, status int, elapsed time.Duration) {
	ensure()
	code := strconv.Itoa(status)
	httpRequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
	httpRequestTotal.WithLabelValues(method, route, code).Inc()
}
