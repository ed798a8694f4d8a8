package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	httpDurationHistogram     *prometheus.HistogramVec
	ledgerOperationCounter    *prometheus.CounterVec
	feesDestroyedCounter      prometheus.Counter
	invariantViolationCounter *prometheus.CounterVec
	idempotencyCounter        *prometheus.CounterVec
	pendingRequestsGauge      *prometheus.GaugeVec
	eventPublishCounter       *prometheus.CounterVec
	workerRunCounter          *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerOperationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger engine operations by outcome",
		}, []string{"operation", "result"})

		feesDestroyedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_fees_destroyed_total",
			Help: "Sum of transfer fees removed from circulation",
		})

		invariantViolationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_invariant_violations_total",
			Help: "Invariant violations found by reconciliation",
		}, []string{"check"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		pendingRequestsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_pending_requests",
			Help: "Cash-in and cash-out requests awaiting a decision",
		}, []string{"kind"})

		eventPublishCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_events_published_total",
			Help: "Domain event publication outcomes",
		}, []string{"type", "result"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerOperationCounter,
			feesDestroyedCounter,
			invariantViolationCounter,
			idempotencyCounter,
			pendingRequestsGauge,
			eventPublishCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

// IncrementLedgerOperation records the outcome of an engine operation. result
// is "ok" or the failing error code.
func IncrementLedgerOperation(operation, result string) {
	if ledgerOperationCounter == nil {
		return
	}
	ledgerOperationCounter.WithLabelValues(operation, result).Inc()
}

func AddFeesDestroyed(amount int64) {
	if feesDestroyedCounter == nil || amount <= 0 {
		return
	}
	feesDestroyedCounter.Add(float64(amount))
}

func AddInvariantViolations(check string, n int64) {
	if invariantViolationCounter == nil || n <= 0 {
		return
	}
	invariantViolationCounter.WithLabelValues(check).Add(float64(n))
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func SetPendingRequests(kind string, n int64) {
	if pendingRequestsGauge == nil {
		return
	}
	pendingRequestsGauge.WithLabelValues(kind).Set(float64(n))
}

func IncrementEventPublish(eventType, result string) {
	if eventPublishCounter == nil {
		return
	}
	eventPublishCounter.WithLabelValues(eventType, result).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
