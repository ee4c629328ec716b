package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	escrowImbalanceCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	heldFundsGauge         prometheus.Gauge
	releaseOutcomeCounter  *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		escrowImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_imbalance_total",
			Help: "Number of times frozen balances diverged from held transaction sums",
		}, []string{"scope"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		heldFundsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "escrow_held_funds_minor_units",
			Help: "Total funds currently frozen across all escrow accounts",
		})

		releaseOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_release_outcomes_total",
			Help: "Fund release and refund outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			escrowImbalanceCounter,
			idempotencyCounter,
			heldFundsGauge,
			releaseOutcomeCounter,
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

func IncrementEscrowImbalance(scope string) {
	if escrowImbalanceCounter == nil {
		return
	}
	escrowImbalanceCounter.WithLabelValues(scope).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func SetHeldFunds(total int64) {
	if heldFundsGauge == nil {
		return
	}
	heldFundsGauge.Set(float64(total))
}

func IncrementReleaseOutcome(outcome string) {
	if releaseOutcomeCounter == nil {
		return
	}
	releaseOutcomeCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
