// Package telemetry holds the process Prometheus collectors and adapters that
// feed them from the job queue and the connector registry.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_jobs_enqueued_total", Help: "Jobs enqueued",
	}, []string{"type"})
	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_jobs_completed_total", Help: "Jobs completed successfully",
	}, []string{"type"})
	JobsRetried = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_jobs_retried_total", Help: "Jobs that failed and were re-queued",
	}, []string{"type"})
	JobsDeadLettered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_jobs_dead_lettered_total", Help: "Jobs parked as failed after exhausting retries",
	}, []string{"type"})
	PollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assistant_poll_errors_total", Help: "Dequeue failures seen by the poller",
	})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assistant_job_duration_seconds",
		Help:    "Handler run time of completed jobs",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	Hydrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_hydrations_total", Help: "User integration hydrations by outcome",
	}, []string{"outcome"})
	ConnectorConnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_connector_connects_total", Help: "Connector connect attempts by outcome",
	}, []string{"connector", "outcome"})
)

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsCompleted,
			JobsRetried,
			JobsDeadLettered,
			PollErrors,
			JobDuration,
			Hydrations,
			ConnectorConnects,
		)
	})
}

// Handler exposes /metrics with the singleton registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// JobObserver feeds the job collectors. It satisfies jobx.Observer.
type JobObserver struct{}

func (JobObserver) JobEnqueued(jobType string) { JobsEnqueued.WithLabelValues(jobType).Inc() }

func (JobObserver) JobCompleted(jobType string, took time.Duration) {
	JobsCompleted.WithLabelValues(jobType).Inc()
	JobDuration.WithLabelValues(jobType).Observe(took.Seconds())
}

func (JobObserver) JobRetried(jobType string)      { JobsRetried.WithLabelValues(jobType).Inc() }
func (JobObserver) JobDeadLettered(jobType string) { JobsDeadLettered.WithLabelValues(jobType).Inc() }
func (JobObserver) PollError()                     { PollErrors.Inc() }

// ConnectorObserver feeds the connector collectors. It satisfies connectorx.Observer.
type ConnectorObserver struct{}

func (ConnectorObserver) Hydrated(outcome string) { Hydrations.WithLabelValues(outcome).Inc() }

func (ConnectorObserver) Connected(connectorID string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ConnectorConnects.WithLabelValues(connectorID, outcome).Inc()
}
