// Package metrics holds the Prometheus instruments shared by the API server
// and the encryption worker. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Worker outcomes.
const (
	OutcomeStored       = "stored"
	OutcomeSkipped      = "skipped"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeRequeued     = "requeued"
)

// Metrics groups every instrument.
type Metrics struct {
	registry *prometheus.Registry

	IngestTotal     *prometheus.CounterVec // flaxvault_ingest_total{result}
	IngestBytes     prometheus.Counter     // flaxvault_ingest_bytes_total
	PublishFailures prometheus.Counter     // flaxvault_publish_failures_total
	PendingRequeued prometheus.Counter     // flaxvault_pending_requeued_total

	WorkerMessages *prometheus.CounterVec   // flaxvault_worker_messages_total{queue,outcome}
	WorkerDuration *prometheus.HistogramVec // flaxvault_worker_process_duration_seconds{queue}
	EncryptedBytes prometheus.Counter       // flaxvault_worker_encrypted_bytes_total

	DownloadsTotal *prometheus.CounterVec // flaxvault_downloads_total{result}
}

// New registers all instruments, plus Go and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		IngestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flaxvault_ingest_total",
			Help: "File ingestions by result",
		}, []string{"result"}),

		IngestBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "flaxvault_ingest_bytes_total",
			Help: "Bytes staged by successful ingestions",
		}),

		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "flaxvault_publish_failures_total",
			Help: "Upload events that could not be published after commit",
		}),

		PendingRequeued: f.NewCounter(prometheus.CounterOpts{
			Name: "flaxvault_pending_requeued_total",
			Help: "Upload events republished by the pending sweeper",
		}),

		WorkerMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flaxvault_worker_messages_total",
			Help: "Upload events handled by the worker by queue and outcome",
		}, []string{"queue", "outcome"}),

		WorkerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flaxvault_worker_process_duration_seconds",
			Help:    "Time spent encrypting and uploading one object",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"queue"}),

		EncryptedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "flaxvault_worker_encrypted_bytes_total",
			Help: "Plaintext bytes encrypted and stored by the worker",
		}),

		DownloadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flaxvault_downloads_total",
			Help: "Download link requests by result",
		}, []string{"result"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveIngest(size int64, err error) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.IngestBytes.Add(float64(size))
	}
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

func (m *Metrics) Requeued(n int) {
	if m == nil {
		return
	}
	m.PendingRequeued.Add(float64(n))
}

func (m *Metrics) WorkerOutcome(queue, outcome string) {
	if m == nil {
		return
	}
	m.WorkerMessages.WithLabelValues(queue, outcome).Inc()
}

func (m *Metrics) ObserveProcess(queue string, started time.Time) {
	if m == nil {
		return
	}
	m.WorkerDuration.WithLabelValues(queue).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Encrypted(n int64) {
	if m == nil {
		return
	}
	m.EncryptedBytes.Add(float64(n))
}

func (m *Metrics) ObserveDownload(err error) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(result(err)).Inc()
}
