package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "odoo_rpa"

const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
	OutcomeFailure   = "failure"
)

// Recorder owns a private registry so a batch run can dump its counters to a
// node-exporter textfile when it exits. A nil *Recorder records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	attempts    *prometheus.CounterVec
	downloads   *prometheus.CounterVec
	uploads     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interact_attempts_total",
			Help:      "Element interaction attempts by action kind and outcome.",
		}, []string{"action", "outcome"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_attempts_total",
			Help:      "Download capture attempts by outcome.",
		}, []string{"outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "File uploads to the internal API by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of export and report jobs.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"job", "outcome"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}

	r.registry.MustRegister(r.attempts, r.downloads, r.uploads, r.jobDuration, r.lastSuccess)

	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

func (r *Recorder) Attempt(action, outcome string) {
	if r == nil {
		return
	}

	r.attempts.WithLabelValues(action, outcome).Inc()
}

func (r *Recorder) Download(outcome string) {
	if r == nil {
		return
	}

	r.downloads.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Upload(endpoint, outcome string) {
	if r == nil {
		return
	}

	r.uploads.WithLabelValues(endpoint, outcome).Inc()
}

func (r *Recorder) Job(job string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}

	r.jobDuration.WithLabelValues(job, outcome).Observe(elapsed.Seconds())

	if err == nil {
		r.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

// WriteTextfile dumps every collected series to path in the text exposition
// format. The file is written atomically by the prometheus client.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}

	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}
