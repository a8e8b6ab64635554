// Package metrics exposes run counters in Prometheus format. The pipeline
// is a batch job, so the counters are exported to a node-exporter
// textfile rather than served.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/report"
)

const namespace = "kwcorpus"

// Recorder collects run metrics. A nil *Recorder records nothing.
type Recorder struct {
	reg         *prometheus.Registry
	runs        *prometheus.CounterVec
	samples     *prometheus.CounterVec
	accepted    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	warnings    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	storeBytes  prometheus.Gauge
}

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples seen by status.",
		}, []string{"status"}),
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terms_accepted_total",
			Help:      "Terms accepted per category and tier.",
		}, []string{"category", "tier"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terms_rejected_total",
			Help:      "Candidate terms rejected by reason.",
		}, []string{"reason"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Recovered problems by kind.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"mode"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"mode"}),
		storeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_bytes",
			Help:      "Size of the corpus store after the last run.",
		}),
	}
	r.reg.MustRegister(r.runs, r.samples, r.accepted, r.rejected, r.warnings, r.duration, r.lastSuccess, r.storeBytes)
	return r
}

// Registry returns the registry holding the metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// ObserveReport records a finished run.
func (r *Recorder) ObserveReport(rep *report.Report, took time.Duration) {
	if r == nil || rep == nil {
		return
	}
	mode := string(rep.Mode)
	r.runs.WithLabelValues(mode, "ok").Inc()
	r.duration.WithLabelValues(mode).Observe(took.Seconds())
	r.lastSuccess.WithLabelValues(mode).Set(float64(rep.GeneratedAt.Unix()))

	r.samples.WithLabelValues("analyzed").Add(float64(rep.Samples.Analyzed))
	r.samples.WithLabelValues("skipped").Add(float64(rep.Samples.Skipped))
	r.samples.WithLabelValues("failed").Add(float64(rep.Samples.Failed))

	for _, c := range rep.Categories {
		r.accepted.WithLabelValues(c.Category, "primary").Add(float64(c.Counts.Primary))
		r.accepted.WithLabelValues(c.Category, "secondary").Add(float64(c.Counts.Secondary))
		r.accepted.WithLabelValues(c.Category, "phrase").Add(float64(c.Counts.Phrases))
		for reason, n := range c.Rejected {
			r.rejected.WithLabelValues(string(reason)).Add(float64(n))
		}
	}
	for _, w := range rep.Warnings {
		r.warnings.WithLabelValues(w.Kind).Inc()
	}
}

// RunFailed records a run that stopped with err.
func (r *Recorder) RunFailed(mode report.Mode, took time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "error"
	switch {
	case errors.Is(err, internalerr.ErrLocked):
		outcome = "locked"
	case errors.Is(err, internalerr.ErrStoreChanged):
		outcome = "store_changed"
	case errors.Is(err, internalerr.ErrBackupFailed):
		outcome = "backup_failed"
	case errors.Is(err, internalerr.ErrStoreUnavailable):
		outcome = "store_unavailable"
	}
	r.runs.WithLabelValues(string(mode), outcome).Inc()
	r.duration.WithLabelValues(string(mode)).Observe(took.Seconds())
}

// SetStoreSize records the store size in bytes.
func (r *Recorder) SetStoreSize(n int) {
	if r == nil {
		return
	}
	r.storeBytes.Set(float64(n))
}

// WriteTextfile writes every metric to path in the text exposition
// format, replacing the file atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
