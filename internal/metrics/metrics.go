// Package metrics exposes upload counters through a dedicated Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "logroller"

// Upload results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
	ResultDropped = "dropped"
)

// Uploads holds the collectors updated by the upload scheduler.
type Uploads struct {
	registry *prometheus.Registry

	Submitted  prometheus.Counter
	Results    *prometheus.CounterVec
	Duration   prometheus.Histogram
	Bytes      prometheus.Counter
	QueueDepth prometheus.Gauge
}

// NewUploads creates the upload collectors and registers them on a new registry.
func NewUploads() *Uploads {
	u := &Uploads{
		registry: prometheus.NewRegistry(),
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_submitted_total",
			Help:      "Upload tasks accepted by the worker queue.",
		}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Rolled files by upload result.",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Time spent uploading one file.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes sent to the object store.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Upload tasks waiting or running.",
		}),
	}

	u.registry.MustRegister(u.Submitted, u.Results, u.Duration, u.Bytes, u.QueueDepth)

	// Pre-create result series so they are exported as zero.
	for _, result := range []string{ResultSuccess, ResultFailure, ResultSkipped, ResultDropped} {
		u.Results.WithLabelValues(result)
	}

	return u
}

// Registry returns the registry holding the upload collectors.
func (u *Uploads) Registry() *prometheus.Registry {
	return u.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (u *Uploads) Handler() http.Handler {
	return promhttp.HandlerFor(u.registry, promhttp.HandlerOpts{Registry: u.registry})
}
