package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	FramesProcessed   prometheus.Counter
	CutsDetected      prometheus.Counter
	FramesRejected    prometheus.Counter
	DetectionDuration prometheus.Histogram
	Jobs              *prometheus.CounterVec
	Uploads           *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scenecut_frames_processed_total",
			Help: "Total frames scored by the scene detector",
		}),
		CutsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scenecut_cuts_detected_total",
			Help: "Total scene cuts detected",
		}),
		FramesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scenecut_frames_rejected_total",
			Help: "Frames that could not be decoded or scored",
		}),
		DetectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scenecut_detection_duration_seconds",
			Help:    "Wall time of a full scene detection run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scenecut_jobs_total",
			Help: "Processing jobs by type and final status",
		}, []string{"type", "status"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scenecut_uploads_total",
			Help: "Video uploads by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.FramesProcessed,
		m.CutsDetected,
		m.FramesRejected,
		m.DetectionDuration,
		m.Jobs,
		m.Uploads,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler returns the HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveFrame() {
	if m != nil {
		m.FramesProcessed.Inc()
	}
}

func (m *Metrics) ObserveCut() {
	if m != nil {
		m.CutsDetected.Inc()
	}
}

func (m *Metrics) ObserveRejectedFrame() {
	if m != nil {
		m.FramesRejected.Inc()
	}
}

func (m *Metrics) ObserveDetection(d time.Duration) {
	if m != nil {
		m.DetectionDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveJob(jobType, status string) {
	if m != nil {
		m.Jobs.WithLabelValues(jobType, status).Inc()
	}
}

func (m *Metrics) ObserveUpload(outcome string) {
	if m != nil {
		m.Uploads.WithLabelValues(outcome).Inc()
	}
}
