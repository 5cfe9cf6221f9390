// Package metrics exposes Prometheus instrumentation for check-in sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the check-in service.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Audio metrics
	AudioBytesTotal   *prometheus.CounterVec
	PlaybackQueueLoad prometheus.Gauge
	FramesDropped     prometheus.Counter

	// Conversation metrics
	BargeInsTotal   *prometheus.CounterVec
	SilencesTotal   prometheus.Counter
	MismatchesTotal *prometheus.CounterVec
	WidgetsTotal    *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered on a fresh
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "checkin"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live check-in sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of check-in sessions by final status",
		},
		[]string{"status"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Check-in session duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total PCM bytes moved through sessions",
		},
		[]string{"direction"},
	)

	playbackQueueLoad := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_queue_samples",
			Help:      "Playback queue depth at the last pressure report",
		},
	)

	framesDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_frames_dropped_total",
			Help:      "Playback frames evicted by the queue hard limit",
		},
	)

	bargeInsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Assistant interruptions by trigger",
		},
		[]string{"trigger"},
	)

	silencesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "silences_total",
			Help:      "Turns where the assistant chose to stay quiet",
		},
	)

	mismatchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mismatches_total",
			Help:      "Acoustic-semantic mismatch detections by signal pair",
		},
		[]string{"semantic", "acoustic"},
	)

	widgetsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "widgets_total",
			Help:      "Widget tool calls by kind and final status",
		},
		[]string{"kind", "status"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Terminal session errors by code",
		},
		[]string{"code"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		audioBytesTotal,
		playbackQueueLoad,
		framesDropped,
		bargeInsTotal,
		silencesTotal,
		mismatchesTotal,
		widgetsTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:          registry,
		SessionsActive:    sessionsActive,
		SessionsTotal:     sessionsTotal,
		SessionDuration:   sessionDuration,
		AudioBytesTotal:   audioBytesTotal,
		PlaybackQueueLoad: playbackQueueLoad,
		FramesDropped:     framesDropped,
		BargeInsTotal:     bargeInsTotal,
		SilencesTotal:     silencesTotal,
		MismatchesTotal:   mismatchesTotal,
		WidgetsTotal:      widgetsTotal,
		ErrorsTotal:       errorsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionStarted records a session entering service.
func (m *Metrics) SessionStarted() {
	m.SessionsActive.Inc()
}

// SessionEnded records a session leaving service.
func (m *Metrics) SessionEnded(status string, duration time.Duration) {
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordAudio counts PCM bytes moved in the given direction, "capture" or
// "playback".
func (m *Metrics) RecordAudio(direction string, bytes int) {
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordBargeIn counts an assistant interruption. Trigger is "voice" or
// "manual".
func (m *Metrics) RecordBargeIn(trigger string) {
	m.BargeInsTotal.WithLabelValues(trigger).Inc()
}

// RecordMismatch counts a mismatch detection by its signal pair.
func (m *Metrics) RecordMismatch(semantic, acoustic string) {
	m.MismatchesTotal.WithLabelValues(semantic, acoustic).Inc()
}

// RecordWidget counts a widget reaching a final status.
func (m *Metrics) RecordWidget(kind, status string) {
	m.WidgetsTotal.WithLabelValues(kind, status).Inc()
}

// RecordError counts a terminal session error.
func (m *Metrics) RecordError(code string) {
	m.ErrorsTotal.WithLabelValues(code).Inc()
}
