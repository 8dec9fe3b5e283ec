package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for the capture loop. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Device reads
	FramesRead      prometheus.Counter
	Overflows       prometheus.Counter
	FatalReadErrors prometheus.Counter

	// Recognition
	Segments             prometheus.Counter
	BackendFailures      *prometheus.CounterVec
	WindowTranscriptions prometheus.Counter
	InferenceDuration    *prometheus.HistogramVec

	// Sessions
	Sessions       *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_read_total",
			Help: "Total number of audio frames read and fed to a backend",
		}),
		Overflows: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_input_overflows_total",
			Help: "Total number of device reads that failed with an input overflow and were retried",
		}),
		FatalReadErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_fatal_read_errors_total",
			Help: "Total number of device reads that aborted a session",
		}),
		Segments: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_segments_total",
			Help: "Total number of finalized text segments appended to transcripts",
		}),
		BackendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_backend_failures_total",
			Help: "Total number of per-frame recognition failures",
		}, []string{"kind"}),
		WindowTranscriptions: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_window_transcriptions_total",
			Help: "Total number of windowed transcription passes",
		}),
		InferenceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_inference_duration_seconds",
			Help:    "Time spent in one backend recognition call",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"kind"}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_sessions_total",
			Help: "Total number of recording sessions by outcome",
		}, []string{"outcome"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Number of recording sessions currently capturing",
		}),
	}
}

func (m *Metrics) FrameRead() {
	if m != nil {
		m.FramesRead.Inc()
	}
}

func (m *Metrics) Overflow() {
	if m != nil {
		m.Overflows.Inc()
	}
}

func (m *Metrics) FatalRead() {
	if m != nil {
		m.FatalReadErrors.Inc()
	}
}

func (m *Metrics) Segment() {
	if m != nil {
		m.Segments.Inc()
	}
}

func (m *Metrics) BackendFailure(kind string) {
	if m != nil {
		m.BackendFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) WindowTranscribed() {
	if m != nil {
		m.WindowTranscriptions.Inc()
	}
}

func (m *Metrics) ObserveInference(kind string, d time.Duration) {
	if m != nil {
		m.InferenceDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *Metrics) SessionStarted() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionFinished(outcome string) {
	if m != nil {
		m.ActiveSessions.Dec()
		m.Sessions.WithLabelValues(outcome).Inc()
	}
}
