package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice agent service
type Metrics struct {
	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsFinalized prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Relay metrics
	FramesInbound   prometheus.Counter
	FramesOutbound  prometheus.Counter
	BytesInbound    prometheus.Counter
	BytesOutbound   prometheus.Counter
	FramesPreQueued prometheus.Counter
	FramesDropped   prometheus.Counter

	// Speech endpoint metrics
	SpeechConnects        prometheus.Counter
	SpeechConnectFailures prometheus.Counter
	SpeechIgnoredMessages prometheus.Counter

	// Control-plane metrics
	ControlConnects   prometheus.Counter
	ControlReconnects prometheus.Counter
	ControlEvents     *prometheus.CounterVec

	// Recording metrics
	RecordingUploads      prometheus.Counter
	RecordingUploadErrors prometheus.Counter
	RecordingBlobSize     prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_agent_active_sessions",
			Help: "Current number of active call sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_sessions_created_total",
			Help: "Total number of call sessions created",
		}),
		SessionsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_sessions_finalized_total",
			Help: "Total number of call sessions finalized",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_agent_session_duration_seconds",
			Help:    "Duration of call sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// Relay metrics
		FramesInbound: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_frames_inbound_total",
			Help: "Total audio frames received from the call-control system",
		}),
		FramesOutbound: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_frames_outbound_total",
			Help: "Total audio frames forwarded to the call-control system",
		}),
		BytesInbound: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_bytes_inbound_total",
			Help: "Total audio bytes received from the call-control system",
		}),
		BytesOutbound: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_bytes_outbound_total",
			Help: "Total audio bytes forwarded to the call-control system",
		}),
		FramesPreQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_frames_prequeued_total",
			Help: "Audio frames buffered before the speech connection opened",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_frames_dropped_total",
			Help: "Audio frames dropped from a full pre-connect queue",
		}),

		// Speech endpoint metrics
		SpeechConnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_speech_connects_total",
			Help: "Total successful speech endpoint connections",
		}),
		SpeechConnectFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_speech_connect_failures_total",
			Help: "Total failed speech endpoint connection attempts",
		}),
		SpeechIgnoredMessages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_speech_ignored_messages_total",
			Help: "Malformed or unhandled messages received from the speech endpoint",
		}),

		// Control-plane metrics
		ControlConnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_control_connects_total",
			Help: "Total successful control-plane connections",
		}),
		ControlReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_control_reconnects_total",
			Help: "Total control-plane reconnect attempts after a disconnect",
		}),
		ControlEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_agent_control_events_total",
			Help: "Call-lifecycle events received from the control plane",
		}, []string{"type"}),

		// Recording metrics
		RecordingUploads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_recording_uploads_total",
			Help: "Total successful recording blob uploads",
		}),
		RecordingUploadErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_recording_upload_errors_total",
			Help: "Total failed recording blob uploads",
		}),
		RecordingBlobSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_agent_recording_blob_bytes",
			Help:    "Size of uploaded recording blobs in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_agent_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_agent_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordSessionCreated increments the session counters
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionFinalized records the end of a session
func (m *Metrics) RecordSessionFinalized(durationSeconds float64) {
	m.SessionsFinalized.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordInboundFrame counts one caller-side audio frame
func (m *Metrics) RecordInboundFrame(sizeBytes int) {
	m.FramesInbound.Inc()
	m.BytesInbound.Add(float64(sizeBytes))
}

// RecordOutboundFrame counts one speech-side audio frame
func (m *Metrics) RecordOutboundFrame(sizeBytes int) {
	m.FramesOutbound.Inc()
	m.BytesOutbound.Add(float64(sizeBytes))
}

// RecordControlEvent counts one received call-lifecycle event
func (m *Metrics) RecordControlEvent(eventType string) {
	m.ControlEvents.WithLabelValues(eventType).Inc()
}

// RecordUpload records one recording upload attempt
func (m *Metrics) RecordUpload(sizeBytes int, err error) {
	if err != nil {
		m.RecordingUploadErrors.Inc()
		return
	}
	m.RecordingUploads.Inc()
	m.RecordingBlobSize.Observe(float64(sizeBytes))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
