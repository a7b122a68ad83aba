package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the audio mirror service
type Metrics struct {
	// UDP datagram metrics
	DatagramsReceived prometheus.Counter
	PayloadDatagrams  prometheus.Counter
	ControlDatagrams  prometheus.Counter
	ReceiveErrors     prometheus.Counter

	// Capture stream metrics
	ActiveStreams    prometheus.Gauge
	StreamsCreated   prometheus.Counter
	StreamsFinalized prometheus.Counter
	StreamsExpired   prometheus.Counter
	StreamDuration   prometheus.Histogram

	// Recording metrics
	RecordingsCompleted prometheus.Counter
	RecordingsAborted   prometheus.Counter
	RecordingsEmpty     prometheus.Counter
	RecordingSize       prometheus.Histogram

	// Upload metrics
	UploadRequests  prometheus.Counter
	UploadSuccesses prometheus.Counter
	UploadFailures  prometheus.Counter
	UploadRejected  prometheus.Counter
	UploadRetries   prometheus.Counter
	UploadDuration  prometheus.Histogram
	UploadLoadTime  prometheus.Histogram
	UploadParseTime prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// UDP datagram metrics
		DatagramsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_datagrams_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		PayloadDatagrams: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_payload_datagrams_total",
			Help: "Total number of datagrams classified as PCM payload",
		}),
		ControlDatagrams: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_control_datagrams_total",
			Help: "Total number of datagrams classified as control tokens",
		}),
		ReceiveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_receive_errors_total",
			Help: "Total number of UDP receive errors",
		}),

		// Capture stream metrics
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mirror_active_streams",
			Help: "Current number of active capture streams",
		}),
		StreamsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_streams_created_total",
			Help: "Total number of capture streams created",
		}),
		StreamsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_streams_finalized_total",
			Help: "Total number of capture streams finalized",
		}),
		StreamsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_streams_expired_total",
			Help: "Total number of capture streams expired by idle timeout",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirror_stream_duration_seconds",
			Help:    "Duration of capture streams in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),

		// Recording metrics
		RecordingsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_recordings_completed_total",
			Help: "Total number of recordings finalized to disk",
		}),
		RecordingsAborted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_recordings_aborted_total",
			Help: "Total number of recordings aborted and removed",
		}),
		RecordingsEmpty: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_recordings_empty_total",
			Help: "Total number of recordings finalized below the content threshold",
		}),
		RecordingSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirror_recording_size_bytes",
			Help:    "Size of finalized recordings in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10), // 1KB to ~1MB
		}),

		// Upload metrics
		UploadRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_upload_requests_total",
			Help: "Total number of transcription uploads attempted",
		}),
		UploadSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_upload_successes_total",
			Help: "Total number of successful transcription uploads",
		}),
		UploadFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_upload_failures_total",
			Help: "Total number of failed transcription uploads",
		}),
		UploadRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_upload_rejected_total",
			Help: "Total number of uploads rejected by size gates before sending",
		}),
		UploadRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_upload_retries_total",
			Help: "Total number of transcription upload retries",
		}),
		UploadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirror_upload_duration_seconds",
			Help:    "End to end duration of transcription uploads",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		UploadLoadTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirror_upload_load_duration_seconds",
			Help:    "Time spent loading recordings from disk before upload",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),
		UploadParseTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirror_upload_parse_duration_seconds",
			Help:    "Time spent parsing transcription responses",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10), // 0.1ms to ~100ms
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mirror_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordDatagram records one received datagram and its classification
func (m *Metrics) RecordDatagram(isControl bool) {
	m.DatagramsReceived.Inc()
	if isControl {
		m.ControlDatagrams.Inc()
	} else {
		m.PayloadDatagrams.Inc()
	}
}

// RecordReceiveError increments the receive errors counter
func (m *Metrics) RecordReceiveError() {
	m.ReceiveErrors.Inc()
}

// SetActiveStreams sets the current number of active streams
func (m *Metrics) SetActiveStreams(count int) {
	m.ActiveStreams.Set(float64(count))
}

// RecordStreamCreated increments the streams created counter
func (m *Metrics) RecordStreamCreated() {
	m.StreamsCreated.Inc()
}

// RecordStreamFinalized increments the finalized counter and records duration
func (m *Metrics) RecordStreamFinalized(durationSeconds float64) {
	m.StreamsFinalized.Inc()
	m.StreamDuration.Observe(durationSeconds)
}

// RecordStreamExpired increments the idle expiry counter
func (m *Metrics) RecordStreamExpired() {
	m.StreamsExpired.Inc()
}

// RecordRecordingCompleted records a finalized recording and its size
func (m *Metrics) RecordRecordingCompleted(sizeBytes int64) {
	m.RecordingsCompleted.Inc()
	m.RecordingSize.Observe(float64(sizeBytes))
}

// RecordRecordingAborted increments the aborted recordings counter
func (m *Metrics) RecordRecordingAborted() {
	m.RecordingsAborted.Inc()
}

// RecordRecordingEmpty increments the empty recordings counter
func (m *Metrics) RecordRecordingEmpty() {
	m.RecordingsEmpty.Inc()
}

// RecordUploadRequest increments the upload requests counter
func (m *Metrics) RecordUploadRequest() {
	m.UploadRequests.Inc()
}

// RecordUploadSuccess records a successful upload with its phase timings
func (m *Metrics) RecordUploadSuccess(totalSeconds, loadSeconds, parseSeconds float64) {
	m.UploadSuccesses.Inc()
	m.UploadDuration.Observe(totalSeconds)
	m.UploadLoadTime.Observe(loadSeconds)
	m.UploadParseTime.Observe(parseSeconds)
}

// RecordUploadFailure records a failed upload
func (m *Metrics) RecordUploadFailure(totalSeconds float64) {
	m.UploadFailures.Inc()
	m.UploadDuration.Observe(totalSeconds)
}

// RecordUploadRejected increments the size-gate rejection counter
func (m *Metrics) RecordUploadRejected() {
	m.UploadRejected.Inc()
}

// RecordUploadRetry increments the retry counter
func (m *Metrics) RecordUploadRetry() {
	m.UploadRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
