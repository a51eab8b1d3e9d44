package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probe kinds used as the "kind" label.
const (
	KindASR = "asr"
	KindTTS = "tts"
)

// Error types used as the "error_type" label.
const (
	ErrorTransport = "transport"
	ErrorStatus    = "status"
	ErrorDecode    = "decode"
	ErrorEncode    = "encode"
)

// Metrics contains all Prometheus metrics for the probes and the mock speech server
type Metrics struct {
	// Probe metrics
	ProbeRequests *prometheus.CounterVec
	ProbeDuration *prometheus.HistogramVec
	ProbeErrors   *prometheus.CounterVec
	ProbeBytes    *prometheus.CounterVec

	// WAV encoder metrics
	WAVFilesWritten prometheus.Counter
	WAVBytesWritten prometheus.Counter

	// Mock server metrics
	MockTranscriptions   prometheus.Counter
	MockSynthesizedBytes prometheus.Counter
	HTTPRequests         *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPErrors           *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ProbeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speech_probe_requests_total",
			Help: "Total number of probe requests by kind and HTTP status",
		}, []string{"kind", "status_code"}),
		ProbeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "speech_probe_duration_seconds",
			Help:    "Round-trip time of probe requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"kind"}),
		ProbeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speech_probe_errors_total",
			Help: "Total number of failed probe requests",
		}, []string{"kind", "error_type"}),
		ProbeBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speech_probe_response_bytes_total",
			Help: "Total response body bytes received by probes",
		}, []string{"kind"}),

		WAVFilesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "speech_probe_wav_files_written_total",
			Help: "Total number of WAV files written",
		}),
		WAVBytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "speech_probe_wav_bytes_written_total",
			Help: "Total bytes of WAV files written, headers included",
		}),

		MockTranscriptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "mock_speech_transcriptions_total",
			Help: "Total number of uploads answered by the mock ASR endpoint",
		}),
		MockSynthesizedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "mock_speech_synthesized_bytes_total",
			Help: "Total PCM bytes returned by the mock TTS endpoint",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mock_speech_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mock_speech_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mock_speech_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordProbe records a completed probe round trip
func (m *Metrics) RecordProbe(kind, statusCode string, durationSeconds float64, bodyBytes int) {
	m.ProbeRequests.WithLabelValues(kind, statusCode).Inc()
	m.ProbeDuration.WithLabelValues(kind).Observe(durationSeconds)
	m.ProbeBytes.WithLabelValues(kind).Add(float64(bodyBytes))
}

// RecordProbeError records a failed probe
func (m *Metrics) RecordProbeError(kind, errorType string) {
	m.ProbeErrors.WithLabelValues(kind, errorType).Inc()
}

// RecordWAVWritten records a WAV file persisted to disk
func (m *Metrics) RecordWAVWritten(sizeBytes int) {
	m.WAVFilesWritten.Inc()
	m.WAVBytesWritten.Add(float64(sizeBytes))
}

// RecordMockTranscription increments the mock transcription counter
func (m *Metrics) RecordMockTranscription() {
	m.MockTranscriptions.Inc()
}

// RecordMockSynthesis records PCM bytes returned by the mock TTS endpoint
func (m *Metrics) RecordMockSynthesis(sizeBytes int) {
	m.MockSynthesizedBytes.Add(float64(sizeBytes))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
