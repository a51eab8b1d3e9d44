package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smallest-inc/smallest-self-host/internal/audio"
	"github.com/smallest-inc/smallest-self-host/internal/config"
	"github.com/smallest-inc/smallest-self-host/internal/metrics"
	"github.com/smallest-inc/smallest-self-host/internal/synthesis"
	"github.com/smallest-inc/smallest-self-host/internal/transcription"
	"github.com/smallest-inc/smallest-self-host/internal/vad"
)

const (
	serviceName    = "mock-speech-server"
	serviceVersion = "1.0.0"

	maxUploadSize = 32 << 20
	maxSpeechBody = 1 << 20

	// Limits on get_speech requests
	maxSpeechSampleRate = 192000
	maxSpeechText       = 5000 // runes
	maxSpeechSpeed      = 4.0
)

// HTTPServer answers the ASR and TTS endpoints with canned results
type HTTPServer struct {
	server   *http.Server
	listener net.Listener
	handler  http.Handler
	logger   *slog.Logger
	config   config.ServerConfig
	metrics  *metrics.Metrics
	voice    *vad.Detector

	startTime time.Time
}

// NewHTTPServer creates a new mock speech server. gatherer backs the /metrics endpoint.
func NewHTTPServer(cfg config.ServerConfig, logger *slog.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		metrics:   m,
		voice:     vad.NewDetector(cfg.VADThreshold, cfg.GetVADWindowDuration()),
		startTime: time.Now(),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	h.setupRoutes(router, gatherer)
	h.handler = router

	h.server = &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP routes
func (h *HTTPServer) setupRoutes(router chi.Router, gatherer prometheus.Gatherer) {
	router.Get("/health", h.withMetrics("/health", h.handleHealth))
	router.Post("/api/v1/speech-to-text", h.withMetrics("/api/v1/speech-to-text", h.handleSpeechToText))
	router.Post("/api/v1/{model}/get_speech", h.withMetrics("/api/v1/{model}/get_speech", h.handleGetSpeech))
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Get("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the routed handler, for use without a listener
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}

		h.logger.Debug("Request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.statusCode),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Float64("duration_seconds", duration),
		)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the listen address and serves in the background. A bind failure such as
// a port already in use is returned to the caller.
func (h *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}
	h.listener = listener

	h.logger.Info("Starting mock speech server",
		slog.String("address", listener.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded, or the configured one before
func (h *HTTPServer) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.server.Addr
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping mock speech server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}

// simulateProcessing waits for the configured delay. It returns false if the client went away.
func (h *HTTPServer) simulateProcessing(ctx context.Context) bool {
	delay := h.config.GetProcessingDelayDuration()
	if delay <= 0 {
		return true
	}

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// handleSpeechToText implements POST /api/v1/speech-to-text
func (h *HTTPServer) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "error parsing multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio file in field 'file'")
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error reading audio file")
		return
	}

	language := r.FormValue("language")
	model := r.FormValue("model")

	h.logger.Info("Transcription request received",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("filename", header.Filename),
		slog.Int("size_bytes", len(audioData)),
		slog.String("content_type", header.Header.Get("Content-Type")),
		slog.String("language", language),
		slog.String("model", model),
	)

	if !h.simulateProcessing(r.Context()) {
		return
	}

	metadata := map[string]any{
		"filename":   header.Filename,
		"size_bytes": len(audioData),
		"request_id": middleware.GetReqID(r.Context()),
	}
	if language != "" {
		metadata["language"] = language
	}
	if model != "" {
		metadata["model"] = model
	}

	// Only canonical WAV uploads get a real duration; anything else is timed per word.
	duration := 0.0
	if info, err := audio.GetWAVInfo(audioData); err == nil {
		duration = info.Duration
		metadata["duration_seconds"] = info.Duration
		metadata["sample_rate"] = info.SampleRate

		if info.BitsPerSample == 16 {
			samples := audio.PCMToInt16(audioData[audio.HeaderSize:])
			activity := h.voice.Detect(samples, int(info.SampleRate)*int(info.Channels))
			metadata["voice_ratio"] = activity.VoiceRatio
			metadata["voice_segments"] = activity.Segments
		}
	}

	result := transcription.Result{
		Status:         "success",
		Transcription:  h.config.Transcription,
		WordTimestamps: wordTimestamps(h.config.Transcription, duration),
		Age:            "adult",
		Gender:         "female",
		Emotions: map[string]float64{
			"happiness": 0.62,
			"neutral":   0.31,
			"sadness":   0.04,
			"anger":     0.02,
			"fear":      0.01,
		},
		Metadata: metadata,
	}

	h.metrics.RecordMockTranscription()
	writeJSON(w, http.StatusOK, result)
}

// handleGetSpeech implements POST /api/v1/{model}/get_speech
func (h *HTTPServer) handleGetSpeech(w http.ResponseWriter, r *http.Request) {
	var req synthesis.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSpeechBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text cannot be empty")
		return
	}

	if n := utf8.RuneCountInString(req.Text); n > maxSpeechText {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("text too long: %d characters, limit %d", n, maxSpeechText))
		return
	}

	sampleRate := h.config.TTSSampleRate
	if req.SampleRate != 0 {
		format := audio.PCMFormat{Channels: 1, SampleWidth: 2, SampleRate: req.SampleRate}
		if err := format.Validate(); err != nil || req.SampleRate > maxSpeechSampleRate {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("sample_rate must be between 1 and %d, got %d", maxSpeechSampleRate, req.SampleRate))
			return
		}
		sampleRate = req.SampleRate
	}

	if req.Speed < 0 || req.Speed > maxSpeechSpeed {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("speed must be between 0 and %g, got %g", maxSpeechSpeed, req.Speed))
		return
	}

	h.logger.Info("Speech request received",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("model", chi.URLParam(r, "model")),
		slog.String("voice_id", req.VoiceID),
		slog.Int("text_length", len(req.Text)),
		slog.Int("sample_rate", sampleRate),
		slog.Float64("speed", req.Speed),
		slog.String("language", req.Language),
	)

	if !h.simulateProcessing(r.Context()) {
		return
	}

	pcm := audio.Int16ToPCM(toneForText(req.Text, sampleRate, req.Speed))

	h.metrics.RecordMockSynthesis(len(pcm))

	w.Header().Set("Content-Type", "audio/pcm")
	w.Header().Set("X-Sample-Rate", fmt.Sprintf("%d", sampleRate))
	w.Header().Set("X-Channels", "1")
	w.Header().Set("X-Sample-Width", "2")
	w.WriteHeader(http.StatusOK)
	w.Write(pcm)
}

// handleHealth implements GET /health
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]string{
			"name":    serviceName,
			"version": serviceVersion,
		},
	})
}

// handleRoot implements GET / with a short endpoint listing
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]string{
			"GET /":                           "Endpoint listing",
			"GET /health":                     "Service health check",
			"POST /api/v1/speech-to-text":     "Multipart upload (file, language, model) -> transcription JSON",
			"POST /api/v1/{model}/get_speech": "JSON {voice_id, text, consistency} -> raw 16-bit mono PCM",
			"GET /metrics":                    "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
