package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smallest-inc/smallest-self-host/internal/audio"
	"github.com/smallest-inc/smallest-self-host/internal/config"
	"github.com/smallest-inc/smallest-self-host/internal/metrics"
	"github.com/smallest-inc/smallest-self-host/internal/report"
	"github.com/smallest-inc/smallest-self-host/internal/synthesis"
	"github.com/smallest-inc/smallest-self-host/internal/transcription"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2

	envFile = ".env"
)

const usageText = `Usage:
  probe [-config path] [-metrics-file path] asr [-url base] [-language l] [-model m] <audio_file> [base_url] [language] [model]
  probe [-config path] [-metrics-file path] tts [-url u] [-voice v] [-text t] [-consistency c]
        [-speed s] [-language l] [-rate r] [-channels c] [-width w] [-out output.wav]
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// probe carries what every subcommand needs
type probe struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	stdout  io.Writer
	stderr  io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usageText) }
	configPath := fs.String("config", "", "Path to configuration file")
	metricsFile := fs.String("metrics-file", "", "Write probe metrics in Prometheus text format to this file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	if err := config.LoadEnvFile(envFile); err != nil {
		fmt.Fprintf(stderr, "Failed to load %s: %v\n", envFile, err)
		return exitFailure
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitFailure
	}

	registry := prometheus.NewRegistry()
	p := &probe{
		cfg:     cfg,
		logger:  initLogger(cfg.Logging, stdout, stderr),
		metrics: metrics.NewMetrics(registry),
		stdout:  stdout,
		stderr:  stderr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch cmd := fs.Arg(0); cmd {
	case "asr":
		code = p.runASR(ctx, fs.Args()[1:])
	case "tts":
		code = p.runTTS(ctx, fs.Args()[1:])
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return exitUsage
	}

	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, registry); err != nil {
			p.logger.Error("Failed to write metrics file",
				slog.String("path", *metricsFile),
				slog.String("error", err.Error()),
			)
			if code == exitOK {
				code = exitFailure
			}
		}
	}

	return code
}

// runASR uploads one audio file to the speech-to-text endpoint and prints the outcome
func (p *probe) runASR(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("asr", flag.ContinueOnError)
	fs.SetOutput(p.stderr)
	fs.Usage = func() { fmt.Fprint(p.stderr, usageText) }
	baseURL := fs.String("url", p.cfg.ASR.BaseURL, "API base URL")
	language := fs.String("language", p.cfg.ASR.Language, "Language code sent with the upload")
	model := fs.String("model", p.cfg.ASR.Model, "Model name sent with the upload")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	// Positional arguments follow the order audio_file, base_url, language, model.
	positional := fs.Args()
	if len(positional) == 0 || len(positional) > 4 {
		fs.Usage()
		return exitUsage
	}
	request := transcription.Request{
		AudioPath: positional[0],
		Language:  *language,
		Model:     *model,
	}
	if len(positional) > 1 {
		*baseURL = positional[1]
	}
	if len(positional) > 2 {
		request.Language = positional[2]
	}
	if len(positional) > 3 {
		request.Model = positional[3]
	}

	client, err := transcription.NewClient(transcription.Config{
		BaseURL: *baseURL,
		Timeout: p.cfg.ASR.GetTimeoutDuration(),
	}, p.metrics)
	if err != nil {
		fmt.Fprintf(p.stderr, "Error: %v\n", err)
		return exitUsage
	}

	info, err := audio.InspectFile(request.AudioPath)
	if err != nil {
		p.logger.Warn("Could not read audio format",
			slog.String("path", request.AudioPath),
			slog.String("error", err.Error()),
		)
	}

	report.PrintASRRequest(p.stdout, client.URL(), request, info)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ASR.GetTimeoutDuration())
	defer cancel()

	resp, err := client.Transcribe(ctx, request)
	if resp != nil {
		report.PrintTranscription(p.stdout, resp)
		p.logger.Debug("Transcription probe finished",
			slog.String("request_id", resp.RequestID),
			slog.Int("status", resp.StatusCode),
			slog.Duration("elapsed", resp.Elapsed),
		)
	}
	if err != nil {
		var statusErr *transcription.StatusError
		if !errors.As(err, &statusErr) {
			fmt.Fprintf(p.stderr, "Error: %v\n", err)
		}
		return exitFailure
	}

	return exitOK
}

// runTTS requests speech, wraps the PCM in a WAV header and saves it
func (p *probe) runTTS(ctx context.Context, args []string) int {
	tts := p.cfg.TTS

	fs := flag.NewFlagSet("tts", flag.ContinueOnError)
	fs.SetOutput(p.stderr)
	fs.Usage = func() { fmt.Fprint(p.stderr, usageText) }
	fs.StringVar(&tts.URL, "url", tts.URL, "Speech endpoint URL")
	fs.StringVar(&tts.VoiceID, "voice", tts.VoiceID, "Voice ID")
	fs.StringVar(&tts.Text, "text", tts.Text, "Text to synthesize")
	fs.Float64Var(&tts.Consistency, "consistency", tts.Consistency, "Voice consistency")
	fs.Float64Var(&tts.Speed, "speed", tts.Speed, "Speaking speed, 0 for the server default")
	fs.StringVar(&tts.Language, "language", tts.Language, "Language code, empty for the server default")
	fs.IntVar(&tts.Format.SampleRate, "rate", tts.Format.SampleRate, "Sample rate of the returned PCM in Hz")
	fs.IntVar(&tts.Format.Channels, "channels", tts.Format.Channels, "Channel count of the returned PCM")
	fs.IntVar(&tts.Format.SampleWidth, "width", tts.Format.SampleWidth, "Bytes per sample of the returned PCM")
	fs.StringVar(&tts.Output, "out", tts.Output, "Output WAV file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return exitUsage
	}

	// Reject a bad header format before spending a request on it.
	if err := tts.Format.Validate(); err != nil {
		fmt.Fprintf(p.stderr, "Error: %v\n", err)
		fs.Usage()
		return exitUsage
	}
	if tts.Speed < 0 {
		fmt.Fprintf(p.stderr, "Error: speed cannot be negative, got %g\n", tts.Speed)
		fs.Usage()
		return exitUsage
	}

	// The rate is only requested when it was chosen, so the default body stays
	// {voice_id, text, consistency}.
	requestRate := tts.Format.SampleRate != config.Default().TTS.Format.SampleRate
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "rate" {
			requestRate = true
		}
	})

	client := synthesis.NewClient(tts.URL, tts.GetTimeoutDuration(), p.metrics)

	p.logger.Info("Sending speech request",
		slog.String("url", client.URL()),
		slog.String("voice_id", tts.VoiceID),
		slog.Int("text_length", len(tts.Text)),
	)

	ctx, cancel := context.WithTimeout(ctx, tts.GetTimeoutDuration())
	defer cancel()

	request := synthesis.Request{
		VoiceID:     tts.VoiceID,
		Text:        tts.Text,
		Consistency: tts.Consistency,
		Speed:       tts.Speed,
		Language:    tts.Language,
	}
	if requestRate {
		request.SampleRate = tts.Format.SampleRate
	}

	result, err := client.Synthesize(ctx, request)
	if err != nil {
		var statusErr *synthesis.StatusError
		if errors.As(err, &statusErr) {
			report.PrintSynthesisFailure(p.stdout, statusErr)
		} else {
			fmt.Fprintf(p.stderr, "Error: %v\n", err)
		}
		return exitFailure
	}

	// A server that announces its encoding must agree with the header about to be written.
	if result.Format != nil && *result.Format != tts.Format {
		p.metrics.RecordProbeError(metrics.KindTTS, metrics.ErrorEncode)
		fmt.Fprintf(p.stderr, "Error: server returned %d Hz, %d channel(s), %d-byte samples but the WAV header would say %d Hz, %d channel(s), %d-byte samples\n",
			result.Format.SampleRate, result.Format.Channels, result.Format.SampleWidth,
			tts.Format.SampleRate, tts.Format.Channels, tts.Format.SampleWidth)
		return exitFailure
	}

	written, err := audio.WriteWAVFile(tts.Output, result.Audio, tts.Format)
	if err != nil {
		p.metrics.RecordProbeError(metrics.KindTTS, metrics.ErrorEncode)
		fmt.Fprintf(p.stderr, "Error: %v\n", err)
		return exitFailure
	}
	p.metrics.RecordWAVWritten(written)

	var info *audio.WAVInfo
	if data, err := os.ReadFile(tts.Output); err == nil {
		info, err = audio.GetWAVInfo(data)
		if err != nil {
			p.logger.Warn("Written file failed validation",
				slog.String("path", tts.Output),
				slog.String("error", err.Error()),
			)
		}
	}

	report.PrintSynthesis(p.stdout, result, tts.Output, info)

	p.logger.Debug("Speech probe finished",
		slog.String("request_id", result.RequestID),
		slog.Int("wav_bytes", written),
		slog.Duration("elapsed", result.Elapsed),
	)

	return exitOK
}

// initLogger creates the structured logger from configuration. Probe reports own stdout,
// so diagnostics default to stderr.
func initLogger(cfg config.LoggingConfig, stdout, stderr io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout":
		output = stdout
	case "stderr", "":
		output = stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
