package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smallest-inc/smallest-self-host/internal/audio"
)

// Config represents the complete probe and mock server configuration
type Config struct {
	ASR     ASRConfig     `yaml:"asr"`
	TTS     TTSConfig     `yaml:"tts"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// ASRConfig contains the speech-to-text probe parameters
type ASRConfig struct {
	BaseURL  string `yaml:"base_url"`
	Language string `yaml:"language"`
	Model    string `yaml:"model"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// TTSConfig contains the text-to-speech probe parameters
type TTSConfig struct {
	URL         string          `yaml:"url"`
	VoiceID     string          `yaml:"voice_id"`
	Text        string          `yaml:"text"`
	Consistency float64         `yaml:"consistency"`
	Speed       float64         `yaml:"speed"`    // 0 leaves the server default
	Language    string          `yaml:"language"` // empty leaves the server default
	Output      string          `yaml:"output"`
	Timeout     int             `yaml:"timeout"` // seconds
	Format      audio.PCMFormat `yaml:"format"`
}

// ServerConfig contains the mock speech server configuration
type ServerConfig struct {
	Address         string `yaml:"address"`
	Port            int    `yaml:"port"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
	TTSSampleRate   int    `yaml:"tts_sample_rate"`
	Transcription   string `yaml:"transcription"`
	ProcessingDelay int    `yaml:"processing_delay_ms"`

	// Voice activity analysis of uploaded WAV audio
	VADThreshold float64 `yaml:"vad_threshold"`
	VADWindow    int     `yaml:"vad_window_ms"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration the probes use when no file or environment is given.
func Default() *Config {
	return &Config{
		ASR: ASRConfig{
			BaseURL: "http://localhost:7100/api/v1",
			Timeout: 60,
		},
		TTS: TTSConfig{
			URL:         "http://localhost:4444/api/v1/lightning-large/get_speech",
			VoiceID:     "chirag",
			Text:        "hey there",
			Consistency: 1,
			Output:      "output.wav",
			Timeout:     60,
			Format: audio.PCMFormat{
				Channels:    1,
				SampleWidth: 2,
				SampleRate:  24000,
			},
		},
		Server: ServerConfig{
			Address:         "127.0.0.1",
			Port:            7100,
			ShutdownTimeout: 10,
			TTSSampleRate:   24000,
			Transcription:   "hey there, this is a mock transcription",
			VADThreshold:    0.5,
			VADWindow:       32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path and the
// environment, in that order of precedence, and validates the result.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.ASR.Validate(); err != nil {
		return fmt.Errorf("asr config: %w", err)
	}

	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates ASR probe configuration
func (a *ASRConfig) Validate() error {
	if err := validateURL(a.BaseURL); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	return nil
}

// Validate validates TTS probe configuration
func (t *TTSConfig) Validate() error {
	if err := validateURL(t.URL); err != nil {
		return fmt.Errorf("url: %w", err)
	}

	if t.VoiceID == "" {
		return fmt.Errorf("voice_id cannot be empty")
	}

	if t.Text == "" {
		return fmt.Errorf("text cannot be empty")
	}

	if t.Consistency < 0 {
		return fmt.Errorf("consistency cannot be negative, got %f", t.Consistency)
	}

	if t.Speed < 0 {
		return fmt.Errorf("speed cannot be negative, got %f", t.Speed)
	}

	if t.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if err := t.Format.Validate(); err != nil {
		return fmt.Errorf("format: %w", err)
	}

	return nil
}

// Validate validates mock server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	if s.TTSSampleRate < 1 {
		return fmt.Errorf("tts_sample_rate must be positive, got %d", s.TTSSampleRate)
	}

	if s.ProcessingDelay < 0 {
		return fmt.Errorf("processing_delay_ms cannot be negative, got %d", s.ProcessingDelay)
	}

	if s.VADThreshold < 0 || s.VADThreshold > 1 {
		return fmt.Errorf("vad_threshold must be between 0 and 1, got %f", s.VADThreshold)
	}

	if s.VADWindow < 1 {
		return fmt.Errorf("vad_window_ms must be at least 1, got %d", s.VADWindow)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout/stderr is treated as a file path.
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got '%s'", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	return nil
}

// GetTimeoutDuration returns the ASR request timeout as a time.Duration
func (a *ASRConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetTimeoutDuration returns the TTS request timeout as a time.Duration
func (t *TTSConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetShutdownTimeoutDuration returns the graceful shutdown deadline as a time.Duration
func (s *ServerConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetProcessingDelayDuration returns the simulated inference delay as a time.Duration
func (s *ServerConfig) GetProcessingDelayDuration() time.Duration {
	return time.Duration(s.ProcessingDelay) * time.Millisecond
}

// GetVADWindowDuration returns the voice activity window as a time.Duration
func (s *ServerConfig) GetVADWindowDuration() time.Duration {
	return time.Duration(s.VADWindow) * time.Millisecond
}

// ListenAddress returns the host:port the mock server binds to
func (s *ServerConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}
