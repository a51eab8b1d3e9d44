package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/smallest-inc/smallest-self-host/internal/audio"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := Default()
	if err := config.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got: %v", err)
	}

	if config.TTS.Format != (audio.PCMFormat{Channels: 1, SampleWidth: 2, SampleRate: 24000}) {
		t.Errorf("Unexpected default TTS format: %+v", config.TTS.Format)
	}
	if config.ASR.BaseURL != "http://localhost:7100/api/v1" {
		t.Errorf("Unexpected default ASR base URL: %s", config.ASR.BaseURL)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:     "empty asr base url",
			mutate:   func(c *Config) { c.ASR.BaseURL = "" },
			errorMsg: "base_url: cannot be empty",
		},
		{
			name:     "asr base url with unsupported scheme",
			mutate:   func(c *Config) { c.ASR.BaseURL = "ftp://localhost:7100/api/v1" },
			errorMsg: "scheme must be http or https",
		},
		{
			name:     "asr zero timeout",
			mutate:   func(c *Config) { c.ASR.Timeout = 0 },
			errorMsg: "timeout must be at least 1 second",
		},
		{
			name:     "tts empty voice",
			mutate:   func(c *Config) { c.TTS.VoiceID = "" },
			errorMsg: "voice_id cannot be empty",
		},
		{
			name:     "tts empty text",
			mutate:   func(c *Config) { c.TTS.Text = "" },
			errorMsg: "text cannot be empty",
		},
		{
			name:     "tts negative consistency",
			mutate:   func(c *Config) { c.TTS.Consistency = -0.5 },
			errorMsg: "consistency cannot be negative",
		},
		{
			name:     "tts negative speed",
			mutate:   func(c *Config) { c.TTS.Speed = -1 },
			errorMsg: "speed cannot be negative",
		},
		{
			name:     "tts zero channels",
			mutate:   func(c *Config) { c.TTS.Format.Channels = 0 },
			errorMsg: "tts config: format",
		},
		{
			name:     "server port too high",
			mutate:   func(c *Config) { c.Server.Port = 70000 },
			errorMsg: "port must be between 1 and 65535",
		},
		{
			name:     "server empty address",
			mutate:   func(c *Config) { c.Server.Address = "" },
			errorMsg: "address cannot be empty",
		},
		{
			name:     "server negative delay",
			mutate:   func(c *Config) { c.Server.ProcessingDelay = -1 },
			errorMsg: "processing_delay_ms cannot be negative",
		},
		{
			name:     "server vad threshold out of range",
			mutate:   func(c *Config) { c.Server.VADThreshold = 1.2 },
			errorMsg: "vad_threshold must be between 0 and 1",
		},
		{
			name:     "server zero vad window",
			mutate:   func(c *Config) { c.Server.VADWindow = 0 },
			errorMsg: "vad_window_ms must be at least 1",
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Logging.Level = "trace" },
			errorMsg: "level must be one of",
		},
		{
			name:     "invalid log format",
			mutate:   func(c *Config) { c.Logging.Format = "xml" },
			errorMsg: "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)

			err := config.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("Expected error containing '%s' but got none", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestTTSFormatErrorIsEncoderError(t *testing.T) {
	config := Default()
	config.TTS.Format.SampleRate = 0

	if err := config.Validate(); !errors.Is(err, audio.ErrInvalidFormat) {
		t.Errorf("Expected audio.ErrInvalidFormat, got %v", err)
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "full configuration",
			configYAML: `
asr:
  base_url: "http://asr.internal:7100/api/v1"
  language: "en"
  model: "lightning-asr"
  timeout: 30
tts:
  url: "http://tts.internal:4444/api/v1/lightning-large/get_speech"
  voice_id: "emily"
  text: "hello world"
  consistency: 0.5
  output: "hello.wav"
  timeout: 15
  format:
    channels: 1
    sample_width: 2
    sample_rate: 16000
server:
  address: "0.0.0.0"
  port: 8080
  shutdown_timeout: 5
  tts_sample_rate: 16000
  processing_delay_ms: 200
logging:
  level: "debug"
  format: "json"
  output: "stdout"
`,
			check: func(t *testing.T, c *Config) {
				if c.ASR.Language != "en" || c.ASR.Model != "lightning-asr" {
					t.Errorf("Unexpected ASR config: %+v", c.ASR)
				}
				if c.TTS.VoiceID != "emily" || c.TTS.Format.SampleRate != 16000 {
					t.Errorf("Unexpected TTS config: %+v", c.TTS)
				}
				if c.Server.ListenAddress() != "0.0.0.0:8080" {
					t.Errorf("Expected listen address 0.0.0.0:8080, got %s", c.Server.ListenAddress())
				}
			},
		},
		{
			name: "partial configuration keeps defaults",
			configYAML: `
tts:
  voice_id: "arnav"
`,
			check: func(t *testing.T, c *Config) {
				if c.TTS.VoiceID != "arnav" {
					t.Errorf("Expected voice arnav, got %s", c.TTS.VoiceID)
				}
				if c.TTS.Text != "hey there" || c.TTS.Format.SampleRate != 24000 {
					t.Errorf("Expected defaults to survive, got %+v", c.TTS)
				}
			},
		},
		{
			name: "invalid yaml",
			configYAML: `
asr:
  base_url: [unclosed
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "invalid value",
			configYAML: `
server:
  port: 0
`,
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0o644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			tt.check(t, config)
		})
	}
}

func TestConfigLoadWithoutFile(t *testing.T) {
	config, err := Load("")
	if err != nil {
		t.Fatalf("Expected defaults to load, got: %v", err)
	}
	if config.TTS.VoiceID == "" {
		t.Error("Expected default voice to be set")
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	config, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Failed to load example config: %v", err)
	}
	if !reflect.DeepEqual(config, Default()) {
		t.Errorf("Example config drifted from defaults:\n got  %+v\n want %+v", config, Default())
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatal("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ASR_BASE_URL", "https://asr.example.com/api/v1")
	t.Setenv("ASR_LANGUAGE", "hi")
	t.Setenv("TTS_VOICE_ID", "meera")
	t.Setenv("TTS_CONSISTENCY", "0.25")
	t.Setenv("TTS_SAMPLE_RATE", "44100")
	t.Setenv("PROBE_TIMEOUT", "5")
	t.Setenv("TTS_SPEED", "1.5")
	t.Setenv("LOG_LEVEL", "debug")

	config := Default()
	if err := config.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if config.ASR.BaseURL != "https://asr.example.com/api/v1" || config.ASR.Language != "hi" {
		t.Errorf("ASR env overrides not applied: %+v", config.ASR)
	}
	if config.TTS.VoiceID != "meera" || config.TTS.Consistency != 0.25 || config.TTS.Format.SampleRate != 44100 {
		t.Errorf("TTS env overrides not applied: %+v", config.TTS)
	}
	if config.ASR.Timeout != 5 || config.TTS.Timeout != 5 {
		t.Errorf("Expected PROBE_TIMEOUT to apply to both probes, got %d and %d", config.ASR.Timeout, config.TTS.Timeout)
	}
	if config.TTS.Speed != 1.5 {
		t.Errorf("Expected speed 1.5, got %f", config.TTS.Speed)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", config.Logging.Level)
	}
}

func TestApplyEnvMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(c *Config) bool
	}{
		{
			name:  "timeout not an integer",
			key:   "PROBE_TIMEOUT",
			value: "abc",
			check: func(c *Config) bool { return c.ASR.Timeout == 60 && c.TTS.Timeout == 60 },
		},
		{
			name:  "port not an integer",
			key:   "MOCK_PORT",
			value: "not-a-number",
			check: func(c *Config) bool { return c.Server.Port == 7100 },
		},
		{
			name:  "consistency not a number",
			key:   "TTS_CONSISTENCY",
			value: "high",
			check: func(c *Config) bool { return c.TTS.Consistency == 1 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			config := Default()
			err := config.ApplyEnv()
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Expected error naming %s, got %v", tt.key, err)
			}
			if !tt.check(config) {
				t.Errorf("Expected malformed %s to leave the field unchanged", tt.key)
			}

			if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "invalid environment") {
				t.Errorf("Expected Load to surface the malformed value, got %v", err)
			}
		})
	}
}

func TestApplyEnvReportsEveryMalformedValue(t *testing.T) {
	t.Setenv("PROBE_TIMEOUT", "abc")
	t.Setenv("MOCK_VAD_THRESHOLD", "loud")

	err := Default().ApplyEnv()
	if err == nil {
		t.Fatal("Expected error")
	}
	for _, key := range []string{"PROBE_TIMEOUT", "MOCK_VAD_THRESHOLD"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("Expected error to name %s, got %v", key, err)
		}
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("Expected missing env file to be ignored, got: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TTS_TEXT=from env file\n"), 0o644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}

	// Register cleanup of the variable godotenv is about to set.
	t.Setenv("TTS_TEXT", "")
	os.Unsetenv("TTS_TEXT")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}

	config := Default()
	if err := config.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if config.TTS.Text != "from env file" {
		t.Errorf("Expected text from env file, got %q", config.TTS.Text)
	}
}

func TestDurationHelpers(t *testing.T) {
	asr := ASRConfig{Timeout: 30}
	if asr.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", asr.GetTimeoutDuration())
	}

	tts := TTSConfig{Timeout: 15}
	if tts.GetTimeoutDuration() != 15*time.Second {
		t.Errorf("Expected 15 seconds, got %v", tts.GetTimeoutDuration())
	}

	server := ServerConfig{ShutdownTimeout: 10, ProcessingDelay: 250, VADWindow: 20}
	if server.GetShutdownTimeoutDuration() != 10*time.Second {
		t.Errorf("Expected 10 seconds, got %v", server.GetShutdownTimeoutDuration())
	}
	if server.GetProcessingDelayDuration() != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", server.GetProcessingDelayDuration())
	}
	if server.GetVADWindowDuration() != 20*time.Millisecond {
		t.Errorf("Expected 20ms, got %v", server.GetVADWindowDuration())
	}
}
