package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}

	return nil
}

// ApplyEnv overrides fields with any matching environment variables. Malformed numeric
// values are reported together and leave their fields unchanged.
func (c *Config) ApplyEnv() error {
	var env envReader

	c.ASR.BaseURL = envStr("ASR_BASE_URL", c.ASR.BaseURL)
	c.ASR.Language = envStr("ASR_LANGUAGE", c.ASR.Language)
	c.ASR.Model = envStr("ASR_MODEL", c.ASR.Model)
	c.ASR.Timeout = env.int("PROBE_TIMEOUT", c.ASR.Timeout)

	c.TTS.URL = envStr("TTS_URL", c.TTS.URL)
	c.TTS.VoiceID = envStr("TTS_VOICE_ID", c.TTS.VoiceID)
	c.TTS.Text = envStr("TTS_TEXT", c.TTS.Text)
	c.TTS.Consistency = env.float("TTS_CONSISTENCY", c.TTS.Consistency)
	c.TTS.Speed = env.float("TTS_SPEED", c.TTS.Speed)
	c.TTS.Language = envStr("TTS_LANGUAGE", c.TTS.Language)
	c.TTS.Output = envStr("TTS_OUTPUT", c.TTS.Output)
	c.TTS.Timeout = env.int("PROBE_TIMEOUT", c.TTS.Timeout)
	c.TTS.Format.SampleRate = env.int("TTS_SAMPLE_RATE", c.TTS.Format.SampleRate)
	c.TTS.Format.Channels = env.int("TTS_CHANNELS", c.TTS.Format.Channels)
	c.TTS.Format.SampleWidth = env.int("TTS_SAMPLE_WIDTH", c.TTS.Format.SampleWidth)

	c.Server.Address = envStr("MOCK_ADDRESS", c.Server.Address)
	c.Server.Port = env.int("MOCK_PORT", c.Server.Port)
	c.Server.TTSSampleRate = env.int("MOCK_TTS_SAMPLE_RATE", c.Server.TTSSampleRate)
	c.Server.ProcessingDelay = env.int("MOCK_PROCESSING_DELAY_MS", c.Server.ProcessingDelay)
	c.Server.VADThreshold = env.float("MOCK_VAD_THRESHOLD", c.Server.VADThreshold)

	c.Logging.Level = envStr("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envStr("LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = envStr("LOG_OUTPUT", c.Logging.Output)

	return env.err()
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// envReader parses numeric variables and remembers every one that failed
type envReader struct {
	errs []error
}

func (r *envReader) int(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q is not an integer", key, val))
		return fallback
	}
	return n
}

func (r *envReader) float(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q is not a number", key, val))
		return fallback
	}
	return f
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}
