package server

import (
	"math"
	"strings"

	"github.com/smallest-inc/smallest-self-host/internal/transcription"
)

const (
	toneFrequency  = 220.0
	toneAmplitude  = 0.3 * math.MaxInt16
	secondsPerChar = 0.0625
	minToneSeconds = 0.25
	maxToneSeconds = 30.0
	secondsPerWord = 0.3
)

// toneForText returns a mono sine tone whose length grows with the text and shrinks with
// speed. A non-positive speed means normal speed. The length is clamped to
// [minToneSeconds, maxToneSeconds].
func toneForText(text string, sampleRate int, speed float64) []int16 {
	seconds := float64(len([]rune(text))) * secondsPerChar
	if speed > 0 {
		seconds /= speed
	}
	seconds = min(max(minToneSeconds, seconds), maxToneSeconds)
	samples := make([]int16, int(seconds*float64(sampleRate)))

	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = int16(toneAmplitude * math.Sin(2*math.Pi*toneFrequency*t))
	}

	return samples
}

// wordTimestamps spreads the words of text evenly over duration seconds.
// A non-positive duration assigns a fixed span per word.
func wordTimestamps(text string, duration float64) []transcription.WordTimestamp {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	span := secondsPerWord
	if duration > 0 {
		span = duration / float64(len(words))
	}

	timestamps := make([]transcription.WordTimestamp, len(words))
	for i, word := range words {
		timestamps[i] = transcription.WordTimestamp{
			Word:  word,
			Start: float64(i) * span,
			End:   float64(i+1) * span,
		}
	}

	return timestamps
}
