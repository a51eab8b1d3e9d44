package vad

import (
	"math"
	"time"
)

const (
	// DefaultThreshold is the voice probability at or above which a window counts as voiced.
	DefaultThreshold = 0.5

	// DefaultWindow is the analysis window length.
	DefaultWindow = 32 * time.Millisecond

	// fullScaleRMS maps to probability 1.0
	fullScaleRMS = 10000.0
)

// Detector scores fixed-length windows of audio by RMS energy
type Detector struct {
	threshold float64
	window    time.Duration
}

// Segment is a run of consecutive voiced windows, in seconds from the start of the audio
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"` // mean probability over the segment
}

// Result summarizes voice activity over a whole buffer
type Result struct {
	TotalWindows int       `json:"total_windows"`
	VoiceWindows int       `json:"voice_windows"`
	VoiceRatio   float64   `json:"voice_ratio"`
	Segments     []Segment `json:"segments,omitempty"`
}

// NewDetector creates a detector. A threshold outside [0, 1] or a non-positive window
// falls back to the default.
func NewDetector(threshold float64, window time.Duration) *Detector {
	if threshold < 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}

	return &Detector{
		threshold: threshold,
		window:    window,
	}
}

// Threshold returns the voiced probability threshold
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// WindowSize returns the number of samples per window at sampleRate
func (d *Detector) WindowSize(sampleRate int) int {
	return max(1, int(int64(sampleRate)*int64(d.window)/int64(time.Second)))
}

// Detect analyzes samples recorded at sampleRate. Interleaved multi-channel audio is
// analyzed as one stream with sampleRate multiplied by the channel count. The trailing
// partial window is scored like any other.
func (d *Detector) Detect(samples []int16, sampleRate int) *Result {
	result := &Result{}
	if len(samples) == 0 || sampleRate <= 0 {
		return result
	}

	size := d.WindowSize(sampleRate)
	rate := float64(sampleRate)

	var current *Segment
	var currentSum float64
	var currentWindows int

	closeSegment := func() {
		if current == nil {
			return
		}
		current.Confidence = currentSum / float64(currentWindows)
		result.Segments = append(result.Segments, *current)
		current = nil
	}

	for start := 0; start < len(samples); start += size {
		end := min(start+size, len(samples))
		probability := Probability(samples[start:end])

		result.TotalWindows++
		if probability < d.threshold {
			closeSegment()
			continue
		}

		result.VoiceWindows++
		if current == nil {
			current = &Segment{Start: float64(start) / rate}
			currentSum, currentWindows = 0, 0
		}
		current.End = float64(end) / rate
		currentSum += probability
		currentWindows++
	}
	closeSegment()

	result.VoiceRatio = float64(result.VoiceWindows) / float64(result.TotalWindows)

	return result
}

// Probability returns the RMS energy of window normalized to [0, 1]
func Probability(window []int16) float64 {
	if len(window) == 0 {
		return 0
	}

	var energy float64
	for _, sample := range window {
		energy += float64(sample) * float64(sample)
	}
	rms := math.Sqrt(energy / float64(len(window)))

	return math.Min(rms/fullScaleRMS, 1)
}
