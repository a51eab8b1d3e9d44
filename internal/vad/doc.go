// Package vad provides an energy-based voice activity detector for 16-bit PCM.
// Each fixed window is scored by its RMS energy; runs of voiced windows become segments.
package vad
