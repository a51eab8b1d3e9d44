// Package server implements a mock speech service for exercising the probes without a
// GPU deployment. It answers the speech-to-text upload and get_speech endpoints with canned
// transcriptions and synthesized tones, and exposes /health and Prometheus /metrics.
package server
