// Package audio wraps raw linear PCM in a minimal canonical WAV container and reads
// WAV headers back out, either from an in-memory buffer or from a file on disk.
package audio
