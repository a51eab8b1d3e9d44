// Package synthesis implements the text-to-speech probe client. Responses are raw,
// headerless PCM and are returned exactly as received.
package synthesis
