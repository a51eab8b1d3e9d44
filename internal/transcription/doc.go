// Package transcription implements the speech-to-text probe client.
// It uploads a single audio file as multipart form data, optionally with a language and
// model, and returns the raw response together with the decoded transcription result.
package transcription
