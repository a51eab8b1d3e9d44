package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/smallest-inc/smallest-self-host/internal/audio"
	"github.com/smallest-inc/smallest-self-host/internal/synthesis"
	"github.com/smallest-inc/smallest-self-host/internal/transcription"
)

// PrintASRRequest prints what is about to be sent.
func PrintASRRequest(w io.Writer, url string, req transcription.Request, info *audio.WAVInfo) {
	fmt.Fprintf(w, "Sending request to: %s\n", url)
	fmt.Fprintf(w, "Audio file: %s\n", req.AudioPath)
	if info != nil {
		fmt.Fprintf(w, "Audio format: %d Hz, %d channel(s), %d-bit, %.3f seconds\n",
			info.SampleRate, info.Channels, info.BitsPerSample, info.Duration)
	}
	if req.Language != "" {
		fmt.Fprintf(w, "Language: %s\n", req.Language)
	}
	if req.Model != "" {
		fmt.Fprintf(w, "Model: %s\n", req.Model)
	}
}

// PrintTranscription prints the status, headers and body of an ASR response.
func PrintTranscription(w io.Writer, resp *transcription.Response) {
	fmt.Fprintf(w, "Time taken: %s\n", formatSeconds(resp.Elapsed))
	fmt.Fprintf(w, "\nResponse Status: %d\n", resp.StatusCode)
	fmt.Fprintf(w, "Response Headers:\n")

	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, strings.Join(resp.Header[k], ", "))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Fprintf(w, "Error Response: %s\n", string(resp.Body))
		return
	}

	if resp.Result == nil {
		fmt.Fprintf(w, "Transcription: %s\n", string(resp.Body))
		return
	}

	printResult(w, resp.Result)
}

func printResult(w io.Writer, result *transcription.Result) {
	fmt.Fprintf(w, "Status: %s\n", result.Status)
	fmt.Fprintf(w, "Transcription: %s\n", result.Transcription)

	if len(result.WordTimestamps) > 0 {
		fmt.Fprintf(w, "\nWord timestamps:\n")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  WORD\tSTART\tEND")
		for _, ts := range result.WordTimestamps {
			fmt.Fprintf(tw, "  %s\t%.3f\t%.3f\n", ts.Word, ts.Start, ts.End)
		}
		tw.Flush()
	}

	if result.Age != "" {
		fmt.Fprintf(w, "Age: %s\n", result.Age)
	}
	if result.Gender != "" {
		fmt.Fprintf(w, "Gender: %s\n", result.Gender)
	}

	if len(result.Emotions) > 0 {
		names := make([]string, 0, len(result.Emotions))
		for name := range result.Emotions {
			names = append(names, name)
		}
		// Highest score first, ties by name.
		sort.Slice(names, func(i, j int) bool {
			si, sj := result.Emotions[names[i]], result.Emotions[names[j]]
			if si != sj {
				return si > sj
			}
			return names[i] < names[j]
		})

		fmt.Fprintf(w, "Emotions:\n")
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %.3f\n", name, result.Emotions[name])
		}
	}

	if len(result.Metadata) > 0 {
		metadata, err := json.MarshalIndent(result.Metadata, "", "  ")
		if err != nil {
			fmt.Fprintf(w, "Metadata: %v\n", result.Metadata)
			return
		}
		fmt.Fprintf(w, "Metadata: %s\n", metadata)
	}
}

// PrintSynthesis prints the outcome of a TTS probe whose audio was saved to path.
func PrintSynthesis(w io.Writer, result *synthesis.Result, path string, info *audio.WAVInfo) {
	fmt.Fprintln(w, "response received")
	fmt.Fprintln(w, formatSeconds(result.Elapsed))
	fmt.Fprintf(w, "audio received: %d bytes\n", len(result.Audio))
	if info != nil {
		fmt.Fprintf(w, "Duration: %.3f seconds (%d Hz, %d channel(s), %d-bit)\n",
			info.Duration, info.SampleRate, info.Channels, info.BitsPerSample)
	}
	fmt.Fprintf(w, "Audio saved as %s with WAV header.\n", path)
}

// PrintSynthesisFailure prints a non-2xx TTS response.
func PrintSynthesisFailure(w io.Writer, err *synthesis.StatusError) {
	fmt.Fprintf(w, "Request failed with status code %d: %s\n", err.StatusCode, string(err.Body))
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f seconds", d.Seconds())
}
