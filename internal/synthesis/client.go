package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/smallest-inc/smallest-self-host/internal/audio"
	"github.com/smallest-inc/smallest-self-host/internal/metrics"
)

// DefaultURL is the speech endpoint of a locally running lightning-large service.
const DefaultURL = "http://localhost:4444/api/v1/lightning-large/get_speech"

// Request is the JSON body sent to the speech endpoint
type Request struct {
	VoiceID     string  `json:"voice_id"`
	Text        string  `json:"text"`
	Consistency float64 `json:"consistency"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
	Language    string  `json:"language,omitempty"`
}

// Result holds the raw audio returned by the speech endpoint
type Result struct {
	URL         string
	RequestID   string
	StatusCode  int
	ContentType string
	Audio       []byte
	Elapsed     time.Duration

	// Format is the PCM encoding announced by the X-Sample-Rate, X-Channels and
	// X-Sample-Width response headers, or nil when the server does not send all three.
	Format *audio.PCMFormat
}

// StatusError is returned for any non-2xx HTTP status
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, string(e.Body))
}

// Client posts synthesis requests and returns the audio bytes unchanged
type Client struct {
	url        string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewClient creates a client for the speech endpoint at url. m may be nil.
func NewClient(url string, timeout time.Duration, m *metrics.Metrics) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
	}
}

// URL returns the endpoint the client posts to
func (c *Client) URL() string {
	return c.url
}

// Synthesize sends a single speech request. The response body is returned verbatim.
func (c *Client) Synthesize(ctx context.Context, request Request) (*Result, error) {
	if request.Text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordError(metrics.ErrorTransport)
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordError(metrics.ErrorTransport)
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordProbe(metrics.KindTTS, strconv.Itoa(resp.StatusCode), elapsed.Seconds(), len(respBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordError(metrics.ErrorStatus)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return &Result{
		URL:         c.url,
		RequestID:   requestID,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Audio:       respBody,
		Elapsed:     elapsed,
		Format:      announcedFormat(resp.Header),
	}, nil
}

func announcedFormat(header http.Header) *audio.PCMFormat {
	var values [3]int
	for i, key := range []string{"X-Sample-Rate", "X-Channels", "X-Sample-Width"} {
		n, err := strconv.Atoi(header.Get(key))
		if err != nil {
			return nil
		}
		values[i] = n
	}

	return &audio.PCMFormat{
		SampleRate:  values[0],
		Channels:    values[1],
		SampleWidth: values[2],
	}
}

func (c *Client) recordError(errorType string) {
	if c.metrics != nil {
		c.metrics.RecordProbeError(metrics.KindTTS, errorType)
	}
}
