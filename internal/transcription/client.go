package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smallest-inc/smallest-self-host/internal/metrics"
)

// DefaultBaseURL is the API root of a locally running ASR service.
const DefaultBaseURL = "http://localhost:7100/api/v1"

const endpointPath = "/speech-to-text"

// ErrAudioNotFound is returned when the audio file to upload does not exist.
var ErrAudioNotFound = errors.New("audio file not found")

// Client uploads audio files to a speech-to-text endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// Config contains transcription client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Request describes a single transcription probe
type Request struct {
	AudioPath string
	Language  string
	Model     string
}

// WordTimestamp is the time span of a single recognized word, in seconds
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result represents the JSON body returned by the transcription API
type Result struct {
	Status         string             `json:"status"`
	Transcription  string             `json:"transcription"`
	WordTimestamps []WordTimestamp    `json:"word_timestamps,omitempty"`
	Age            string             `json:"age,omitempty"`
	Gender         string             `json:"gender,omitempty"`
	Emotions       map[string]float64 `json:"emotions,omitempty"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
}

// Response is the raw HTTP outcome of a probe plus the decoded result when available
type Response struct {
	URL        string
	RequestID  string
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration

	// Result is nil when the body is not a JSON object.
	Result *Result
}

// StatusError is returned for any non-2xx HTTP status
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, string(e.Body))
}

// NewClient creates a new transcription HTTP client. m may be nil.
func NewClient(config Config, m *metrics.Metrics) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	if !strings.HasPrefix(config.BaseURL, "http://") && !strings.HasPrefix(config.BaseURL, "https://") {
		return nil, fmt.Errorf("base URL must start with http:// or https://, got %q", config.BaseURL)
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		metrics:    m,
	}, nil
}

// URL returns the endpoint the client posts to
func (c *Client) URL() string {
	return strings.TrimSuffix(c.config.BaseURL, "/") + endpointPath
}

// Transcribe uploads the audio file and returns the response. For a non-2xx status both the
// response and a *StatusError are returned so the caller can still print headers.
func (c *Client) Transcribe(ctx context.Context, request Request) (*Response, error) {
	if _, err := os.Stat(request.AudioPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrAudioNotFound, request.AudioPath)
		}
		return nil, fmt.Errorf("failed to stat audio file: %w", err)
	}

	body, contentType, err := createMultipartRequest(request)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.recordError(metrics.ErrorTransport)
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordError(metrics.ErrorTransport)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	response := &Response{
		URL:        c.URL(),
		RequestID:  requestID,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
		Elapsed:    time.Since(start),
	}

	if c.metrics != nil {
		c.metrics.RecordProbe(metrics.KindASR, strconv.Itoa(resp.StatusCode), response.Elapsed.Seconds(), len(respBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordError(metrics.ErrorStatus)
		return response, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err == nil {
		response.Result = &result
	} else {
		c.recordError(metrics.ErrorDecode)
	}

	return response, nil
}

func (c *Client) recordError(errorType string) {
	if c.metrics != nil {
		c.metrics.RecordProbeError(metrics.KindASR, errorType)
	}
}

// createMultipartRequest creates a multipart/form-data body with the audio file and the
// optional language and model fields
func createMultipartRequest(request Request) (io.Reader, string, error) {
	audioFile, err := os.Open(request.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer audioFile.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(request.AudioPath))))
	partHeader.Set("Content-Type", "audio/wav")

	fileWriter, err := writer.CreatePart(partHeader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := io.Copy(fileWriter, audioFile); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if request.Language != "" {
		if err := writer.WriteField("language", request.Language); err != nil {
			return nil, "", fmt.Errorf("failed to write field language: %w", err)
		}
	}
	if request.Model != "" {
		if err := writer.WriteField("model", request.Model); err != nil {
			return nil, "", fmt.Errorf("failed to write field model: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
