package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

var (
	// ErrEmptyRecording means the container holds no audio beyond its header.
	ErrEmptyRecording = errors.New("recording contains no audio data")
	// ErrOversizeRecording means the container exceeds the upload ceiling.
	ErrOversizeRecording = errors.New("recording exceeds upload size limit")
	// ErrEmptyTranscript means the service accepted the audio but returned
	// no text.
	ErrEmptyTranscript = errors.New("transcription returned empty text")
)

// UploadError reports a failed exchange with the transcription service.
type UploadError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload failed: %v", e.Err)
	}
	return fmt.Sprintf("upload failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Config contains transcription client configuration
type Config struct {
	Endpoint       string
	APIKey         string
	ModelID        string
	Timeout        time.Duration
	MaxRetries     int
	MaxConcurrent  int
	MaxUploadBytes int64

	// OnRetry, when set, is called once per retry attempt so the owner can
	// surface retries in its own counters.
	OnRetry func()
}

// Transcript is the result of one successful submission, including where
// the time went.
type Transcript struct {
	Text string `json:"text"`

	// Phase timings for the whole submission.
	LoadTime      time.Duration `json:"load_time"`
	AssembleTime  time.Duration `json:"assemble_time"`
	RoundTripTime time.Duration `json:"round_trip_time"`
	ParseTime     time.Duration `json:"parse_time"`
	TotalTime     time.Duration `json:"total_time"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalUploads     uint64        `json:"total_uploads"`
	SuccessUploads   uint64        `json:"success_uploads"`
	FailedUploads    uint64        `json:"failed_uploads"`
	EmptyTranscripts uint64        `json:"empty_transcripts"`
	RejectedUploads  uint64        `json:"rejected_uploads"`
	SuccessRate      float64       `json:"success_rate"`
	TotalRetries     uint64        `json:"total_retries"`
	AvgResponseTime  time.Duration `json:"avg_response_time"`
	ActiveUploads    int           `json:"active_uploads"`
}

// Client submits finished recordings to the transcription service over
// multipart HTTP.
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore

	// Statistics
	totalUploads     uint64
	successUploads   uint64
	failedUploads    uint64
	emptyTranscripts uint64
	rejectedUploads  uint64
	totalRetries     uint64
	avgResponseTime  time.Duration

	mu sync.RWMutex
}

// NewClient creates a new transcription HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.ModelID == "" {
		config.ModelID = "scribe_v1"
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 512000
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	semaphore := make(chan struct{}, config.MaxConcurrent)

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  semaphore,
	}, nil
}

// Submit uploads one recording of the given size and returns its transcript.
// Size gates fail before any network traffic: a container no larger than its
// 44-byte header is empty, and anything above the configured ceiling is
// rejected rather than streamed.
func (c *Client) Submit(ctx context.Context, r io.Reader, size int64) (*Transcript, error) {
	if size <= 44 {
		c.incrementRejectedUploads()
		return nil, ErrEmptyRecording
	}
	if size > c.config.MaxUploadBytes {
		c.incrementRejectedUploads()
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrOversizeRecording, size, c.config.MaxUploadBytes)
	}

	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalUploads()

	loadStart := time.Now()
	audio := make([]byte, size)
	if _, err := io.ReadFull(r, audio); err != nil {
		c.incrementFailedUploads()
		return nil, fmt.Errorf("failed to load recording: %w", err)
	}
	loadTime := time.Since(loadStart)

	assembleStart := time.Now()
	body, contentType, err := c.assembleForm(audio)
	if err != nil {
		c.incrementFailedUploads()
		return nil, err
	}
	assembleTime := time.Since(assembleStart)

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			if c.config.OnRetry != nil {
				c.config.OnRetry()
			}

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				c.incrementFailedUploads()
				return nil, &UploadError{Err: ctx.Err()}
			}
		}

		transcript, err := c.doRequest(ctx, body, contentType)
		if err == nil {
			transcript.LoadTime = loadTime
			transcript.AssembleTime = assembleTime
			transcript.TotalTime = time.Since(startTime)
			c.incrementSuccessUploads()
			c.updateAvgResponseTime(time.Since(startTime))
			return transcript, nil
		}

		lastErr = err

		if errors.Is(err, ErrEmptyTranscript) {
			c.incrementEmptyTranscripts()
			return nil, err
		}

		if !isRetryable(err) {
			break
		}
	}

	c.incrementFailedUploads()
	return nil, fmt.Errorf("transcription failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// doRequest performs a single HTTP exchange with the transcription API.
func (c *Client) doRequest(ctx context.Context, body []byte, contentType string) (*Transcript, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &UploadError{Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("xi-api-key", c.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	roundTripStart := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UploadError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	roundTripTime := time.Since(roundTripStart)

	if resp.StatusCode != http.StatusOK {
		return nil, &UploadError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	parseStart := time.Now()
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &UploadError{Err: fmt.Errorf("failed to parse response JSON: %w", err)}
	}
	parseTime := time.Since(parseStart)

	if parsed.Text == "" {
		return nil, ErrEmptyTranscript
	}

	return &Transcript{
		Text:          parsed.Text,
		RoundTripTime: roundTripTime,
		ParseTime:     parseTime,
	}, nil
}

// assembleForm builds the two-part multipart body: the model identifier and
// the audio file. The whole body is assembled in memory; with the upload
// ceiling in place the largest body is around half a megabyte.
func (c *Client) assembleForm(audio []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	buf.Grow(len(audio) + 512)
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("model_id", c.config.ModelID); err != nil {
		return nil, "", fmt.Errorf("failed to write model_id field: %w", err)
	}

	fileWriter, err := writer.CreateFormFile("file", "recording.wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

// isRetryable reports whether an upload failure is worth another attempt.
// Server errors, rate limits and transport failures are; client errors and
// auth failures are not.
func isRetryable(err error) bool {
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		return false
	}

	if uploadErr.StatusCode >= 500 || uploadErr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	// A transport-level failure has no status code.
	return uploadErr.StatusCode == 0 && uploadErr.Err != nil && !errors.Is(uploadErr.Err, context.Canceled)
}

// Statistics methods
func (c *Client) incrementTotalUploads() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalUploads++
}

func (c *Client) incrementSuccessUploads() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successUploads++
}

func (c *Client) incrementFailedUploads() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedUploads++
}

func (c *Client) incrementEmptyTranscripts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emptyTranscripts++
}

func (c *Client) incrementRejectedUploads() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectedUploads++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalUploads > 0 {
		successRate = float64(c.successUploads) / float64(c.totalUploads) * 100
	}

	return ClientStats{
		TotalUploads:     c.totalUploads,
		SuccessUploads:   c.successUploads,
		FailedUploads:    c.failedUploads,
		EmptyTranscripts: c.emptyTranscripts,
		RejectedUploads:  c.rejectedUploads,
		SuccessRate:      successRate,
		TotalRetries:     c.totalRetries,
		AvgResponseTime:  c.avgResponseTime,
		ActiveUploads:    len(c.semaphore),
	}
}

// Close gracefully shuts down the client
func (c *Client) Close() error {
	// Wait for all active uploads to complete
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}

	return nil
}
