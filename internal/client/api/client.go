package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"facegate-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// DefaultBaseURL is used when FACEGATE_API_URL is not set.
const DefaultBaseURL = "http://localhost:8000"

// ErrSubmitTimeout marks an enrollment submission that hit its deadline.
// The first enrollment can take minutes while the backend downloads its
// models, so this case gets its own user-facing message.
var ErrSubmitTimeout = errors.New("enrollment submission timed out")

// APIError carries a server-side failure with the verbatim detail message.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

// Frame is one pose-labelled capture ready for submission.
type Frame struct {
	Pose  string `json:"pose"`
	Image string `json:"image"` // data URI
}

// EnrollResult is the parsed answer to an enrollment submission.
type EnrollResult struct {
	Success         bool
	Message         string
	EmbeddingsCount int
	Metadata        []models.FrameMetadata
	Errors          []string
}

// VerifyResult is the parsed answer to a verification call.
type VerifyResult struct {
	Verified   bool
	Similarity float64
	Threshold  float64
	Message    string
}

// Status is the parsed answer to a status call.
type Status struct {
	Enrolled        bool
	EmbeddingsCount int
}

// Client talks to the FaceGate backend.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	submitClient  *http.Client // no client-level timeout; the context bounds enroll
	submitTimeout time.Duration
}

// BaseURLFromEnv resolves the backend base URL from FACEGATE_API_URL,
// falling back to the local default.
func BaseURLFromEnv() string {
	if v := os.Getenv("FACEGATE_API_URL"); v != "" {
		return v
	}
	return DefaultBaseURL
}

// NewClient creates a backend client. submitTimeout bounds only the
// enrollment submission; other calls use the shorter default timeout.
func NewClient(baseURL string, submitTimeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if submitTimeout <= 0 {
		submitTimeout = 3 * time.Minute
	}
	return &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		submitClient:  &http.Client{},
		submitTimeout: submitTimeout,
	}
}

// envelope matches the server's standard response shape.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Enroll submits the full frame batch under the submission timeout.
func (c *Client) Enroll(ctx context.Context, frames []Frame) (*EnrollResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]interface{}{"frames": frames})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal enrollment request: %w", err)
	}

	// The deadline comes from the context so a model warm-up on the
	// server is tolerated up to the full submit timeout.
	env, err := c.post(ctx, c.submitClient, "/enroll", payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrSubmitTimeout
		}
		return nil, err
	}

	result := &EnrollResult{
		Success: env.Success,
		Message: env.Message,
	}
	if len(env.Data) > 0 {
		var data struct {
			EmbeddingsCount int                    `json:"embeddings_count"`
			Metadata        []models.FrameMetadata `json:"metadata"`
			Errors          []string               `json:"errors"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode enrollment data: %w", err)
		}
		result.EmbeddingsCount = data.EmbeddingsCount
		result.Metadata = data.Metadata
		result.Errors = data.Errors
	}
	return result, nil
}

// Verify submits a single probe image.
func (c *Client) Verify(ctx context.Context, imageDataURI string) (*VerifyResult, error) {
	payload, err := json.Marshal(map[string]string{"image": imageDataURI})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verification request: %w", err)
	}

	env, err := c.post(ctx, c.httpClient, "/verify", payload)
	if err != nil {
		return nil, err
	}

	var data struct {
		Verified   bool    `json:"verified"`
		Similarity float64 `json:"similarity"`
		Threshold  float64 `json:"threshold"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode verification data: %w", err)
		}
	}

	return &VerifyResult{
		Verified:   data.Verified,
		Similarity: data.Similarity,
		Threshold:  data.Threshold,
		Message:    env.Message,
	}, nil
}

// Status fetches the current enrollment status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	env, err := c.do(ctx, c.httpClient, http.MethodGet, "/status", nil)
	if err != nil {
		return nil, err
	}

	var data struct {
		Enrolled        bool `json:"enrolled"`
		EmbeddingsCount int  `json:"embeddings_count"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode status data: %w", err)
		}
	}

	return &Status{Enrolled: data.Enrolled, EmbeddingsCount: data.EmbeddingsCount}, nil
}

// ClearEnrollment deletes the stored enrollment.
func (c *Client) ClearEnrollment(ctx context.Context) error {
	_, err := c.do(ctx, c.httpClient, http.MethodDelete, "/enrollment", nil)
	return err
}

func (c *Client) post(ctx context.Context, client *http.Client, path string, body []byte) (*envelope, error) {
	return c.do(ctx, client, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, client *http.Client, method, path string, body []byte) (*envelope, error) {
	apiURL, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(respBody, &errBody); err != nil {
			log.Debugf("Non-JSON error body from %s: %s", path, string(respBody))
		}
		return nil, &APIError{Status: resp.StatusCode, Detail: errBody.Detail}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &env, nil
}
