package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"facegate-go/config"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "recognizer",
}

// Face is a single detected face with its embedding.
type Face struct {
	// Box is [x_min, y_min, x_max, y_max] in pixels.
	Box        [4]int    `json:"bbox"`
	Confidence float64   `json:"confidence"`
	Embedding  []float32 `json:"embedding"`
}

// RepresentResponse is the recognizer's answer to an embedding request.
type RepresentResponse struct {
	Status      string  `json:"status"`
	FacesCount  int     `json:"faces_count"`
	Faces       []Face  `json:"faces"`
	ProcessTime float64 `json:"process_time"`
}

// Service abstracts the external recognizer so handlers can be tested
// without a running model server.
type Service interface {
	Represent(ctx context.Context, imageData []byte, filename string) (*RepresentResponse, error)
	Ping(ctx context.Context) (bool, error)
}

// Client talks to the external face recognizer service. Detection, alignment
// and embedding extraction all happen on the other side of this boundary.
type Client struct {
	config     config.RecognizerConfig
	httpClient *http.Client
}

type infoResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Backend string `json:"backend"`
}

// NewClient creates a recognizer client for the configured service.
func NewClient(cfg config.RecognizerConfig) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

// Ping checks whether the recognizer service is reachable.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	apiURL, err := url.JoinPath(c.config.URL, "/info")
	if err != nil {
		return false, fmt.Errorf("failed to create API URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach recognizer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("recognizer service unavailable, status: %d", resp.StatusCode)
	}

	var info infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false, fmt.Errorf("failed to decode info response: %w", err)
	}

	return info.Status == "ok", nil
}

// Represent sends an image to the recognizer and returns all detected faces
// with their embeddings.
func (c *Client) Represent(ctx context.Context, imageData []byte, filename string) (*RepresentResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imageData)); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.WriteField("threshold", fmt.Sprintf("%.2f", c.config.DetProbThreshold)); err != nil {
		log.WithFields(logFields).Warnf("Failed to add threshold parameter: %v", err)
	}
	if err := writer.WriteField("extract_embedding", "true"); err != nil {
		log.WithFields(logFields).Warnf("Failed to add extract_embedding parameter: %v", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	apiURL, err := url.JoinPath(c.config.URL, "/represent")
	if err != nil {
		return nil, fmt.Errorf("failed to create API URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("recognizer returned error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result RepresentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	log.WithFields(logFields).Debugf("Recognizer found %d faces in %s (%.3fs)",
		result.FacesCount, filename, result.ProcessTime)
	return &result, nil
}
