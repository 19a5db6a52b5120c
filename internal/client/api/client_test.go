package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEnrollSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/enroll" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"message": "Successfully enrolled 5 face embeddings",
			"data": {"embeddings_count": 5, "metadata": [{"pose": "front", "confidence": 0.2, "face_ratio": 0.2}]}
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute)
	result, err := client.Enroll(context.Background(), []Frame{{Pose: "front", Image: "data:,x"}})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if !result.Success || result.EmbeddingsCount != 5 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Metadata) != 1 || result.Metadata[0].Pose != "front" {
		t.Fatalf("metadata not parsed: %+v", result.Metadata)
	}
}

func TestEnrollTimeoutIsDistinct(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	client := NewClient(srv.URL, 50*time.Millisecond)
	_, err := client.Enroll(context.Background(), nil)
	if !errors.Is(err, ErrSubmitTimeout) {
		t.Fatalf("expected ErrSubmitTimeout, got %v", err)
	}
}

func TestEnrollServerDetailError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "Insufficient frames: 3 provided, minimum 5 required"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute)
	_, err := client.Enroll(context.Background(), nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", apiErr.Status)
	}
	if apiErr.Detail == "" {
		t.Fatal("expected detail message to be surfaced")
	}
}

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"message": "Face verified with similarity: 0.8123",
			"data": {"verified": true, "similarity": 0.8123, "threshold": 0.6}
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute)
	result, err := client.Verify(context.Background(), "data:,probe")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Verified || result.Similarity != 0.8123 || result.Threshold != 0.6 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStatusAndClear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/status":
			w.Write([]byte(`{"success": true, "message": "ok", "data": {"enrolled": true, "embeddings_count": 5}}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/enrollment":
			w.Write([]byte(`{"success": true, "message": "Enrollment data cleared successfully"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute)

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Enrolled || status.EmbeddingsCount != 5 {
		t.Fatalf("unexpected status: %+v", status)
	}

	if err := client.ClearEnrollment(context.Background()); err != nil {
		t.Fatalf("ClearEnrollment: %v", err)
	}
}

func TestBaseURLFromEnv(t *testing.T) {
	t.Setenv("FACEGATE_API_URL", "http://backend.example:9000")
	if got := BaseURLFromEnv(); got != "http://backend.example:9000" {
		t.Fatalf("expected env override, got %q", got)
	}

	t.Setenv("FACEGATE_API_URL", "")
	if got := BaseURLFromEnv(); got != DefaultBaseURL {
		t.Fatalf("expected default, got %q", got)
	}
}
