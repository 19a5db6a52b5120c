package recognizer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"facegate-go/config"
)

func testConfig(url string) config.RecognizerConfig {
	return config.RecognizerConfig{
		URL:              url,
		TimeoutSeconds:   5,
		DetProbThreshold: 0.8,
		EmbeddingSize:    512,
	}
}

func TestRepresentParsesFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/represent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart form: %v", err)
		}
		if r.FormValue("threshold") != "0.80" {
			t.Errorf("expected threshold 0.80, got %q", r.FormValue("threshold"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "ok",
			"faces_count": 1,
			"faces": [{"bbox": [10, 20, 110, 140], "confidence": 0.97, "embedding": [0.1, 0.2, 0.3]}],
			"process_time": 0.42
		}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	resp, err := client.Represent(context.Background(), []byte("not-a-real-jpeg"), "probe.jpg")
	if err != nil {
		t.Fatalf("Represent: %v", err)
	}

	if resp.FacesCount != 1 || len(resp.Faces) != 1 {
		t.Fatalf("expected one face, got %+v", resp)
	}
	face := resp.Faces[0]
	if face.Box != [4]int{10, 20, 110, 140} {
		t.Fatalf("unexpected box: %v", face.Box)
	}
	if len(face.Embedding) != 3 || face.Embedding[1] != 0.2 {
		t.Fatalf("unexpected embedding: %v", face.Embedding)
	}
}

func TestRepresentServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	if _, err := client.Represent(context.Background(), []byte("x"), "probe.jpg"); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok", "version": "1.0", "backend": "retinaface"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	ok, err := client.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !ok {
		t.Fatal("expected healthy ping")
	}
}

func TestPingUnreachable(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:1"))
	if ok, err := client.Ping(context.Background()); ok || err == nil {
		t.Fatalf("expected failed ping, got ok=%v err=%v", ok, err)
	}
}
