package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nikhilbhutani/speech2text/internal/config"
	"github.com/nikhilbhutani/speech2text/internal/metrics"
	"github.com/nikhilbhutani/speech2text/internal/transcription"
)

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(_ context.Context, up transcription.Upload) (*transcription.Result, error) {
	return &transcription.Result{Text: "hello " + up.Filename}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	srv := httptest.NewServer(NewRouter(&cfg, Deps{
		Transcriber: stubTranscriber{},
		Metrics:     metrics.NewMetrics(),
	}).Setup())
	t.Cleanup(srv.Close)
	return srv
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/usage", http.StatusServiceUnavailable},
		{"/api/v1/audit", http.StatusServiceUnavailable},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("GET %s: expected %d, got %d", tt.path, tt.status, resp.StatusCode)
		}
	}
}

func TestUploadRoute(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio_file", "clip.ogg")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("OggS"))
	mw.Close()

	resp, err := http.Post(srv.URL+"/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["transcription"] != "hello clip.ogg" || !strings.HasSuffix(out["time"], " seconds") {
		t.Fatalf("unexpected response %v", out)
	}

	resp, err = http.Get(srv.URL + "/upload")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /upload: expected 405, got %d", resp.StatusCode)
	}
}
