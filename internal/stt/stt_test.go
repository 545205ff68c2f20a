package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "normalized.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVEfmt fake"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func whisperServer(t *testing.T, status int, body string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAISTTTranscribe(t *testing.T) {
	srv := whisperServer(t, http.StatusOK, `{"text":" salam donya ","language":"persian","duration":1.5}`, func(r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart body: %v", err)
			return
		}
		if got := r.FormValue("language"); got != "fa" {
			t.Errorf("expected language fa, got %q", got)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("expected default model, got %q", got)
		}
		if _, hdr, err := r.FormFile("file"); err != nil || hdr.Filename != "normalized.wav" {
			t.Errorf("expected file part named normalized.wav, err=%v", err)
		}
	})

	p := NewOpenAISTT(OpenAISTTConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	resp, err := p.Transcribe(context.Background(), TranscriptionRequest{FilePath: writeAudio(t), Language: "fa-IR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "salam donya" {
		t.Fatalf("expected trimmed text, got %q", resp.Text)
	}
	if resp.Duration != 1.5 {
		t.Fatalf("expected duration 1.5, got %v", resp.Duration)
	}
}

func TestOpenAISTTEmptyTextIsNoSpeech(t *testing.T) {
	srv := whisperServer(t, http.StatusOK, `{"text":"   "}`, nil)
	p := NewOpenAISTT(OpenAISTTConfig{BaseURL: srv.URL + "/v1"})

	_, err := p.Transcribe(context.Background(), TranscriptionRequest{FilePath: writeAudio(t), Language: "fa-IR"})
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
}

func TestOpenAISTTBackendFailure(t *testing.T) {
	srv := whisperServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, nil)
	p := NewOpenAISTT(OpenAISTTConfig{APIKey: "nope", BaseURL: srv.URL + "/v1"})

	_, err := p.Transcribe(context.Background(), TranscriptionRequest{FilePath: writeAudio(t), Language: "fa-IR"})
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if errors.Is(err, ErrNoSpeech) {
		t.Fatal("backend failure must not look like unrecognizable audio")
	}
}

func TestLocalSTTUsesWhisperServer(t *testing.T) {
	srv := whisperServer(t, http.StatusOK, `{"text":"hello"}`, func(r *http.Request) {
		if r.Header.Get("Authorization") != "" && r.Header.Get("Authorization") != "Bearer " {
			t.Errorf("local backend should not send an API key, got %q", r.Header.Get("Authorization"))
		}
	})
	p := NewLocalSTT(LocalSTTConfig{BaseURL: srv.URL})
	if p.Name() != "local-whisper" {
		t.Fatalf("unexpected name %s", p.Name())
	}
	resp, err := p.Transcribe(context.Background(), TranscriptionRequest{FilePath: writeAudio(t), Language: "en-US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hello" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}

type fakeRecognizer struct {
	resp *speechpb.RecognizeResponse
	err  error
	got  *speechpb.RecognizeRequest
}

func (f *fakeRecognizer) Recognize(_ context.Context, req *speechpb.RecognizeRequest, _ ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.got = req
	return f.resp, f.err
}

func (f *fakeRecognizer) Close() error { return nil }

func TestGoogleSTTTranscribe(t *testing.T) {
	fake := &fakeRecognizer{resp: &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "salam", Confidence: 0.9}, {Transcript: "salaam"}}},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " donya ", Confidence: 0.7}}},
		},
	}}
	g := &GoogleSTT{client: fake}

	resp, err := g.Transcribe(context.Background(), TranscriptionRequest{
		FilePath:   writeAudio(t),
		Language:   "fa-IR",
		SampleRate: 16000,
		Channels:   1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "salam donya" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.Confidence < 0.79 || resp.Confidence > 0.81 {
		t.Fatalf("expected averaged confidence 0.8, got %v", resp.Confidence)
	}

	cfg := fake.got.GetConfig()
	if cfg.GetLanguageCode() != "fa-IR" || cfg.GetSampleRateHertz() != 16000 || cfg.GetAudioChannelCount() != 1 {
		t.Fatalf("unexpected recognition config %+v", cfg)
	}
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Fatalf("expected LINEAR16, got %v", cfg.GetEncoding())
	}
	if len(fake.got.GetAudio().GetContent()) == 0 {
		t.Fatal("expected audio content to be sent inline")
	}
}

func TestGoogleSTTOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		fake    *fakeRecognizer
		wantErr error
	}{
		{"no results", &fakeRecognizer{resp: &speechpb.RecognizeResponse{}}, ErrNoSpeech},
		{"empty alternative", &fakeRecognizer{resp: &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{{}}}}, ErrNoSpeech},
		{"rpc failure", &fakeRecognizer{err: errors.New("rpc error: code = PermissionDenied")}, ErrBackend},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &GoogleSTT{client: tc.fake}
			_, err := g.Transcribe(context.Background(), TranscriptionRequest{FilePath: writeAudio(t), Language: "fa-IR"})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestMissingFileIsNotNoSpeech(t *testing.T) {
	g := &GoogleSTT{client: &fakeRecognizer{}}
	_, err := g.Transcribe(context.Background(), TranscriptionRequest{FilePath: filepath.Join(t.TempDir(), "gone.wav")})
	if err == nil || errors.Is(err, ErrNoSpeech) || errors.Is(err, ErrBackend) {
		t.Fatalf("expected plain read error, got %v", err)
	}
}

func TestMockSTT(t *testing.T) {
	path := writeAudio(t)
	resp, err := NewMockSTT("hello").Transcribe(context.Background(), TranscriptionRequest{FilePath: path, Language: "en-US"})
	if err != nil || resp.Text != "hello" {
		t.Fatalf("unexpected result %+v, %v", resp, err)
	}
	if _, err := NewMockSTT("").Transcribe(context.Background(), TranscriptionRequest{FilePath: path}); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
}

func TestBaseLanguage(t *testing.T) {
	for in, want := range map[string]string{"fa-IR": "fa", "en_US": "en", "DE": "de", "": ""} {
		if got := baseLanguage(in); got != want {
			t.Fatalf("baseLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewBackends(t *testing.T) {
	for backend, want := range map[string]string{"openai": "openai-whisper", "local": "local-whisper", "mock": "mock"} {
		p, err := New(context.Background(), Options{Backend: backend})
		if err != nil {
			t.Fatalf("%s: %v", backend, err)
		}
		if p.Name() != want {
			t.Fatalf("%s: expected %s, got %s", backend, want, p.Name())
		}
	}
	if _, err := New(context.Background(), Options{Backend: "telepathy"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
