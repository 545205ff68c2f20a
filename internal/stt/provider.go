package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrNoSpeech means the backend answered but derived no text from the audio.
	ErrNoSpeech = errors.New("speech could not be understood")
	// ErrBackend wraps failures reaching or using the recognition backend.
	ErrBackend = errors.New("speech recognition backend failed")
)

// TranscriptionRequest holds the parameters for audio transcription.
type TranscriptionRequest struct {
	FilePath   string `json:"file_path"`
	Language   string `json:"language,omitempty"` // BCP-47 locale, e.g. "fa-IR"
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
}

// TranscriptionResponse holds the transcription result.
type TranscriptionResponse struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Duration   float64 `json:"duration"`
	Confidence float64 `json:"confidence,omitempty"`
}

// STTProvider is the interface for speech-to-text backends.
type STTProvider interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error)
	Name() string
}

// Options configures the backend returned by New.
type Options struct {
	Backend               string
	GoogleAPIKey          string
	GoogleCredentialsFile string
	OpenAIKey             string
	OpenAIBaseURL         string
	OpenAIModel           string
	LocalBaseURL          string
	MockText              string
}

// New builds the provider named by opts.Backend.
func New(ctx context.Context, opts Options) (STTProvider, error) {
	switch opts.Backend {
	case "google", "":
		return NewGoogleSTT(ctx, GoogleSTTConfig{
			APIKey:          opts.GoogleAPIKey,
			CredentialsFile: opts.GoogleCredentialsFile,
		})
	case "openai":
		return NewOpenAISTT(OpenAISTTConfig{
			APIKey:  opts.OpenAIKey,
			BaseURL: opts.OpenAIBaseURL,
			Model:   opts.OpenAIModel,
		}), nil
	case "local":
		return NewLocalSTT(LocalSTTConfig{BaseURL: opts.LocalBaseURL}), nil
	case "mock":
		return NewMockSTT(opts.MockText), nil
	default:
		return nil, fmt.Errorf("unknown stt backend %q", opts.Backend)
	}
}

// readAudio loads the whole normalized file; recognition is not streamed.
func readAudio(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	return data, nil
}

// baseLanguage reduces a locale such as "fa-IR" to its language subtag "fa".
func baseLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		return strings.ToLower(locale[:i])
	}
	return strings.ToLower(locale)
}
