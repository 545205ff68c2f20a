package stt

import (
	"context"
	"os"
)

// MockSTT returns a fixed transcript. An empty text behaves like audio the
// backend could not understand.
type MockSTT struct {
	text string
}

func NewMockSTT(text string) *MockSTT {
	return &MockSTT{text: text}
}

func (m *MockSTT) Name() string { return "mock" }

func (m *MockSTT) Transcribe(_ context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	if _, err := os.Stat(req.FilePath); err != nil {
		return nil, err
	}
	if m.text == "" {
		return nil, ErrNoSpeech
	}
	return &TranscriptionResponse{Text: m.text, Language: req.Language}, nil
}
