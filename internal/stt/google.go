package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// GoogleSTTConfig holds configuration for the Google Cloud Speech-to-Text backend.
// With neither field set the client uses Application Default Credentials.
type GoogleSTTConfig struct {
	APIKey          string
	CredentialsFile string
}

type recognizeClient interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// GoogleSTT sends the normalized audio to the synchronous Recognize RPC.
type GoogleSTT struct {
	client recognizeClient
}

// NewGoogleSTT dials the Speech-to-Text API.
func NewGoogleSTT(ctx context.Context, cfg GoogleSTTConfig) (*GoogleSTT, error) {
	var opts []option.ClientOption
	switch {
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &GoogleSTT{client: client}, nil
}

func (g *GoogleSTT) Name() string { return "google-speech" }

func (g *GoogleSTT) Close() error { return g.client.Close() }

func (g *GoogleSTT) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	data, err := readAudio(req.FilePath)
	if err != nil {
		return nil, err
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		LanguageCode: req.Language,
	}
	if req.SampleRate > 0 {
		cfg.SampleRateHertz = int32(req.SampleRate)
	}
	if req.Channels > 0 {
		cfg.AudioChannelCount = int32(req.Channels)
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s recognize: %v", ErrBackend, g.Name(), err)
	}

	text, confidence := bestTranscript(resp)
	if text == "" {
		return nil, ErrNoSpeech
	}

	out := &TranscriptionResponse{
		Text:       text,
		Language:   req.Language,
		Confidence: confidence,
	}
	if d := resp.GetTotalBilledTime(); d != nil {
		out.Duration = d.AsDuration().Seconds()
	}
	return out, nil
}

// bestTranscript joins the top alternative of every result and averages
// their confidence.
func bestTranscript(resp *speechpb.RecognizeResponse) (string, float64) {
	var parts []string
	var confidence float64
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		t := strings.TrimSpace(alts[0].GetTranscript())
		if t == "" {
			continue
		}
		parts = append(parts, t)
		confidence += float64(alts[0].GetConfidence())
	}
	if len(parts) == 0 {
		return "", 0
	}
	return strings.Join(parts, " "), confidence / float64(len(parts))
}
