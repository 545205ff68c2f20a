// Package transcription runs one upload through store, transcode and
// recognize, and always cleans up after itself.
package transcription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/speech2text/internal/audit"
	"github.com/nikhilbhutani/speech2text/internal/metrics"
	"github.com/nikhilbhutani/speech2text/internal/scratch"
	"github.com/nikhilbhutani/speech2text/internal/stt"
	"github.com/nikhilbhutani/speech2text/internal/transcode"
)

// Pipeline stages.
const (
	StageStore     = "store"
	StageTranscode = "transcode"
	StageRecognize = "recognize"
)

// Request outcomes, used as metric labels, usage counter keys and audit values.
const (
	OutcomeSuccess          = "success"
	OutcomeUnsupportedAudio = "unsupported_audio"
	OutcomeNoSpeech         = "no_speech"
	OutcomeBackendError     = "backend_error"
	OutcomeInternalError    = "internal_error"
)

// Outcomes lists every outcome in a stable order.
var Outcomes = []string{
	OutcomeSuccess,
	OutcomeUnsupportedAudio,
	OutcomeNoSpeech,
	OutcomeBackendError,
	OutcomeInternalError,
}

// StageError records which stage of the pipeline failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Outcome classifies err. A nil error is a success.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, transcode.ErrUnsupportedAudio):
		return OutcomeUnsupportedAudio
	case errors.Is(err, stt.ErrNoSpeech):
		return OutcomeNoSpeech
	case errors.Is(err, stt.ErrBackend):
		return OutcomeBackendError
	default:
		return OutcomeInternalError
	}
}

// AuditLogger persists request metadata.
type AuditLogger interface {
	Log(ctx context.Context, e audit.Entry) error
}

// UsageRecorder counts requests per outcome.
type UsageRecorder interface {
	Record(ctx context.Context, outcome string) error
}

// Upload is one received audio file.
type Upload struct {
	Filename  string
	Data      io.Reader
	RequestID string
	Started   time.Time // zero means now
}

// Result is a successful transcription.
type Result struct {
	Text       string
	Language   string
	Confidence float64
	Recognizer string
	Audio      *transcode.Info
	SizeBytes  int64
	Elapsed    time.Duration
}

// Options carries the pipeline's configuration and optional collaborators.
type Options struct {
	Language string
	Target   transcode.Format

	Metrics *metrics.Metrics
	Audit   AuditLogger
	Usage   UsageRecorder
}

type Service struct {
	store      *scratch.Store
	transcoder transcode.Transcoder
	recognizer stt.STTProvider
	language   string
	target     transcode.Format

	metrics *metrics.Metrics
	audit   AuditLogger
	usage   UsageRecorder
	now     func() time.Time
}

func NewService(store *scratch.Store, transcoder transcode.Transcoder, recognizer stt.STTProvider, opts Options) *Service {
	return &Service{
		store:      store,
		transcoder: transcoder,
		recognizer: recognizer,
		language:   opts.Language,
		target:     opts.Target,
		metrics:    opts.Metrics,
		audit:      opts.Audit,
		usage:      opts.Usage,
		now:        time.Now,
	}
}

// Transcribe stores, normalizes and recognizes the upload. The request
// workspace is removed before Transcribe returns, whatever the outcome.
func (s *Service) Transcribe(ctx context.Context, up Upload) (*Result, error) {
	started := up.Started
	if started.IsZero() {
		started = s.now()
	}

	if s.metrics != nil {
		s.metrics.InFlight.Inc()
		defer s.metrics.InFlight.Dec()
	}

	res := &Result{Language: s.language, Recognizer: s.recognizer.Name()}
	err := s.run(ctx, up, res)
	res.Elapsed = s.now().Sub(started)

	s.record(ctx, up, res, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, up Upload, res *Result) error {
	stageStart := s.now()

	ws, err := s.store.Acquire()
	if err != nil {
		return &StageError{Stage: StageStore, Err: err}
	}
	defer func() {
		if err := ws.Release(); err != nil {
			slog.Error("error cleaning up temporary files", "workspace", ws.ID, "error", err)
			if s.metrics != nil {
				s.metrics.CleanupErrors.Inc()
			}
		}
	}()

	name, err := scratch.UploadName(up.Filename)
	if err != nil {
		return &StageError{Stage: StageStore, Err: err}
	}
	src, n, err := ws.WriteFile(name, up.Data)
	res.SizeBytes = n
	if err != nil {
		return &StageError{Stage: StageStore, Err: err}
	}
	if s.metrics != nil {
		s.metrics.UploadSize.Observe(float64(n))
	}
	s.metrics.ObserveStage(StageStore, s.now().Sub(stageStart))

	stageStart = s.now()
	touch(ws)
	dst := ws.Path(scratch.NormalizedName)
	ws.Track(dst)
	info, err := s.transcoder.Transcode(ctx, src, dst)
	if err != nil {
		return &StageError{Stage: StageTranscode, Err: err}
	}
	res.Audio = info
	s.metrics.ObserveStage(StageTranscode, s.now().Sub(stageStart))

	stageStart = s.now()
	touch(ws)
	resp, err := s.recognizer.Transcribe(ctx, stt.TranscriptionRequest{
		FilePath:   dst,
		Language:   s.language,
		SampleRate: s.target.SampleRate,
		Channels:   s.target.Channels,
	})
	if err != nil {
		return &StageError{Stage: StageRecognize, Err: err}
	}
	s.metrics.ObserveStage(StageRecognize, s.now().Sub(stageStart))

	res.Text = resp.Text
	res.Confidence = resp.Confidence
	if resp.Language != "" {
		res.Language = resp.Language
	}
	return nil
}

// touch keeps a long request's workspace out of the orphan sweep.
func touch(ws *scratch.Workspace) {
	if err := ws.Touch(); err != nil {
		slog.Warn("failed to refresh workspace", "workspace", ws.ID, "error", err)
	}
}

// record reports the request to metrics, usage and audit. Failures there are
// logged and never change the response.
func (s *Service) record(ctx context.Context, up Upload, res *Result, err error) {
	outcome := Outcome(err)
	s.metrics.RecordOutcome(outcome)

	// The client may already be gone; bookkeeping should still land.
	ctx = context.WithoutCancel(ctx)

	if s.usage != nil {
		if uerr := s.usage.Record(ctx, outcome); uerr != nil {
			slog.Warn("failed to record usage", "outcome", outcome, "error", uerr)
		}
	}

	if s.audit != nil {
		entry := audit.Entry{
			RequestID:  up.RequestID,
			Filename:   up.Filename,
			SizeBytes:  res.SizeBytes,
			Outcome:    outcome,
			Transcoder: s.transcoder.Name(),
			Recognizer: res.Recognizer,
			Language:   s.language,
			TextLength: len([]rune(res.Text)),
			ElapsedMs:  res.Elapsed.Milliseconds(),
		}
		var se *StageError
		if errors.As(err, &se) {
			entry.Stage = se.Stage
		}
		if err != nil {
			entry.ErrorDetail = err.Error()
		}
		if aerr := s.audit.Log(ctx, entry); aerr != nil {
			slog.Warn("failed to write audit entry", "request_id", up.RequestID, "error", aerr)
		}
	}

	if err != nil {
		slog.Warn("transcription failed", "request_id", up.RequestID, "outcome", outcome, "error", err)
		return
	}
	slog.Info("transcription completed",
		"request_id", up.RequestID,
		"recognizer", res.Recognizer,
		"chars", len([]rune(res.Text)),
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
}
