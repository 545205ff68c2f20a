package handlers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/speech2text/internal/stt"
	"github.com/nikhilbhutani/speech2text/internal/transcode"
	"github.com/nikhilbhutani/speech2text/internal/transcription"
)

// UploadField is the multipart field carrying the audio file.
const UploadField = "audio_file"

const defaultMaxMemory = 32 << 20 // larger uploads spill to disk

const (
	detailNoSpeech    = "Speech Recognition could not understand the audio"
	detailBackend     = "Could not request results from the speech recognition service"
	detailUnsupported = "Unsupported or corrupt audio file"
	detailInternal    = "Could not process the uploaded audio"
	detailInvalidForm = "invalid multipart form"
)

// Transcriber runs the transcription pipeline.
type Transcriber interface {
	Transcribe(ctx context.Context, up transcription.Upload) (*transcription.Result, error)
}

type TranscribeHandler struct {
	svc       Transcriber
	maxMemory int64
}

func NewTranscribeHandler(svc Transcriber) *TranscribeHandler {
	return &TranscribeHandler{svc: svc, maxMemory: defaultMaxMemory}
}

type transcribeResponse struct {
	Transcription string `json:"transcription"`
	Time          string `json:"time"`
}

// Upload accepts one audio file and answers with its transcription.
func (h *TranscribeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		status, detail := formStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("failed to buffer upload", "error", err)
		}
		writeDetail(w, status, detail)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, UploadField+" file required")
		return
	}
	defer file.Close()

	res, err := h.svc.Transcribe(r.Context(), transcription.Upload{
		Filename:  header.Filename,
		Data:      file,
		RequestID: chimiddleware.GetReqID(r.Context()),
		Started:   start,
	})
	if err != nil {
		status, detail := errorStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("transcription failed", "filename", header.Filename, "error", err)
		}
		writeDetail(w, status, detail)
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{
		Transcription: res.Text,
		Time:          formatSeconds(time.Since(start)),
	})
}

// errorStatus maps a pipeline error to an HTTP status and client-facing detail.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, transcode.ErrUnsupportedAudio):
		return http.StatusBadRequest, detailUnsupported
	case errors.Is(err, stt.ErrNoSpeech):
		return http.StatusBadRequest, detailNoSpeech
	case errors.Is(err, stt.ErrBackend):
		return http.StatusInternalServerError, detailBackend
	default:
		return http.StatusInternalServerError, detailInternal
	}
}

// formStatus separates a bad request body from a failure to spill the
// upload to local disk.
func formStatus(err error) (int, string) {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return http.StatusInternalServerError, detailInternal
	}
	return http.StatusBadRequest, detailInvalidForm
}

// formatSeconds rounds half away from zero.
func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(math.Round(d.Seconds())))
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
