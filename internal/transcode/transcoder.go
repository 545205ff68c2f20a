package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// ErrUnsupportedAudio is returned when the input cannot be decoded as audio.
// Callers treat it as a client error.
var ErrUnsupportedAudio = errors.New("unsupported or corrupt audio")

// Format is the canonical PCM layout audio is normalized to.
type Format struct {
	SampleRate int
	Channels   int
}

// BitDepth of every normalized file.
const BitDepth = 16

// Info describes what a transcode did. The Source fields, Resampled and
// Remixed stay zero when the input format could not be inspected.
type Info struct {
	Backend          string
	SourceSampleRate int
	SourceChannels   int
	SourceBitDepth   int
	SampleRate       int
	Channels         int
	Resampled        bool
	Remixed          bool
}

// Transcoder converts the audio at src into a PCM WAV at dst.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) (*Info, error)
	Name() string
}

// Options selects and configures a backend.
type Options struct {
	Backend       string // "auto", "native" or "ffmpeg"
	FFmpegCommand string
	Target        Format
}

// New returns the transcoder for opts.Backend.
func New(opts Options) (Transcoder, error) {
	if opts.Target.SampleRate <= 0 || opts.Target.Channels <= 0 {
		return nil, fmt.Errorf("invalid target format %+v", opts.Target)
	}

	switch opts.Backend {
	case "native":
		return NewNative(opts.Target), nil
	case "ffmpeg":
		return NewFFmpeg(opts.FFmpegCommand, opts.Target)
	case "", "auto":
		ff, err := NewFFmpeg(opts.FFmpegCommand, opts.Target)
		if err != nil {
			return nil, err
		}
		return NewAuto(NewNative(opts.Target), ff), nil
	default:
		return nil, fmt.Errorf("unknown transcoder backend %q", opts.Backend)
	}
}

// wavFormatOf reads the format of a WAV file. ok is false for anything go-audio
// cannot parse.
func wavFormatOf(path string) (rate, channels, depth int, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, false
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, 0, 0, false
	}
	return int(dec.SampleRate), int(dec.NumChans), int(dec.BitDepth), true
}

// isWAV reports whether the file at path starts with a RIFF/WAVE header.
func isWAV(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	hdr := make([]byte, 12)
	if _, err := io.ReadFull(f, hdr); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, fmt.Errorf("read input header: %w", err)
	}
	return string(hdr[0:4]) == "RIFF" && string(hdr[8:12]) == "WAVE", nil
}
