package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

// FFmpeg shells out to ffmpeg, which reads any container and codec it was
// built with.
type FFmpeg struct {
	cmd    []string
	target Format
}

// NewFFmpeg parses command (e.g. "ffmpeg -loglevel error") into argv.
func NewFFmpeg(command string, target Format) (*FFmpeg, error) {
	if strings.TrimSpace(command) == "" {
		command = "ffmpeg"
	}
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse ffmpeg command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("ffmpeg command is empty")
	}
	return &FFmpeg{cmd: args, target: target}, nil
}

func (f *FFmpeg) Name() string { return "ffmpeg" }

func (f *FFmpeg) args(src, dst string) []string {
	args := append([]string{}, f.cmd[1:]...)
	return append(args,
		"-y",
		"-i", src,
		"-vn",
		"-ac", strconv.Itoa(f.target.Channels),
		"-ar", strconv.Itoa(f.target.SampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		dst,
	)
}

func (f *FFmpeg) Transcode(ctx context.Context, src, dst string) (*Info, error) {
	cmd := exec.CommandContext(ctx, f.cmd[0], f.args(src, dst)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAudio, lastLine(stderr.String()))
		}
		return nil, fmt.Errorf("run ffmpeg: %w", err)
	}

	info := &Info{Backend: f.Name()}
	if rate, chans, depth, ok := wavFormatOf(src); ok {
		info.SourceSampleRate = rate
		info.SourceChannels = chans
		info.SourceBitDepth = depth
	}

	out, err := os.Open(dst)
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg output: %w", err)
	}
	defer out.Close()
	dec := wav.NewDecoder(out)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: ffmpeg produced no audio", ErrUnsupportedAudio)
	}
	info.SampleRate = int(dec.SampleRate)
	info.Channels = int(dec.NumChans)
	if info.SourceSampleRate > 0 {
		info.Resampled = info.SourceSampleRate != info.SampleRate
		info.Remixed = info.SourceChannels != info.Channels
	}
	return info, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return "ffmpeg could not decode input"
	}
	return s
}

// Auto uses Native for PCM WAV input and falls back to FFmpeg for every
// other container, or for WAV encodings Native cannot read.
type Auto struct {
	native *Native
	ffmpeg *FFmpeg
}

func NewAuto(native *Native, ffmpeg *FFmpeg) *Auto {
	return &Auto{native: native, ffmpeg: ffmpeg}
}

func (a *Auto) Name() string { return "auto" }

func (a *Auto) Transcode(ctx context.Context, src, dst string) (*Info, error) {
	wavInput, err := isWAV(src)
	if err != nil {
		return nil, err
	}
	if wavInput {
		info, err := a.native.Transcode(ctx, src, dst)
		if err == nil || !errors.Is(err, ErrUnsupportedAudio) {
			return info, err
		}
	}
	return a.ffmpeg.Transcode(ctx, src, dst)
}
