package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// subformatPCM is KSDATAFORMAT_SUBTYPE_PCM as stored in a WAVE_FORMAT_EXTENSIBLE
// fmt chunk.
var subformatPCM = [16]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}

// Native decodes and re-encodes RIFF/WAVE PCM in process with go-audio.
// Channels are remixed by averaging and the rate is changed by linear
// interpolation, each only when the input differs from the target.
type Native struct {
	target Format
}

func NewNative(target Format) *Native {
	return &Native{target: target}
}

func (n *Native) Name() string { return "native" }

func (n *Native) Transcode(ctx context.Context, src, dst string) (*Info, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	dec := wav.NewDecoder(in)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav file", ErrUnsupportedAudio)
	}
	switch dec.WavAudioFormat {
	case wavFormatPCM:
	case wavFormatExtensible:
		sub, err := extensibleSubformat(src)
		if err != nil {
			return nil, fmt.Errorf("%w: read extensible fmt chunk: %v", ErrUnsupportedAudio, err)
		}
		if sub != subformatPCM {
			return nil, fmt.Errorf("%w: extensible wav sub-format %x is not integer PCM", ErrUnsupportedAudio, sub[:4])
		}
	default:
		return nil, fmt.Errorf("%w: wav format %d is not integer PCM", ErrUnsupportedAudio, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAudio, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info := &Info{
		Backend:          n.Name(),
		SourceSampleRate: int(dec.SampleRate),
		SourceChannels:   int(dec.NumChans),
		SourceBitDepth:   int(dec.BitDepth),
		SampleRate:       n.target.SampleRate,
		Channels:         n.target.Channels,
	}

	data := to16Bit(buf.Data, info.SourceBitDepth)
	if info.SourceChannels != n.target.Channels || info.SourceSampleRate != n.target.SampleRate {
		chans := deinterleave(data, info.SourceChannels)
		if info.SourceChannels != n.target.Channels {
			chans = remix(chans, n.target.Channels)
			info.Remixed = true
		}
		if info.SourceSampleRate != n.target.SampleRate {
			for i := range chans {
				chans[i] = resample(chans[i], info.SourceSampleRate, n.target.SampleRate)
			}
			info.Resampled = true
		}
		data = interleave(chans)
	}

	if err := writeWAV(dst, data, n.target); err != nil {
		return nil, err
	}
	return info, nil
}

// extensibleSubformat returns the sub-format GUID of a WAVE_FORMAT_EXTENSIBLE
// file. go-audio skips that part of the fmt chunk, so it is read here.
func extensibleSubformat(path string) ([16]byte, error) {
	var guid [16]byte

	f, err := os.Open(path)
	if err != nil {
		return guid, err
	}
	defer f.Close()

	p := riff.New(f)
	if err := p.ParseHeaders(); err != nil {
		return guid, err
	}
	for {
		ch, err := p.NextChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return guid, errors.New("no fmt chunk")
			}
			return guid, err
		}
		if ch.ID != riff.FmtID {
			ch.Drain()
			continue
		}
		// 16 bytes of WAVEFORMAT, cbSize, 22 bytes of extension.
		if ch.Size < 40 {
			return guid, fmt.Errorf("fmt chunk is %d bytes, too short for an extensible header", ch.Size)
		}
		body := make([]byte, 40)
		if _, err := io.ReadFull(ch, body); err != nil {
			return guid, err
		}
		copy(guid[:], body[24:40])
		return guid, nil
	}
}

func writeWAV(path string, data []int, f Format) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	enc := wav.NewEncoder(out, f.SampleRate, BitDepth, f.Channels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		out.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return out.Close()
}

// to16Bit rescales samples decoded at depth bits to signed 16-bit range.
// 8-bit WAV data is unsigned.
func to16Bit(data []int, depth int) []int {
	if depth == BitDepth {
		return data
	}
	out := make([]int, len(data))
	for i, s := range data {
		switch {
		case depth == 8:
			out[i] = (s - 128) << 8
		case depth > BitDepth:
			out[i] = s >> (depth - BitDepth)
		default:
			out[i] = s << (BitDepth - depth)
		}
	}
	return out
}

func deinterleave(data []int, channels int) [][]float64 {
	frames := len(data) / channels
	out := make([][]float64, channels)
	for c := range out {
		out[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			out[c][i] = float64(data[i*channels+c])
		}
	}
	return out
}

func interleave(chans [][]float64) []int {
	if len(chans) == 0 {
		return nil
	}
	frames := len(chans[0])
	out := make([]int, frames*len(chans))
	for i := 0; i < frames; i++ {
		for c := range chans {
			out[i*len(chans)+c] = clamp16(chans[c][i])
		}
	}
	return out
}

// remix averages all channels down to mono and, for targets wider than
// mono, copies that mix into every output channel.
func remix(chans [][]float64, target int) [][]float64 {
	frames := len(chans[0])
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := range chans {
			sum += chans[c][i]
		}
		mono[i] = sum / float64(len(chans))
	}

	out := make([][]float64, target)
	out[0] = mono
	for c := 1; c < target; c++ {
		out[c] = append([]float64(nil), mono...)
	}
	return out
}

// resample converts samples from rate `from` to rate `to` by linear interpolation.
func resample(samples []float64, from, to int) []float64 {
	if from == to || len(samples) == 0 {
		return samples
	}
	n := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}

func clamp16(v float64) int {
	r := math.Round(v)
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < math.MinInt16 {
		return math.MinInt16
	}
	return int(r)
}
