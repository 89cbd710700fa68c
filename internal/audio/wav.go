package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Output format of every synthesized clip.
const (
	SampleRate = 24000
	BitDepth   = 16
	Channels   = 1

	wavFormatPCM = 1
)

var (
	ErrNonFiniteSample = errors.New("waveform contains a non-finite sample")
	ErrInvalidWAV      = errors.New("not a valid WAV file")
	ErrInvalidRate     = errors.New("sample rate must be positive")
)

// PCM16 converts one sample in [-1, 1] to a signed 16-bit value.
// Positive samples scale by 32767 and negative samples by 32768 so that
// both 1.0 and -1.0 reach the ends of the range.
func PCM16(sample float32) int16 {
	s := float64(sample)
	var v float64
	if s < 0 {
		v = math.Round(s * 32768)
	} else {
		v = math.Round(s * 32767)
	}
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// EncodeWAV returns a mono 16-bit PCM RIFF/WAVE file holding samples.
// The output is deterministic for a given input.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidRate
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return nil, fmt.Errorf("%w at index %d", ErrNonFiniteSample, i)
		}
		data[i] = int(PCM16(s))
	}

	buf := &writeSeeker{}
	enc := wav.NewEncoder(buf, sampleRate, BitDepth, Channels, wavFormatPCM)
	err := enc.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: Channels},
		SourceBitDepth: BitDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}
	return buf.Bytes(), nil
}

// PCM is decoded 16-bit audio.
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the playback length of the decoded audio.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate <= 0 || p.Channels <= 0 {
		return 0
	}
	frames := len(p.Samples) / p.Channels
	return time.Duration(frames) * time.Second / time.Duration(p.SampleRate)
}

// Bytes returns the samples as signed 16-bit little-endian PCM.
func (p *PCM) Bytes() []byte {
	out := make([]byte, len(p.Samples)*2)
	for i, s := range p.Samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// DecodeWAV reads a 16-bit PCM WAV stream.
func DecodeWAV(r io.ReadSeeker) (*PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode pcm: %w", err)
	}
	if dec.BitDepth != BitDepth {
		return nil, fmt.Errorf("%w: %d-bit audio", ErrInvalidWAV, dec.BitDepth)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return &PCM{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// Duration returns the playback length in milliseconds of sampleCount
// samples at sampleRate, divided by the speed factor. speed must be > 0.
func Duration(sampleCount, sampleRate int, speed float64) time.Duration {
	if sampleCount <= 0 || sampleRate <= 0 || !(speed > 0) {
		return 0
	}
	ms := float64(sampleCount) / float64(sampleRate) * 1000 / speed
	return time.Duration(math.Round(ms)) * time.Millisecond
}

// writeSeeker is an in-memory io.WriteSeeker for the WAV encoder, which
// seeks back to patch chunk sizes.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, errors.New("invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(next)
	return next, nil
}

func (w *writeSeeker) Bytes() []byte {
	return w.buf
}
