package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"
)

func TestPCM16(t *testing.T) {
	tests := []struct {
		sample float32
		want   int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2, 32767},
		{-3, -32768},
		{0.5, 16384},
		{-0.5, -16384},
	}
	for _, tt := range tests {
		if got := PCM16(tt.sample); got != tt.want {
			t.Errorf("PCM16(%v) = %d, want %d", tt.sample, got, tt.want)
		}
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	samples := make([]float32, 480)
	data, err := EncodeWAV(samples, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(data) != 44+2*len(samples) {
		t.Fatalf("expected %d bytes, got %d", 44+2*len(samples), len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[12:16]) != "fmt " {
		t.Errorf("unexpected container tags %q", data[0:16])
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != uint32(len(data)-8) {
		t.Errorf("riff size = %d, want %d", got, len(data)-8)
	}

	fields := []struct {
		name   string
		offset int
		size   int
		want   uint32
	}{
		{"format tag", 20, 2, 1},
		{"channels", 22, 2, 1},
		{"sample rate", 24, 4, SampleRate},
		{"byte rate", 28, 4, SampleRate * 2},
		{"block align", 32, 2, 2},
		{"bits per sample", 34, 2, 16},
		{"data length", 40, 4, uint32(2 * len(samples))},
	}
	for _, f := range fields {
		var got uint32
		if f.size == 2 {
			got = uint32(binary.LittleEndian.Uint16(data[f.offset:]))
		} else {
			got = binary.LittleEndian.Uint32(data[f.offset:])
		}
		if got != f.want {
			t.Errorf("%s = %d, want %d", f.name, got, f.want)
		}
	}
	if string(data[36:40]) != "data" {
		t.Errorf("expected data chunk at 36, got %q", data[36:40])
	}
	if !bytes.Equal(data[44:], make([]byte, 2*len(samples))) {
		t.Error("expected all-zero payload")
	}
}

func TestEncodeWAVDeterministic(t *testing.T) {
	samples := []float32{0, 0.25, -0.25, 1, -1, 0.999}
	a, err := EncodeWAV(samples, SampleRate)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeWAV(samples, SampleRate)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("expected identical output for identical input")
	}

	if got := int16(binary.LittleEndian.Uint16(a[44+3*2:])); got != 32767 {
		t.Errorf("sample 1.0 encoded as %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(a[44+4*2:])); got != -32768 {
		t.Errorf("sample -1.0 encoded as %d", got)
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	if _, err := EncodeWAV([]float32{0, nan}, SampleRate); !errors.Is(err, ErrNonFiniteSample) {
		t.Errorf("expected ErrNonFiniteSample for NaN, got %v", err)
	}
	if _, err := EncodeWAV([]float32{inf}, SampleRate); !errors.Is(err, ErrNonFiniteSample) {
		t.Errorf("expected ErrNonFiniteSample for Inf, got %v", err)
	}
	if _, err := EncodeWAV(nil, 0); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
}

func TestDecodeWAV(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1}
	data, err := EncodeWAV(samples, SampleRate)
	if err != nil {
		t.Fatal(err)
	}

	pcm, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if pcm.SampleRate != SampleRate || pcm.Channels != 1 {
		t.Errorf("unexpected format %d Hz %d ch", pcm.SampleRate, pcm.Channels)
	}
	if len(pcm.Samples) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(pcm.Samples))
	}
	for i, s := range samples {
		if pcm.Samples[i] != PCM16(s) {
			t.Errorf("sample %d = %d, want %d", i, pcm.Samples[i], PCM16(s))
		}
	}
	if got := pcm.Bytes(); !bytes.Equal(got, data[44:]) {
		t.Error("expected PCM bytes to match the WAV payload")
	}

	if _, err := DecodeWAV(bytes.NewReader([]byte("not a wav file at all, definitely not"))); err == nil {
		t.Error("expected error for invalid data")
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		samples int
		rate    int
		speed   float64
		want    time.Duration
	}{
		{24000, 24000, 1, time.Second},
		{12000, 24000, 1, 500 * time.Millisecond},
		{24000, 24000, 2, 500 * time.Millisecond},
		{0, 24000, 1, 0},
		{24000, 24000, 0, 0},
	}
	for _, tt := range tests {
		if got := Duration(tt.samples, tt.rate, tt.speed); got != tt.want {
			t.Errorf("Duration(%d, %d, %v) = %v, want %v", tt.samples, tt.rate, tt.speed, got, tt.want)
		}
	}
}

func TestStore(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	uri, err := store.Write("chunk-0", []byte("abc"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.HasPrefix(uri, "file://") {
		t.Errorf("expected file uri, got %s", uri)
	}

	path, err := PathFromURI(uri)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "abc" {
		t.Fatalf("read back %q, %v", got, err)
	}

	other, _ := store.Write("chunk-0", []byte("abc"))
	if other == uri {
		t.Error("expected unique file names")
	}

	if err := store.Remove(uri); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected file to be removed")
	}
	if err := store.Remove(uri); err != nil {
		t.Errorf("removing a missing file should succeed, got %v", err)
	}
	if _, err := PathFromURI("https://example.com/a.wav"); !errors.Is(err, ErrNotFileURI) {
		t.Errorf("expected ErrNotFileURI, got %v", err)
	}
}

func TestMockPlayerFinishes(t *testing.T) {
	f := &MockFactory{FinishAfter: 10 * time.Millisecond}
	p, err := f.CreatePlayer("file:///tmp/a.wav")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Play(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-p.Finished():
	case <-time.After(time.Second):
		t.Fatal("expected finish event")
	}
	if played := f.Played(); len(played) != 1 || played[0] != "file:///tmp/a.wav" {
		t.Errorf("unexpected played list %v", played)
	}
}

func TestMockPlayerStopPreventsFinish(t *testing.T) {
	f := &MockFactory{FinishAfter: 50 * time.Millisecond}
	p, _ := f.CreatePlayer("a")
	_ = p.Play()
	_ = p.Stop()

	select {
	case <-p.Finished():
		t.Fatal("finish should not fire after Stop")
	case <-time.After(100 * time.Millisecond):
	}
	_ = p.Release()
	if err := p.Play(); !errors.Is(err, ErrPlayerClosed) {
		t.Errorf("expected ErrPlayerClosed, got %v", err)
	}
}

func TestMockPlayerClipDuration(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	data, _ := EncodeWAV(make([]float32, 2400), SampleRate)
	uri, _ := store.Write("clip", data)

	f := &MockFactory{UseClipDuration: true, Speedup: 10, NoFinishEvent: true}
	p, err := f.CreatePlayer(uri)
	if err != nil {
		t.Fatal(err)
	}
	if p.Finished() != nil {
		t.Error("expected nil finish channel")
	}
	if mp := f.Players()[0]; mp.length != 10*time.Millisecond {
		t.Errorf("expected 10ms simulated length, got %v", mp.length)
	}
}
