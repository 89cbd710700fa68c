// Package audio encodes synthesized waveforms as WAV files and plays them
// back. Playback goes through oto/v3 when cgo is available; a mock
// factory simulates playback for tests and dry runs.
package audio
