package audio

import "errors"

// ErrEndOfStream is returned by Source.Read once the underlying
// channel is exhausted (spec.md §4.4 step 1: "source may also EOF,
// ending the loop").
var ErrEndOfStream = errors.New("audio: end of stream")

// Source is the capability set the detector polls (spec.md §4.4). A
// live PCM/ALSA capture backend is out of scope per spec.md §1; the
// only production-shaped implementation here is the WAV-backed Source
// used by tests and file-driven fixtures.
type Source interface {
	// Read fills buf with the next block of samples, blocking if
	// necessary. Returns ErrEndOfStream once exhausted.
	Read(buf []float32) error
	// SampleRate is the source's fixed sample rate in Hz.
	SampleRate() float64
	// NowNS returns a monotonic timestamp for the most recently read
	// block.
	NowNS() uint64
}
