package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// wavFormatIEEEFloat is the WAVE_FORMAT_IEEE_FLOAT format tag (spec.md
// §4.4's source is always mono 32-bit float per the test fixtures; no
// WAV parsing library exists anywhere in the retrieval pack, so this
// reader is hand-rolled against the RIFF/WAVE chunk layout directly).
const wavFormatIEEEFloat = 3

// WAVSource reads a mono, 32-bit IEEE-float WAV file as an audio
// Source, advancing its internal clock by the duration of each block
// read (mirroring the original WavAudioSource's _currentTime_ns
// bookkeeping).
type WAVSource struct {
	r          io.Reader
	sampleRate float64
	nowNS      uint64
	eof        bool
}

// OpenWAV parses the RIFF header of r and returns a ready-to-read
// WAVSource positioned at the start of the "data" chunk.
func OpenWAV(r io.Reader) (*WAVSource, error) {
	var riffHeader [12]byte
	if _, err := io.ReadFull(r, riffHeader[:]); err != nil {
		return nil, fmt.Errorf("audio: read riff header: %w", err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, fmt.Errorf("audio: not a RIFF/WAVE file")
	}

	var sampleRate uint32
	var channels, bitsPerSample uint16
	var formatTag uint16
	sawFmt := false

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			return nil, fmt.Errorf("audio: read chunk header: %w", err)
		}
		id := string(chunkHeader[0:4])
		size := binary.LittleEndian.Uint32(chunkHeader[4:8])

		if id == "fmt " {
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			formatTag = binary.LittleEndian.Uint16(body[0:2])
			channels = binary.LittleEndian.Uint16(body[2:4])
			sampleRate = binary.LittleEndian.Uint32(body[4:8])
			bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			sawFmt = true
			continue
		}
		if id == "data" {
			break
		}

		// Skip any other chunk (LIST, fact, ...), respecting WAV's
		// word-alignment padding.
		skip := int64(size)
		if size%2 != 0 {
			skip++
		}
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("audio: skip chunk %q: %w", id, err)
		}
	}

	if !sawFmt {
		return nil, fmt.Errorf("audio: missing fmt chunk")
	}
	if formatTag != wavFormatIEEEFloat || channels != 1 || bitsPerSample != 32 {
		return nil, fmt.Errorf("audio: unsupported format (tag=%d channels=%d bits=%d), want mono 32-bit float", formatTag, channels, bitsPerSample)
	}

	return &WAVSource{r: r, sampleRate: float64(sampleRate)}, nil
}

// SampleRate implements Source.
func (w *WAVSource) SampleRate() float64 { return w.sampleRate }

// NowNS implements Source.
func (w *WAVSource) NowNS() uint64 { return w.nowNS }

// Read implements Source, filling buf sample-by-sample and advancing
// the internal clock by the block's duration.
func (w *WAVSource) Read(buf []float32) error {
	if w.eof {
		return ErrEndOfStream
	}

	raw := make([]byte, 4*len(buf))
	n, err := io.ReadFull(w.r, raw)
	samplesRead := n / 4
	for i := 0; i < samplesRead; i++ {
		bits := binary.LittleEndian.Uint32(raw[4*i : 4*i+4])
		buf[i] = math.Float32frombits(bits)
	}

	w.nowNS += uint64(1e9 * float64(samplesRead) / w.sampleRate)

	if err == io.ErrUnexpectedEOF || err == io.EOF {
		w.eof = true
		if samplesRead == 0 {
			return ErrEndOfStream
		}
		for i := samplesRead; i < len(buf); i++ {
			buf[i] = 0
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("audio: read samples: %w", err)
	}
	return nil
}
