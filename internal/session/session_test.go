package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mbtown01/strikepoint/internal/audio"
	"github.com/mbtown01/strikepoint/internal/bus"
	"github.com/mbtown01/strikepoint/internal/config"
	"github.com/mbtown01/strikepoint/internal/faults"
)

// buildPacket assembles one 164-byte thermal packet: a synced header for
// the given row, followed by 80 repeated big-endian centi-Kelvin words.
func buildPacket(row int, rawCentiKelvin uint16) []byte {
	packet := make([]byte, bus.PacketSize)
	packet[1] = byte(row)
	for c := 0; c < 80; c++ {
		binary.BigEndian.PutUint16(packet[4+2*c:], rawCentiKelvin)
	}
	return packet
}

// buildFrame assembles one complete 60-row frame at a uniform
// temperature.
func buildFrame(rawCentiKelvin uint16) []byte {
	var buf bytes.Buffer
	for row := 0; row < 60; row++ {
		buf.Write(buildPacket(row, rawCentiKelvin))
	}
	return buf.Bytes()
}

// silentSource is a finite audio.Source that never crosses the
// detection threshold, used where the test only cares about the thermal
// side of a session.
type silentSource struct {
	blockSize  int
	total      int
	n          int
	sampleRate float64
	now        uint64
}

func (s *silentSource) SampleRate() float64 { return s.sampleRate }
func (s *silentSource) NowNS() uint64       { return s.now }

func (s *silentSource) Read(buf []float32) error {
	if s.n >= s.total {
		return audio.ErrEndOfStream
	}
	for i := range buf {
		buf[i] = 0
	}
	s.now += uint64(1e9 * float64(len(buf)) / s.sampleRate)
	s.n++
	return nil
}

// burstSource is a finite audio.Source where every block carries a tone
// well above the cutoff frequency, so every block is expected to trigger
// a strike event once past the detector's filter.
type burstSource struct {
	blockSize  int
	total      int
	n          int
	sampleRate float64
	now        uint64
}

func (b *burstSource) SampleRate() float64 { return b.sampleRate }
func (b *burstSource) NowNS() uint64       { return b.now }

func (b *burstSource) Read(buf []float32) error {
	if b.n >= b.total {
		return audio.ErrEndOfStream
	}
	for i := range buf {
		buf[i] = float32(math.Sin(2 * math.Pi * 20000 * float64(i) / b.sampleRate))
	}
	b.now += uint64(1e9 * float64(len(buf)) / b.sampleRate)
	b.n++
	return nil
}

func newTestConfig() config.Config {
	cfg := config.Defaults()
	cfg.StartupTimeout = 2 * time.Second
	cfg.Audio.BlockSize = 64
	return cfg
}

func TestSessionGetFrameReturnsLastPublishedFrame(t *testing.T) {
	var raw bytes.Buffer
	raw.Write(buildFrame(30000))
	raw.Write(buildFrame(30100))
	raw.Write(buildFrame(30200))

	dev := bus.NewFileAdapter(&raw)
	src := &silentSource{blockSize: 64, total: 3, sampleRate: 48000}

	cfg := newTestConfig()
	s, info, err := New(cfg, dev, src, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()

	if info.SessionID == "" {
		t.Fatalf("expected a non-empty session id")
	}

	// The three frames assemble and publish well within a scheduler tick
	// (no I/O, no retries); give the worker a moment to run to
	// completion so the mailbox holds the last of the three rather than
	// whichever happened to be fresh the instant GetFrame is called.
	time.Sleep(20 * time.Millisecond)

	frame, err := s.GetFrame()
	if err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	if frame.Seq != 2 {
		t.Fatalf("frame.Seq = %d, want 2 (last published frame)", frame.Seq)
	}
}

func TestSessionGetFrameFailsWithShuttingAfterStreamEnds(t *testing.T) {
	dev := bus.NewFileAdapter(bytes.NewReader(buildFrame(30000)))
	src := &silentSource{blockSize: 64, total: 1, sampleRate: 48000}

	cfg := newTestConfig()
	s, _, err := New(cfg, dev, src, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()

	if _, err := s.GetFrame(); err != nil {
		t.Fatalf("first GetFrame: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := s.GetFrame(); !errors.Is(err, faults.Shutting) {
		t.Fatalf("second GetFrame: got %v, want faults.Shutting", err)
	}
}

func TestSessionGetEventsOverflow(t *testing.T) {
	dev := bus.NewFileAdapter(bytes.NewReader(buildFrame(30000)))
	src := &burstSource{blockSize: 64, total: 5, sampleRate: 48000}

	cfg := newTestConfig()
	cfg.Audio.RefractoryS = 0
	cfg.Audio.QueueSize = 100

	s, _, err := New(cfg, dev, src, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()

	time.Sleep(200 * time.Millisecond)

	if _, err := s.GetEvents(2); !errors.Is(err, faults.Overflow) {
		t.Fatalf("GetEvents(2): got %v, want faults.Overflow", err)
	}

	events, err := s.GetEvents(100)
	if err != nil {
		t.Fatalf("GetEvents(100): %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("len(events) = %d, want 5", len(events))
	}
}

func TestSessionShutdownIsIdempotent(t *testing.T) {
	dev := bus.NewFileAdapter(bytes.NewReader(buildFrame(30000)))
	src := &silentSource{blockSize: 64, total: 1, sampleRate: 48000}

	cfg := newTestConfig()
	s, _, err := New(cfg, dev, src, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Shutdown(); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if dev.PowerOffCount() != 1 {
		t.Fatalf("PowerOffCount() = %d, want 1 (idempotent shutdown)", dev.PowerOffCount())
	}
}

// failingBus is a bus.ControlBus stub whose PowerOn always fails, used to
// exercise New's startup-timeout path.
type failingBus struct{}

func (failingBus) PowerOn() error          { return errors.New("power rail fault") }
func (failingBus) PowerOff() error         { return nil }
func (failingBus) ReadPacket([]byte) error { return bus.ErrEndOfStream }

func TestSessionNewFailsWhenPowerOnFails(t *testing.T) {
	src := &silentSource{blockSize: 64, total: 1, sampleRate: 48000}
	cfg := newTestConfig()

	_, _, err := New(cfg, failingBus{}, src, "")
	if !errors.Is(err, faults.StartupTimeout) {
		t.Fatalf("New: got %v, want faults.StartupTimeout", err)
	}
}
