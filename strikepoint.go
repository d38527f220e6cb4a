// Package strikepoint is the public entry point for the dual-sensor
// capture engine: a thermal frame assembler and an acoustic strike
// detector running as independent workers behind a single Session.
//
// A caller constructs a Session with Open, retrieves frames and events
// with GetFrame/GetEvents from its own goroutine, and releases everything
// with Close. See internal/session for the orchestration details and
// internal/thermal, internal/audio for the two workers' algorithms.
package strikepoint

import (
	"github.com/mbtown01/strikepoint/internal/audio"
	"github.com/mbtown01/strikepoint/internal/bus"
	"github.com/mbtown01/strikepoint/internal/config"
	"github.com/mbtown01/strikepoint/internal/logcore"
	"github.com/mbtown01/strikepoint/internal/metrics"
	"github.com/mbtown01/strikepoint/internal/session"
	"github.com/mbtown01/strikepoint/internal/thermal"
)

// Re-exported so callers never need to import the internal packages
// directly, following the framesupplier-style re-export convention.
type (
	// Frame is one assembled, deduplicated thermal image.
	Frame = thermal.Frame
	// StrikeEvent is one detected acoustic transient.
	StrikeEvent = audio.StrikeEvent
	// ControlBus is the thermal sensor's power/SPI capability set; see
	// bus.Hardware for the production implementation and bus.FileAdapter
	// for a byte-stream-backed test adapter.
	ControlBus = bus.ControlBus
	// AudioSource yields single-channel floating point samples at a known
	// sample rate; see audio.WAVSource for a file-backed implementation.
	AudioSource = audio.Source
	// Config holds every tunable of the engine. Use Defaults or LoadConfig
	// to build one.
	Config = config.Config
	// Info is returned by Open alongside the Session for diagnostics.
	Info = session.Info
	// LogEntry is one record drained from a buffered-mode log.
	LogEntry = logcore.Entry
	// Metrics exposes the session's Prometheus collectors.
	Metrics = metrics.Registry
)

// Defaults returns the engine's compiled-in configuration (spec.md
// §4.3/§4.4's defaults).
func Defaults() Config { return config.Defaults() }

// LoadConfig decodes a YAML override file on top of Defaults.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Session is the engine's public handle: two background workers plus the
// mailbox, event queue, and log they publish into.
type Session struct {
	inner *session.Session
}

// Open constructs a Session: builds the log, starts the thermal and
// audio workers against dev and audioSrc, and waits for both to signal
// running. logPath accepts "stdout", "stderr", any filesystem path, or
// "" for in-memory buffering (spec.md §6).
func Open(cfg Config, dev ControlBus, audioSrc AudioSource, logPath string) (*Session, Info, error) {
	inner, info, err := session.New(cfg, dev, audioSrc, logPath)
	if err != nil {
		return nil, Info{}, err
	}
	return &Session{inner: inner}, info, nil
}

// GetFrame blocks until the most recent unique thermal frame is
// available or the session is shutting down.
func (s *Session) GetFrame() (Frame, error) { return s.inner.GetFrame() }

// GetEvents drains up to max queued strike events without blocking.
func (s *Session) GetEvents(max int) ([]StrikeEvent, error) { return s.inner.GetEvents(max) }

// LogHasEntries reports whether LogPop would return a record.
func (s *Session) LogHasEntries() bool { return s.inner.LogHasEntries() }

// LogPop removes and returns the oldest buffered log record.
func (s *Session) LogPop() (LogEntry, bool) { return s.inner.LogPop() }

// Metrics exposes the session's Prometheus registry for a caller-owned
// /metrics endpoint.
func (s *Session) Metrics() *Metrics { return s.inner.Metrics() }

// Close implements spec.md §4.5's shutdown(): stops both workers,
// releases the control bus, and closes the log sink. Idempotent.
func (s *Session) Close() error { return s.inner.Shutdown() }
