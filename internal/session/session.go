// Package session implements the orchestrator described in spec.md §4.5:
// it owns the thermal and audio workers, the mailbox and event queue they
// publish into, and the shared log, and is the only thing external code
// talks to once a capture session is running.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mbtown01/strikepoint/internal/audio"
	"github.com/mbtown01/strikepoint/internal/bus"
	"github.com/mbtown01/strikepoint/internal/clock"
	"github.com/mbtown01/strikepoint/internal/config"
	"github.com/mbtown01/strikepoint/internal/faults"
	"github.com/mbtown01/strikepoint/internal/logcore"
	"github.com/mbtown01/strikepoint/internal/metrics"
	"github.com/mbtown01/strikepoint/internal/thermal"
)

// Info describes a session for diagnostic/telemetry purposes; it is the
// info_out of spec.md §4.5's init().
type Info struct {
	SessionID string
	StartedAt time.Time
}

// workerResult records a worker goroutine's terminal state so later
// public calls can report a dead worker with a clear error instead of
// blocking forever (spec.md §4.5's closing paragraph).
type workerResult struct {
	mu   sync.Mutex
	err  error
	done bool
}

func (w *workerResult) set(err error) {
	w.mu.Lock()
	w.err, w.done = err, true
	w.mu.Unlock()
}

func (w *workerResult) get() (error, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err, w.done
}

// Session is the concrete orchestrator. Exported so the root package can
// embed it directly; external callers are expected to go through that
// thinner wrapper, not construct a Session themselves.
type Session struct {
	cfg config.Config
	dev bus.ControlBus
	log *logcore.Log
	reg *metrics.Registry

	assembler *thermal.Assembler
	detector  *audio.Detector

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	thermalCtx     context.Context
	cancelThermal  context.CancelFunc
	cancelAudio    context.CancelFunc

	wg sync.WaitGroup

	thermalResult workerResult
	audioResult   workerResult

	shutdownRequested atomic.Bool
	shutdownOnce      sync.Once
	shutdownErr       error

	info Info
}

// New constructs a Session per spec.md §4.5's init(): builds the log,
// binds the control bus and audio source to fresh workers, powers on the
// thermal sensor, and starts both workers. It waits up to
// cfg.StartupTimeout for each worker to signal running; on any failure
// every partially constructed resource is released before returning.
func New(cfg config.Config, dev bus.ControlBus, audioSrc audio.Source, logPath string) (*Session, Info, error) {
	log, err := logcore.Open(logPath)
	if err != nil {
		return nil, Info{}, fmt.Errorf("session: open log: %w", err)
	}

	reg := metrics.New()
	clk := clock.NewReal()

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	thermalCtx, cancelThermal := context.WithCancel(shutdownCtx)
	audioCtx, cancelAudio := context.WithCancel(shutdownCtx)

	s := &Session{
		cfg:            cfg,
		dev:            dev,
		log:            log,
		reg:            reg,
		assembler:      thermal.NewAssembler(thermalCtx, dev, cfg.Thermal, clk, log, reg),
		detector:       audio.NewDetector(audioSrc, cfg.Audio, reg),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
		thermalCtx:     thermalCtx,
		cancelThermal:  cancelThermal,
		cancelAudio:    cancelAudio,
		info: Info{
			SessionID: uuid.NewString(),
			StartedAt: time.Now(),
		},
	}

	if err := s.startupPowerOn(); err != nil {
		s.releaseAfterFailedInit()
		return nil, Info{}, err
	}

	runningThermal := make(chan struct{})
	runningAudio := make(chan struct{})

	s.wg.Add(2)
	go s.runThermal(thermalCtx, runningThermal)
	go s.runAudio(audioCtx, runningAudio)

	deadline := time.After(s.cfg.StartupTimeout)
	for _, ch := range []chan struct{}{runningThermal, runningAudio} {
		select {
		case <-ch:
		case <-deadline:
			s.releaseAfterFailedInit()
			return nil, Info{}, faults.New(faults.KindStartupTimeout, "worker did not signal running within %s", s.cfg.StartupTimeout)
		}
	}

	return s, s.info, nil
}

// startupPowerOn runs the thermal sensor's power-up sequence with an
// overall bound of cfg.StartupTimeout, since ControlBus.PowerOn's own
// polling loop (spec.md §4.2) has no built-in ceiling.
func (s *Session) startupPowerOn() error {
	done := make(chan error, 1)
	go func() { done <- s.dev.PowerOn() }()

	select {
	case err := <-done:
		if err != nil {
			return faults.Wrap(faults.KindStartupTimeout, err, "thermal sensor power-on failed")
		}
		return nil
	case <-time.After(s.cfg.StartupTimeout):
		return faults.New(faults.KindStartupTimeout, "thermal sensor did not report ready within %s", s.cfg.StartupTimeout)
	}
}

// releaseAfterFailedInit tears down everything New may have already
// built, mirroring Shutdown: it cancels the workers' context, waits for
// any worker that was started to exit (without Shutdown's join timeout;
// the wait returns at once if none were started), powers off the control
// bus, and closes the log.
func (s *Session) releaseAfterFailedInit() {
	s.shutdownCancel()
	s.wg.Wait()
	_ = s.dev.PowerOff()
	_ = s.log.Close()
}

func (s *Session) runThermal(ctx context.Context, running chan struct{}) {
	defer s.wg.Done()
	defer s.cancelThermal()
	close(running)

	err := s.assembler.Run(ctx)
	s.thermalResult.set(normalizeWorkerExit(err))
	s.logWorkerExit("thermal", err)
}

func (s *Session) runAudio(ctx context.Context, running chan struct{}) {
	defer s.wg.Done()
	defer s.cancelAudio()
	close(running)

	err := s.detector.Run(ctx)
	s.audioResult.set(normalizeWorkerExit(err))
	s.logWorkerExit("audio", err)
}

// normalizeWorkerExit collapses a cancellation-triggered exit (a shutdown
// cancelling the worker's context) into a nil result: it is not a fault
// worth reporting to a later caller. A worker's own exit cancels only its
// own context, never its sibling's.
func normalizeWorkerExit(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Session) logWorkerExit(name string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	var f *faults.Fault
	if errors.As(err, &f) {
		s.log.Log(logcore.LevelError, f.File, f.Line, fmt.Sprintf("%s worker exited: %s", name, f.Error()))
		return
	}
	s.log.Log(logcore.LevelError, "session.go", 0, fmt.Sprintf("%s worker exited: %s", name, err.Error()))
}

// GetFrame implements spec.md §4.5's get_frame: blocks until the mailbox
// is fresh, shutdown is signaled, or the thermal worker has died. On
// fresh, returns the copied frame. Otherwise fails with faults.Shutting,
// or with the worker's own fault if it died from something other than
// shutdown.
//
// The wait is gated on thermalCtx rather than shutdownCtx directly: it is
// cancelled both by a session-wide shutdown (its parent) and by the
// thermal worker exiting on its own (its own deferred cancel), so a dead
// worker alone is enough to unblock a caller parked here instead of
// requiring a full Shutdown.
func (s *Session) GetFrame() (thermal.Frame, error) {
	if err, done := s.thermalResult.get(); done && err != nil {
		return thermal.Frame{}, err
	}

	frame, ok := s.assembler.Mailbox().Get(s.thermalCtx)
	if ok {
		return frame, nil
	}
	if err, done := s.thermalResult.get(); done && err != nil {
		return thermal.Frame{}, err
	}
	return thermal.Frame{}, faults.Shutting
}

// GetEvents implements spec.md §4.5's get_events: a non-blocking drain of
// up to max queued strike events. Fails with faults.Overflow if the
// queue holds more than max, or faults.Shutting once shutdown has been
// requested.
func (s *Session) GetEvents(max int) ([]audio.StrikeEvent, error) {
	if s.shutdownRequested.Load() {
		return nil, faults.Shutting
	}
	events, ok := s.detector.Queue().Drain(max)
	if !ok {
		return nil, faults.New(faults.KindOverflow, "event queue holds more than %d events", max)
	}
	return events, nil
}

// LogHasEntries delegates to the session's Log.
func (s *Session) LogHasEntries() bool { return s.log.HasEntries() }

// LogPop delegates to the session's Log.
func (s *Session) LogPop() (logcore.Entry, bool) { return s.log.Pop() }

// Metrics exposes the session's Prometheus registry for a caller-owned
// /metrics endpoint; the session itself never opens a listener.
func (s *Session) Metrics() *metrics.Registry { return s.reg }

// shutdownJoinTimeout bounds how long Shutdown waits for both workers to
// exit before giving up and releasing resources anyway. Workers check
// shutdownCtx at the top of every loop iteration and between sleeps
// (spec.md §5), so in practice this never comes close to firing.
const shutdownJoinTimeout = 5 * time.Second

// Shutdown implements spec.md §4.5's shutdown(): sets shutdown_requested,
// wakes the mailbox, joins both workers with a bounded wait, releases the
// control bus, and closes the log sink. Idempotent.
func (s *Session) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.shutdownRequested.Store(true)
		s.shutdownCancel()

		joined := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(joined)
		}()
		select {
		case <-joined:
		case <-time.After(shutdownJoinTimeout):
			s.log.Log(logcore.LevelWarn, "session.go", 0, "shutdown: worker join timed out, releasing resources anyway")
		}

		if err := s.dev.PowerOff(); err != nil {
			s.shutdownErr = fmt.Errorf("session: power off control bus: %w", err)
		}
		if err := s.log.Close(); err != nil && s.shutdownErr == nil {
			s.shutdownErr = fmt.Errorf("session: close log: %w", err)
		}
	})
	return s.shutdownErr
}
