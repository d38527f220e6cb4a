// Package faults implements the sum-typed fault taxonomy that the thermal
// and audio workers use in place of exceptions: every worker-local failure
// is an ordinary returned error carrying its origin file:line, handled by a
// switch at the top of the owning worker's loop instead of propagating to
// the caller mid-operation.
package faults

import (
	"fmt"
	"runtime"
)

// Kind classifies a Fault for the switch at the top of a worker loop.
type Kind int

const (
	// KindIO marks a hard I/O failure reading from a bus or audio source.
	// Workers convert this to KindRetry before it ever reaches the caller.
	KindIO Kind = iota
	// KindRetry marks a recoverable per-iteration failure (packet header or
	// index mismatch). The owning worker sleeps and retries, escalating to
	// KindReboot after the configured retry limit.
	KindRetry
	// KindReboot marks an unrecoverable condition that requires power-cycling
	// the sensor: sync timeout, persistent stale frames, or retry exhaustion.
	KindReboot
	// KindEndOfStream marks clean exhaustion of a file-backed or test source;
	// the owning worker exits its loop without error.
	KindEndOfStream
	// KindInvalidArgument marks a caller-supplied argument error (nil pointer,
	// undersized buffer). Returned without a log entry.
	KindInvalidArgument
	// KindShutting marks a public call made after shutdown was requested.
	KindShutting
	// KindStartupTimeout marks a worker that failed to signal running within
	// the startup window.
	KindStartupTimeout
	// KindOverflow marks a caller-supplied buffer too small to hold the
	// queued events.
	KindOverflow
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindRetry:
		return "retry"
	case KindReboot:
		return "reboot"
	case KindEndOfStream:
		return "end_of_stream"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindShutting:
		return "shutting"
	case KindStartupTimeout:
		return "startup_timeout"
	case KindOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Fault is the error type every worker-local failure takes. It records the
// call site so the log entry the orchestrator ultimately writes matches the
// file:line the original C++ BAIL()/REBOOT() macros captured.
type Fault struct {
	Kind  Kind
	File  string
	Line  int
	msg   string
	cause error
}

// New builds a Fault of the given kind at the caller's source location.
func New(kind Kind, format string, args ...any) *Fault {
	_, file, line, _ := runtime.Caller(1)
	return &Fault{Kind: kind, File: file, Line: line, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a Fault of the given kind at the caller's source location,
// chaining cause so errors.Is/errors.As can see through it.
func Wrap(kind Kind, cause error, format string, args ...any) *Fault {
	_, file, line, _ := runtime.Caller(1)
	return &Fault{Kind: kind, File: file, Line: line, msg: fmt.Sprintf(format, args...), cause: cause}
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s", f.msg, f.cause)
	}
	return f.msg
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (f *Fault) Unwrap() error { return f.cause }

// Is reports whether target is a *Fault of the same Kind, so callers can
// write errors.Is(err, faults.Retry) style sentinel comparisons via Kind
// values exposed below.
func (f *Fault) Is(target error) bool {
	other, ok := target.(*Fault)
	if !ok {
		return false
	}
	return other.Kind == f.Kind && other.msg == ""
}

// sentinel builds a zero-message Fault of a given Kind, usable only as an
// errors.Is comparison target (see Fault.Is).
func sentinel(kind Kind) *Fault { return &Fault{Kind: kind} }

var (
	// Retry is the comparison sentinel for errors.Is(err, faults.Retry).
	Retry = sentinel(KindRetry)
	// Reboot is the comparison sentinel for errors.Is(err, faults.Reboot).
	Reboot = sentinel(KindReboot)
	// EndOfStream is the comparison sentinel for errors.Is(err, faults.EndOfStream).
	EndOfStream = sentinel(KindEndOfStream)
	// InvalidArgument is the comparison sentinel for errors.Is(err, faults.InvalidArgument).
	InvalidArgument = sentinel(KindInvalidArgument)
	// Shutting is the comparison sentinel for errors.Is(err, faults.Shutting).
	Shutting = sentinel(KindShutting)
	// StartupTimeout is the comparison sentinel for errors.Is(err, faults.StartupTimeout).
	StartupTimeout = sentinel(KindStartupTimeout)
	// Overflow is the comparison sentinel for errors.Is(err, faults.Overflow).
	Overflow = sentinel(KindOverflow)
)
