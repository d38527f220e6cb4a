// Package logcore implements the session's thread-safe log: either a
// direct sink (stdout, stderr, or a file) or a bounded in-memory FIFO that
// external code drains via HasEntries/Pop. Direct-sink mode formats
// records through a zap.Logger core (go.uber.org/zap) so console output
// matches the rest of the stack's logging; buffered mode keeps the same
// "file:line - text" formatting without a file descriptor behind it.
package logcore

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the driver's SPLIB_LogLevel enum.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "CRITICAL"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.DPanicLevel
	}
}

// Entry is one drained log record.
type Entry struct {
	Time  time.Time
	Level Level
	Text  string
}

// droppedMarkerText replaces the oldest record when the in-memory FIFO
// overflows, so a drain sees it was truncated instead of silently losing
// context.
const droppedMarkerText = "... earlier log entries dropped (buffer full) ..."

// defaultCapacity is the bounded FIFO size used in buffered mode.
const defaultCapacity = 512

// Log is the session-wide logger. Safe for concurrent use by any worker.
type Log struct {
	zap      *zap.Logger // nil in buffered mode
	mu       sync.Mutex
	buffered bool
	cap      int
	entries  []Entry
}

// Open constructs a Log for the given sink path.
//
//   - "stdout" / "stderr": direct sink, records are written and flushed
//     immediately; drain methods always report no entries.
//   - "" (empty): in-memory buffered mode (bounded, drop-oldest FIFO).
//   - any other non-empty string: a filesystem path opened for write
//     (truncated), also a direct sink.
func Open(sinkPath string) (*Log, error) {
	switch sinkPath {
	case "stdout":
		return newDirectLog(os.Stdout), nil
	case "stderr":
		return newDirectLog(os.Stderr), nil
	case "":
		return newBufferedLog(defaultCapacity), nil
	default:
		f, err := os.Create(sinkPath)
		if err != nil {
			return nil, fmt.Errorf("logcore: open %q: %w", sinkPath, err)
		}
		return newDirectLog(f), nil
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "t",
		LevelKey:    "level",
		MessageKey:  "msg",
		LineEnding:  zapcore.DefaultLineEnding,
		EncodeTime:  zapcore.ISO8601TimeEncoder,
		EncodeLevel: zapcore.CapitalLevelEncoder,
	}
}

func newDirectLog(w io.Writer) *Log {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(w), zapcore.DebugLevel)
	return &Log{zap: zap.New(core)}
}

func newBufferedLog(capacity int) *Log {
	return &Log{buffered: true, cap: capacity}
}

// Log appends one record, tagged with the call site of the worker or
// session call that raised it. Never fails; bounded memory.
func (l *Log) Log(level Level, file string, line int, text string) {
	formatted := fmt.Sprintf("%s:%d - %s", file, line, text)
	if !l.buffered {
		l.zap.Check(level.zapLevel(), formatted).Write()
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) >= l.cap {
		l.entries = l.entries[1:]
		if len(l.entries) > 0 {
			l.entries[0] = Entry{Time: time.Now(), Level: LevelWarn, Text: droppedMarkerText}
		}
	}
	l.entries = append(l.entries, Entry{Time: time.Now(), Level: level, Text: formatted})
}

// HasEntries reports whether a drain would return at least one record.
// Always false in direct-sink mode.
func (l *Log) HasEntries() bool {
	if !l.buffered {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries) > 0
}

// Pop removes and returns the oldest buffered record. The second return
// value is false if there was nothing to pop (including direct-sink mode).
func (l *Log) Pop() (Entry, bool) {
	if !l.buffered {
		return Entry{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	e := l.entries[0]
	l.entries = l.entries[1:]
	return e, true
}

// Close flushes and releases the underlying sink.
func (l *Log) Close() error {
	if l.buffered {
		return nil
	}
	return l.zap.Sync()
}
