// Package log implements a process-wide asynchronous logger: an mpmc-ring
// ingress queue with a background drain goroutine, matching the original
// source's producer/consumer log design (the teacher repo itself pulls in
// no logging library, so this is built fresh atop the mpmc package this
// framework already requires).
package log

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/sheep/mpmc"
)

// Level is a log record's severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// record is a fixed-size log entry queued on the ring.
type record struct {
	level Level
	when  time.Time
	msg   string
}

// Logger is a process-wide async logger with its own background drain
// goroutine, modelled as an explicit owned object rather than hidden
// global state, with package-level helpers (see Default) for ergonomic
// call sites.
type Logger struct {
	ring    *mpmc.Ring[record]
	minimum Level
	out     *os.File
	dropped atomic.Uint64
	done    chan struct{}
}

// New constructs and starts a logger with the given ring capacity and
// minimum level. Records below minimum are discarded at the call site
// without ever reaching the ring.
func New(ringCapacity int, minimum Level, out *os.File) *Logger {
	if out == nil {
		out = os.Stderr
	}
	l := &Logger{
		ring:    mpmc.New[record](ringCapacity),
		minimum: minimum,
		out:     out,
		done:    make(chan struct{}),
	}
	go l.drain()
	return l
}

// Dropped returns the number of records discarded because the ring was
// full at the time of logging (logging must never block the caller, so a
// full ring on the non-blocking path drops rather than retries).
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.minimum {
		return
	}
	r := record{level: level, when: time.Now(), msg: fmt.Sprintf(format, args...)}
	if !l.ring.TryPush(r) {
		l.dropped.Add(1)
	}
}

// Debugf, Infof, Warnf, and Errorf enqueue a formatted record at the
// matching level.
func (l *Logger) Debugf(format string, args ...any) { l.log(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(Error, format, args...) }

func (l *Logger) drain() {
	for {
		r, ok := l.ring.TryPop()
		if !ok {
			select {
			case <-l.done:
				return
			default:
				time.Sleep(time.Millisecond)
				continue
			}
		}
		fmt.Fprintf(l.out, "%s [%s] %s\n", r.when.Format(time.RFC3339Nano), r.level, r.msg)
	}
}

// Close stops the drain goroutine after flushing whatever is already
// queued.
func (l *Logger) Close() error {
	close(l.done)
	l.ring.Consume(func(r record) {
		fmt.Fprintf(l.out, "%s [%s] %s\n", r.when.Format(time.RFC3339Nano), r.level, r.msg)
	})
	return nil
}

var defaultLogger atomic.Pointer[Logger]

// SetDefault installs the process-wide logger used by the package-level
// Debugf/Infof/Warnf/Errorf helpers.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// Default returns the process-wide logger, constructing a reasonable
// default (ring capacity 1024, Info level, stderr) on first use.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := New(1024, Info, os.Stderr)
	if !defaultLogger.CompareAndSwap(nil, l) {
		_ = l.Close()
		return defaultLogger.Load()
	}
	return l
}

func Debugf(format string, args ...any) { Default().Debugf(format, args...) }
func Infof(format string, args ...any)  { Default().Infof(format, args...) }
func Warnf(format string, args ...any)  { Default().Warnf(format, args...) }
func Errorf(format string, args ...any) { Default().Errorf(format, args...) }
