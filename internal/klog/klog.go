// Package klog is the kernel's structured logging surface: a narrow
// Sink interface the portable core writes through, with the concrete
// destination (serial port, framebuffer text console, a host-side file
// for tooling) left entirely out of scope (spec §1 places device
// drivers out of scope; the TLS segment's log buffer write-through is
// in scope, the sink behind it is not).
package klog

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level mirrors logrus.Level so callers never import logrus directly
// outside this package, keeping the logging library swap contained to
// one file the way a narrow hardware-facing interface would be.
type Level = logrus.Level

const (
	LevelPanic = logrus.PanicLevel
	LevelFatal = logrus.FatalLevel
	LevelError = logrus.ErrorLevel
	LevelWarn  = logrus.WarnLevel
	LevelInfo  = logrus.InfoLevel
	LevelDebug = logrus.DebugLevel
)

// Sink is the out-of-scope destination every log line is eventually
// written to; internal/boot wires a real one (serial, framebuffer) once
// device bring-up completes, and tests use a recording Sink.
type Sink interface {
	Write(level Level, lp uint32, msg string)
}

// Logger hands every call's fmt.Sprintf-formatted message, with its
// level and LP id, to a Sink for the final byte-level write. The logrus
// instance it holds is configured but not used to format or dispatch
// messages.
type Logger struct {
	mu   sync.Mutex
	base *logrus.Logger
	sink Sink
	lp   uint32
}

// New builds a Logger at the given LP id that writes to sink. It also
// sets up a logrus logger with a text formatter and a discarding
// output; messages do not pass through it.
func New(lp uint32, sink Sink) *Logger {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableColors: true})
	base.SetOutput(&sinkWriter{})
	return &Logger{base: base, sink: sink, lp: lp}
}

// sinkWriter satisfies io.Writer so logrus can format into it; Logger
// overrides the actual dispatch via log below instead of
// relying on logrus' own output path, since Sink.Write needs the level
// and LP id alongside the message.
type sinkWriter struct{}

func (sinkWriter) Write(p []byte) (int, error) { return len(p), nil }

func (l *Logger) log(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink != nil {
		l.sink.Write(level, l.lp, msg)
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }

// Panicf logs at panic level then panics, the policy spec §7 assigns to
// unrecognised-hardware and bootloader-response-missing failures.
func (l *Logger) Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.log(LevelPanic, "%s", msg)
	panic(msg)
}
