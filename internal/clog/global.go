package clog

import (
	"io"
	"log"
	"sync/atomic"
)

var std atomic.Pointer[logger]

func init() {
	std.Store(newLogger())
}

// Configure sets the level and opens logPath (skipped when empty). In daemon
// mode nothing is written to stderr.
func Configure(logPath string, level Level, daemonMode bool) error {
	l := newLogger()
	l.level = level
	if daemonMode {
		l.stderr = nil
	}
	if logPath != "" {
		f, err := OpenLogFile(logPath)
		if err != nil {
			return err
		}
		l.file = f
	}
	closeFile(std.Swap(l))
	return nil
}

// Debug, Info, Warn and Error log through the global logger.
func Debug(format string, args ...any) { std.Load().log(LevelDebug, "", format, args...) }
func Info(format string, args ...any) { std.Load().log(LevelInfo, "", format, args...) }
func Warn(format string, args ...any) { std.Load().log(LevelWarn, "", format, args...) }
func Error(format string, args ...any) { std.Load().log(LevelError, "", format, args...) }

// RequestLog prefixes every line with a relay request ID so one request can
// be followed through queueing, confirmation and execution.
type RequestLog struct {
	prefix string
}

// Request returns the log for request id.
func Request(id string) RequestLog {
	return RequestLog{prefix: "request " + id + ": "}
}

func (r RequestLog) Debug(format string, args ...any) {
	std.Load().log(LevelDebug, r.prefix, format, args...)
}

func (r RequestLog) Info(format string, args ...any) {
	std.Load().log(LevelInfo, r.prefix, format, args...)
}

func (r RequestLog) Warn(format string, args ...any) {
	std.Load().log(LevelWarn, r.prefix, format, args...)
}

func (r RequestLog) Error(format string, args ...any) {
	std.Load().log(LevelError, r.prefix, format, args...)
}

// Close closes the log file opened by Configure.
func Close() error {
	l := std.Load()
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.file.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Reset restores the stderr-only logger.
func Reset() {
	std.Store(newLogger())
}

// Discard drops all log output. Tests call it to keep runs quiet.
func Discard() {
	l := newLogger()
	l.stderr = nil
	std.Store(l)
}

// RedirectStdLog sends the standard library logger to clog at level. The
// SSH server library reports connection errors through it.
func RedirectStdLog(level Level) {
	log.SetFlags(0)
	log.SetOutput(Writer(level))
}

// Writer returns an io.Writer that logs each write as one line at level.
func Writer(level Level) io.Writer {
	return levelWriter(level)
}

type levelWriter Level

func (w levelWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	std.Load().log(Level(w), "", "%s", msg)
	return len(p), nil
}

func closeFile(l *logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.file.(io.Closer); ok {
		_ = c.Close()
	}
}
