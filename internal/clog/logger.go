package clog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type logger struct {
	mu     sync.Mutex
	level  Level
	file   io.Writer // every line at or above level, timestamped
	stderr io.Writer // warn and error only; nil in daemon mode
}

func newLogger() *logger {
	return &logger{level: LevelInfo, stderr: os.Stderr}
}

func (l *logger) log(level Level, prefix, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}
	msg := prefix + fmt.Sprintf(format, args...)
	if l.file != nil {
		ts := time.Now().UTC().Format(time.RFC3339)
		_, _ = fmt.Fprintf(l.file, "%s [%s] %s\n", ts, level, msg)
	}
	if l.stderr != nil && level >= LevelWarn {
		_, _ = fmt.Fprintf(l.stderr, "[%s] %s\n", level, msg)
	}
}

// OpenLogFile opens path for appending, creating its directory.
func OpenLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
