// Package clog is backchannel's operational log: daemon lifecycle, request
// progress and relay failures, written to the log file and, outside daemon
// mode, warnings and errors to stderr. Messages meant for the person at the
// terminal go through internal/term instead.
package clog

import (
	"fmt"
	"strings"
)

// Level is the severity of a log line.
type Level int

// Levels, lowest first.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel parses a log.level config value.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	if strings.EqualFold(s, "warning") {
		return LevelWarn, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}
