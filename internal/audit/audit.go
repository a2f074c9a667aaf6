// Package audit provides structured logging for relay request decisions.
// Log entries follow a key=value format suitable for parsing and analysis.
package audit

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EventType represents the type of relay event.
type EventType string

// Event types for relay requests.
const (
	EventRequest  EventType = "REQUEST"
	EventApprove  EventType = "APPROVE"
	EventDeny     EventType = "DENY"
	EventTimeout  EventType = "TIMEOUT"
	EventComplete EventType = "COMPLETE"
	EventFailed   EventType = "FAILED"
)

// Event represents a relay audit log entry.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Type is the event type (REQUEST, APPROVE, etc.)
	Type EventType

	// RequestID identifies the request across its events.
	RequestID string

	// Origin is the caller-supplied origin label. It is untrusted.
	Origin string

	// Cmd is the command string as received.
	Cmd string

	// Reason explains TIMEOUT and FAILED events.
	Reason string

	// ExitCode is the command exit code (for COMPLETE events).
	ExitCode int

	// Duration is the execution time (for COMPLETE events).
	Duration time.Duration
}

// Format returns the log entry as a formatted string.
// Format: 2024-01-15T14:32:05Z RELAY REQUEST id=4b1c... origin="10.0.0.5" cmd="..."
func (e *Event) Format() string {
	var b strings.Builder

	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(" RELAY ")
	b.WriteString(string(e.Type))

	b.WriteString(" id=")
	b.WriteString(e.RequestID)
	b.WriteString(" origin=")
	b.WriteString(quoteValue(e.Origin))
	b.WriteString(" cmd=")
	b.WriteString(quoteValue(e.Cmd))

	switch e.Type {
	case EventTimeout, EventFailed, EventDeny:
		writeOptionalField(&b, "reason", e.Reason)
	case EventComplete:
		b.WriteString(" exit=")
		b.WriteString(strconv.Itoa(e.ExitCode))
		b.WriteString(" duration=")
		b.WriteString(formatDuration(e.Duration))
	}

	return b.String()
}

// writeOptionalField appends " key=quoted_value" to the builder if value is non-empty.
func writeOptionalField(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(quoteValue(value))
}

// quoteValue returns a quoted string value. Values are always quoted so that
// newlines and quotes in untrusted input cannot forge extra entries.
func quoteValue(s string) string {
	return strconv.Quote(s)
}

// formatDuration formats a duration as a human-readable string (e.g., "2.3s", "1m30s").
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Logger writes audit events to an io.Writer.
type Logger struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewLogger creates a new audit logger that writes to the given writer.
func NewLogger(w io.Writer) *Logger {
	return &Logger{w: w, now: time.Now}
}

// Log writes an event to the audit log.
func (l *Logger) Log(e *Event) error {
	if l == nil || l.w == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	line := e.Format() + "\n"
	_, err := l.w.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

func (l *Logger) event(t EventType, id, origin, cmd string) *Event {
	now := time.Now
	if l != nil && l.now != nil {
		now = l.now
	}
	return &Event{Timestamp: now(), Type: t, RequestID: id, Origin: origin, Cmd: cmd}
}

// LogRequest logs a RELAY REQUEST event.
func (l *Logger) LogRequest(id, origin, cmd string) error {
	return l.Log(l.event(EventRequest, id, origin, cmd))
}

// LogApprove logs a RELAY APPROVE event.
func (l *Logger) LogApprove(id, origin, cmd string) error {
	return l.Log(l.event(EventApprove, id, origin, cmd))
}

// LogDeny logs a RELAY DENY event.
func (l *Logger) LogDeny(id, origin, cmd string) error {
	return l.Log(l.event(EventDeny, id, origin, cmd))
}

// LogTimeout logs a RELAY TIMEOUT event.
func (l *Logger) LogTimeout(id, origin, cmd, reason string) error {
	e := l.event(EventTimeout, id, origin, cmd)
	e.Reason = reason
	return l.Log(e)
}

// LogComplete logs a RELAY COMPLETE event.
func (l *Logger) LogComplete(id, origin, cmd string, exitCode int, duration time.Duration) error {
	e := l.event(EventComplete, id, origin, cmd)
	e.ExitCode = exitCode
	e.Duration = duration
	return l.Log(e)
}

// LogFailed logs a RELAY FAILED event.
func (l *Logger) LogFailed(id, origin, cmd, reason string) error {
	e := l.event(EventFailed, id, origin, cmd)
	e.Reason = reason
	return l.Log(e)
}
