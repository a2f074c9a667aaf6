// Package request defines the relay request lifecycle and the result frame
// exchanged between the backchannel daemon and the relay client.
package request

import (
	"errors"
	"time"
)

// State is the lifecycle state of a relay request inside the daemon.
type State string

// Request states. See CanTransition for the allowed edges.
const (
	StatePending              State = "pending"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateApproved             State = "approved"
	StateDenied               State = "denied"
	StateTimedOut             State = "timed_out"
	StateExecuting            State = "executing"
	StateCompleted            State = "completed"
	StateExecutionFailed      State = "execution_failed"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateDenied, StateTimedOut, StateCompleted, StateExecutionFailed:
		return true
	default:
		return false
	}
}

// transitions lists the regular lifecycle edges. Any non-terminal state may
// additionally move to StateExecutionFailed when the daemon hits an internal
// error while handling the request.
var transitions = map[State][]State{
	StatePending:              {StateAwaitingConfirmation, StateTimedOut},
	StateAwaitingConfirmation: {StateApproved, StateDenied, StateTimedOut},
	StateApproved:             {StateExecuting},
	StateExecuting:            {StateCompleted, StateExecutionFailed},
}

// CanTransition reports whether a request may move from one state to another.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateExecutionFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Request is one relay attempt as tracked by the daemon.
// Origin is a best-effort label supplied by the caller; it is only ever
// displayed and logged.
type Request struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
	State     State     `json:"state"`
}

// Outcome is the terminal classification of a request as seen by the caller.
type Outcome string

// Outcomes carried in a Result.
const (
	OutcomeDenied          Outcome = "denied"
	OutcomeTimedOut        Outcome = "timed_out"
	OutcomeCompleted       Outcome = "completed"
	OutcomeExecutionFailed Outcome = "execution_failed"
)

// ErrUnknownOutcome is returned when a frame carries an outcome this version
// does not know about.
var ErrUnknownOutcome = errors.New("unknown outcome")

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeDenied, OutcomeTimedOut, OutcomeCompleted, OutcomeExecutionFailed:
		return true
	default:
		return false
	}
}

// State returns the terminal request state that corresponds to o.
func (o Outcome) State() State {
	switch o {
	case OutcomeDenied:
		return StateDenied
	case OutcomeTimedOut:
		return StateTimedOut
	case OutcomeCompleted:
		return StateCompleted
	default:
		return StateExecutionFailed
	}
}

// Result is returned to the relay client once a request reaches a terminal
// outcome.
type Result struct {
	// V is the frame version. Always FrameVersion when produced by this package.
	V int `json:"v"`

	RequestID string  `json:"request_id,omitempty"`
	Outcome   Outcome `json:"outcome"`

	// ExitCode is set only when Outcome is OutcomeCompleted.
	ExitCode *int `json:"exit_code,omitempty"`

	// Stdout and Stderr are bounded by the daemon's output limit. They are
	// byte slices so arbitrary (non UTF-8) output survives the JSON frame.
	Stdout          []byte `json:"stdout,omitempty"`
	Stderr          []byte `json:"stderr,omitempty"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`

	// Diagnostic explains non-completed outcomes.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Denied builds a denial result.
func Denied(id string) *Result {
	return &Result{V: FrameVersion, RequestID: id, Outcome: OutcomeDenied, Diagnostic: "denied by the home host user"}
}

// TimedOut builds a result for a request that never received a decision.
func TimedOut(id, diagnostic string) *Result {
	if diagnostic == "" {
		diagnostic = "no response within the confirmation window"
	}
	return &Result{V: FrameVersion, RequestID: id, Outcome: OutcomeTimedOut, Diagnostic: diagnostic}
}

// Failed builds an execution failure result. It never carries an exit code.
func Failed(id, diagnostic string) *Result {
	return &Result{V: FrameVersion, RequestID: id, Outcome: OutcomeExecutionFailed, Diagnostic: diagnostic}
}

// Completed builds a result for a command that ran to completion.
func Completed(id string, exitCode int, stdout, stderr []byte) *Result {
	code := exitCode
	return &Result{
		V:         FrameVersion,
		RequestID: id,
		Outcome:   OutcomeCompleted,
		ExitCode:  &code,
		Stdout:    stdout,
		Stderr:    stderr,
	}
}
