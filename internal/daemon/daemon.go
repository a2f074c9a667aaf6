// Package daemon implements the home-host confirmation daemon: it receives
// relay requests, passes them through the confirmation gate, executes the
// approved ones and reports a terminal result for every request.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xdg/backchannel/internal/approval"
	"github.com/xdg/backchannel/internal/audit"
	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/executor"
	"github.com/xdg/backchannel/internal/request"
)

// DefaultExecutionTimeout bounds how long an approved command may run.
const DefaultExecutionTimeout = 5 * time.Minute

// diagSessionClosed is reported when the caller disconnects before a decision.
const diagSessionClosed = "relay session closed before a decision was made"

// Submission is one relay request as it arrives at the entry point.
// Origin is an untrusted label used only for display and logging.
type Submission struct {
	Command string
	Origin  string
	Stdin   []byte
}

// Receiver accepts submissions and always returns a terminal result.
type Receiver interface {
	Receive(ctx context.Context, sub Submission) *request.Result
}

// Daemon wires the confirmation gate to an executor.
type Daemon struct {
	gate             *approval.Gate
	exec             executor.Executor
	executionTimeout time.Duration
	stdinLimit       int
	audit            *audit.Logger
	metrics          *Metrics
	newID            func() string

	mu       sync.Mutex
	requests map[string]*request.Request
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithExecutionTimeout sets the execution timeout for approved commands.
func WithExecutionTimeout(d time.Duration) Option {
	return func(dm *Daemon) {
		dm.executionTimeout = d
	}
}

// WithStdinLimit rejects submissions carrying more than n bytes of stdin.
// Zero disables the check.
func WithStdinLimit(n int) Option {
	return func(dm *Daemon) {
		dm.stdinLimit = n
	}
}

// WithAudit sets the audit logger.
func WithAudit(l *audit.Logger) Option {
	return func(dm *Daemon) {
		dm.audit = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(dm *Daemon) {
		dm.metrics = m
	}
}

// WithIDGenerator replaces the request ID generator, for tests.
func WithIDGenerator(f func() string) Option {
	return func(dm *Daemon) {
		dm.newID = f
	}
}

// New creates a Daemon that confirms through gate and runs approved
// commands with exec.
func New(gate *approval.Gate, exec executor.Executor, opts ...Option) *Daemon {
	d := &Daemon{
		gate:             gate,
		exec:             exec,
		executionTimeout: DefaultExecutionTimeout,
		newID:            uuid.NewString,
		requests:         make(map[string]*request.Request),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StdinLimit returns the configured stdin limit (0 means unlimited).
func (d *Daemon) StdinLimit() int {
	return d.stdinLimit
}

// Receive runs one request through its whole lifecycle and returns its
// terminal result. It never panics and never returns nil; a failure inside
// the daemon becomes an execution_failed result.
func (d *Daemon) Receive(ctx context.Context, sub Submission) (res *request.Result) {
	req := &request.Request{
		ID:        d.newID(),
		Command:   sub.Command,
		Origin:    sub.Origin,
		CreatedAt: time.Now(),
		State:     request.StatePending,
	}
	d.track(req)
	defer d.untrack(req.ID)

	d.metrics.requestStarted()
	defer d.metrics.requestFinished()

	rlog := clog.Request(req.ID)
	rlog.Info("from %q: %q", req.Origin, req.Command)
	if err := d.audit.LogRequest(req.ID, req.Origin, req.Command); err != nil {
		rlog.Warn("audit: %v", err)
	}

	defer func() {
		if r := recover(); r != nil {
			rlog.Error("panic: %v\n%s", r, debug.Stack())
			res = d.finish(req, request.Failed(req.ID, fmt.Sprintf("internal error: %v", r)), 0)
		}
	}()

	if d.stdinLimit > 0 && len(sub.Stdin) > d.stdinLimit {
		return d.finish(req, request.Failed(req.ID,
			fmt.Sprintf("stdin exceeds the %d byte limit", d.stdinLimit)), 0)
	}

	start := time.Now()
	decision, err := d.gate.Submit(ctx, req, func(s request.State) { d.setState(req.ID, s) })
	d.metrics.observeConfirmation(time.Since(start))
	if err != nil {
		if errors.Is(err, approval.ErrWithdrawn) {
			return d.finish(req, request.TimedOut(req.ID, diagSessionClosed), 0)
		}
		return d.finish(req, request.Failed(req.ID, fmt.Sprintf("confirmation failed: %v", err)), 0)
	}

	switch decision {
	case approval.DecisionDenied:
		return d.finish(req, request.Denied(req.ID), 0)
	case approval.DecisionTimedOut:
		return d.finish(req, request.TimedOut(req.ID, ""), 0)
	case approval.DecisionApproved:
	default:
		return d.finish(req, request.Failed(req.ID, fmt.Sprintf("unknown decision %q", decision)), 0)
	}

	if err := d.audit.LogApprove(req.ID, req.Origin, req.Command); err != nil {
		rlog.Warn("audit: %v", err)
	}
	d.setState(req.ID, request.StateExecuting)

	resp := d.exec.Execute(ctx, executor.ExecuteRequest{
		Command: req.Command,
		Stdin:   sub.Stdin,
		Timeout: d.executionTimeout,
	})
	d.metrics.observeExecution(resp.Duration)

	if resp.Status == executor.StatusCompleted {
		out := request.Completed(req.ID, resp.ExitCode, resp.Stdout, resp.Stderr)
		out.StdoutTruncated = resp.StdoutTruncated
		out.StderrTruncated = resp.StderrTruncated
		return d.finish(req, out, resp.Duration)
	}

	out := request.Failed(req.ID, resp.Error)
	out.Stdout, out.Stderr = resp.Stdout, resp.Stderr
	out.StdoutTruncated = resp.StdoutTruncated
	out.StderrTruncated = resp.StderrTruncated
	return d.finish(req, out, resp.Duration)
}

// finish records the terminal state of req and returns res.
func (d *Daemon) finish(req *request.Request, res *request.Result, elapsed time.Duration) *request.Result {
	d.setState(req.ID, res.Outcome.State())
	d.metrics.countOutcome(res.Outcome)

	rlog := clog.Request(req.ID)
	var err error
	switch res.Outcome {
	case request.OutcomeCompleted:
		rlog.Info("completed with exit code %d", *res.ExitCode)
		err = d.audit.LogComplete(req.ID, req.Origin, req.Command, *res.ExitCode, elapsed)
	case request.OutcomeDenied:
		rlog.Info("denied")
		err = d.audit.LogDeny(req.ID, req.Origin, req.Command)
	case request.OutcomeTimedOut:
		rlog.Info("timed out: %s", res.Diagnostic)
		err = d.audit.LogTimeout(req.ID, req.Origin, req.Command, res.Diagnostic)
	default:
		rlog.Warn("failed: %s", res.Diagnostic)
		err = d.audit.LogFailed(req.ID, req.Origin, req.Command, res.Diagnostic)
	}
	if err != nil {
		rlog.Warn("audit: %v", err)
	}
	return res
}

func (d *Daemon) track(req *request.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests[req.ID] = req
}

func (d *Daemon) untrack(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.requests, id)
}

// setState applies a lifecycle transition. Invalid transitions are logged
// and ignored.
func (d *Daemon) setState(id string, to request.State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	req, ok := d.requests[id]
	if !ok {
		return
	}
	if req.State == to {
		return
	}
	if !request.CanTransition(req.State, to) {
		clog.Request(id).Debug("ignoring transition %s -> %s", req.State, to)
		return
	}
	req.State = to
}

// Snapshot returns copies of the in-flight requests, oldest first.
func (d *Daemon) Snapshot() []request.Request {
	d.mu.Lock()
	out := make([]request.Request, 0, len(d.requests))
	for _, req := range d.requests {
		out = append(out, *req)
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
