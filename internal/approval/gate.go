// Package approval serializes relay requests through a single confirmation
// slot: requests wait in FIFO order and at most one is ever awaiting the
// user's answer.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xdg/backchannel/internal/prompt"
	"github.com/xdg/backchannel/internal/request"
)

// DefaultTimeout is the confirmation window used when none is configured.
const DefaultTimeout = 30 * time.Second

// Decision is the gate's verdict for one request.
type Decision string

// Gate decisions.
const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
	DecisionTimedOut Decision = "timed_out"
)

// State returns the request state a decision moves to.
func (d Decision) State() request.State {
	switch d {
	case DecisionApproved:
		return request.StateApproved
	case DecisionDenied:
		return request.StateDenied
	default:
		return request.StateTimedOut
	}
}

var (
	// ErrPromptFailed is returned when the confirmer fails for a reason other
	// than the confirmation window elapsing.
	ErrPromptFailed = errors.New("confirmation prompt failed")
	// ErrGateClosed is returned for requests still unresolved when the gate
	// shuts down.
	ErrGateClosed = errors.New("confirmation gate closed")
	// ErrWithdrawn is returned when the caller gives up on a request before
	// it was decided.
	ErrWithdrawn = errors.New("request withdrawn by caller")
)

// StateFunc observes the state transitions the gate makes for a request.
type StateFunc func(request.State)

type resolution struct {
	decision Decision
	err      error
}

type ticket struct {
	req       request.Request
	onState   StateFunc
	done      chan resolution
	withdrawn chan struct{}
	once      sync.Once
}

func (t *ticket) withdraw() {
	t.once.Do(func() { close(t.withdrawn) })
}

func (t *ticket) notify(s request.State) {
	if t.onState != nil {
		t.onState(s)
	}
}

// Gate owns the FIFO of undecided requests and the dispatcher goroutine that
// shows them to the user one at a time.
type Gate struct {
	confirmer prompt.Confirmer
	timeout   time.Duration

	mu       sync.Mutex
	queue    []*ticket
	awaiting *ticket
	closed   bool

	wake       chan struct{}
	base       context.Context
	cancelBase context.CancelFunc
	done       chan struct{}
}

// NewGate creates a gate and starts its dispatcher. A non-positive timeout
// uses DefaultTimeout. Call Close to stop it.
func NewGate(confirmer prompt.Confirmer, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base, cancel := context.WithCancel(context.Background())
	g := &Gate{
		confirmer:  confirmer,
		timeout:    timeout,
		wake:       make(chan struct{}, 1),
		base:       base,
		cancelBase: cancel,
		done:       make(chan struct{}),
	}
	go g.dispatch()
	return g
}

// Timeout returns the confirmation window.
func (g *Gate) Timeout() time.Duration {
	return g.timeout
}

// Submit queues req and blocks until the user decides, the confirmation
// window elapses, ctx ends, or the gate closes. The window starts when req
// reaches the head of the queue, not when it is submitted.
//
// If ctx ends first, a queued request is dropped without being shown and an
// awaiting one has its prompt withdrawn; both return ErrWithdrawn.
func (g *Gate) Submit(ctx context.Context, req *request.Request, onState StateFunc) (Decision, error) {
	t := &ticket{
		req:       *req,
		onState:   onState,
		done:      make(chan resolution, 1),
		withdrawn: make(chan struct{}),
	}
	t.req.State = request.StatePending

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return "", ErrGateClosed
	}
	g.queue = append(g.queue, t)
	g.mu.Unlock()
	g.signal()

	select {
	case res := <-t.done:
		return res.decision, res.err
	case <-ctx.Done():
	}

	g.mu.Lock()
	if g.removeQueued(t) {
		g.mu.Unlock()
		return "", fmt.Errorf("%w: %w", ErrWithdrawn, ctx.Err())
	}
	g.mu.Unlock()

	// Already showing (or just decided): withdraw the prompt and take
	// whatever the dispatcher settles on.
	t.withdraw()
	res := <-t.done
	return res.decision, res.err
}

// removeQueued drops t from the queue. Callers hold g.mu.
func (g *Gate) removeQueued(t *ticket) bool {
	for i, q := range g.queue {
		if q == t {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (g *Gate) signal() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// next blocks until a ticket is at the head of the queue and promotes it to
// the awaiting slot. It returns nil once the gate is closed.
func (g *Gate) next() *ticket {
	for {
		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			return nil
		}
		if len(g.queue) > 0 {
			t := g.queue[0]
			g.queue = g.queue[1:]
			g.awaiting = t
			t.req.State = request.StateAwaitingConfirmation
			g.mu.Unlock()
			return t
		}
		g.mu.Unlock()

		select {
		case <-g.wake:
		case <-g.base.Done():
		}
	}
}

func (g *Gate) dispatch() {
	defer close(g.done)
	for {
		t := g.next()
		if t == nil {
			return
		}
		t.notify(request.StateAwaitingConfirmation)
		res := g.confirm(t)

		g.mu.Lock()
		g.awaiting = nil
		g.mu.Unlock()

		if res.err == nil {
			t.notify(res.decision.State())
		}
		t.done <- res
	}
}

type answer struct {
	ok  bool
	err error
}

// confirm shows t and waits at most the confirmation window. An answer that
// arrives after the window is discarded.
func (g *Gate) confirm(t *ticket) resolution {
	ctx, cancel := context.WithTimeout(g.base, g.timeout)
	defer cancel()

	p := prompt.Prompt{
		ID:      t.req.ID,
		Command: t.req.Command,
		Origin:  t.req.Origin,
		Timeout: g.timeout,
	}
	answers := make(chan answer, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				answers <- answer{err: fmt.Errorf("prompt panicked: %v", r)}
			}
		}()
		ok, err := g.confirmer.Confirm(ctx, p)
		answers <- answer{ok: ok, err: err}
	}()

	select {
	case a := <-answers:
		if ctx.Err() == nil {
			if errors.Is(a.err, prompt.ErrNoAnswer) {
				return resolution{decision: DecisionTimedOut}
			}
			if a.err != nil {
				return resolution{err: fmt.Errorf("%w: %w", ErrPromptFailed, a.err)}
			}
			if a.ok {
				return resolution{decision: DecisionApproved}
			}
			return resolution{decision: DecisionDenied}
		}
	case <-ctx.Done():
	case <-t.withdrawn:
		return resolution{err: ErrWithdrawn}
	}

	switch {
	case g.base.Err() != nil:
		return resolution{err: ErrGateClosed}
	default:
		return resolution{decision: DecisionTimedOut}
	}
}

// Pending returns copies of the requests waiting behind the awaiting one,
// in queue order.
func (g *Gate) Pending() []request.Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]request.Request, 0, len(g.queue))
	for _, t := range g.queue {
		out = append(out, t.req)
	}
	return out
}

// Awaiting returns a copy of the request currently shown to the user.
func (g *Gate) Awaiting() (request.Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.awaiting == nil {
		return request.Request{}, false
	}
	return g.awaiting.req, true
}

// Len returns the number of undecided requests, including the awaiting one.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.queue)
	if g.awaiting != nil {
		n++
	}
	return n
}

// Close stops the dispatcher. The awaiting request and every queued request
// resolve with ErrGateClosed. Close is idempotent.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		<-g.done
		return
	}
	g.closed = true
	queued := g.queue
	g.queue = nil
	g.mu.Unlock()

	g.cancelBase()
	<-g.done

	for _, t := range queued {
		t.done <- resolution{err: ErrGateClosed}
	}
}
