package prompt

import (
	"context"
	"sync"
	"time"
)

// MockConfirmer implements Confirmer for testing.
// Answers and Errors are consumed in call order; once exhausted the mock
// blocks until ctx is done (as a user who never answers would).
type MockConfirmer struct {
	Answers []bool
	Errors  []error
	// Delay is applied before answering.
	Delay time.Duration
	// IgnoreContext makes the mock keep waiting for Delay even after ctx is
	// done, like a prompt backend that does not honour cancellation.
	IgnoreContext bool

	mu        sync.Mutex
	calls     []Prompt
	active    int
	maxActive int
}

// NewMockConfirmer creates a MockConfirmer with the given answers.
func NewMockConfirmer(answers ...bool) *MockConfirmer {
	return &MockConfirmer{Answers: answers}
}

// Confirm records the call and returns the next configured answer.
func (m *MockConfirmer) Confirm(ctx context.Context, p Prompt) (bool, error) {
	m.mu.Lock()
	i := len(m.calls)
	m.calls = append(m.calls, p)
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if i < len(m.Errors) && m.Errors[i] != nil {
		return false, m.Errors[i]
	}
	if i >= len(m.Answers) {
		<-ctx.Done()
		return false, ctx.Err()
	}

	if m.Delay > 0 {
		if m.IgnoreContext {
			time.Sleep(m.Delay)
		} else {
			select {
			case <-time.After(m.Delay):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
	}
	return m.Answers[i], nil
}

// Calls returns the prompts shown so far, in order.
func (m *MockConfirmer) Calls() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.calls...)
}

// MaxConcurrent returns the largest number of prompts that were open at the
// same time.
func (m *MockConfirmer) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}
