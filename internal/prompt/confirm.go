// Package prompt asks the local user to approve or deny relay requests.
// Implementations are swappable behind Confirmer so the confirmation gate
// can be tested with MockConfirmer.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Prompt is what the user sees for one request.
// Origin is untrusted and shown for information only.
type Prompt struct {
	ID      string
	Command string
	Origin  string
	Timeout time.Duration
}

// Confirmer presents a prompt and blocks until the user decides or ctx ends.
// It returns true to approve and false to deny. Implementations should return
// ctx.Err() once ctx is done.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

var (
	// ErrInputClosed is returned when the prompt input reaches EOF.
	ErrInputClosed = errors.New("prompt input closed")
	// ErrNoAnswer is returned when the backend gave up waiting for the user
	// on its own, before ctx ended.
	ErrNoAnswer = errors.New("no answer before the prompt expired")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	originStyle  = lipgloss.NewStyle().Faint(true)
	commandStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Render formats a prompt for a text terminal.
func Render(p Prompt) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Remote command request"))
	b.WriteString("\n")
	origin := p.Origin
	if origin == "" {
		origin = "unknown"
	}
	b.WriteString(originStyle.Render(fmt.Sprintf("from %s (request %s)", origin, p.ID)))
	b.WriteString("\n")
	b.WriteString(commandStyle.Render("$ " + p.Command))
	b.WriteString("\n")
	if p.Timeout > 0 {
		b.WriteString(fmt.Sprintf("Expires in %s.\n", p.Timeout.Round(time.Second)))
	}
	return b.String()
}

// StdinConfirmer asks y/N questions on a line-oriented reader.
// A single goroutine owns the reader for the confirmer's lifetime; lines that
// arrive while no prompt is showing are discarded so that an answer typed for
// an expired prompt never decides the next one.
type StdinConfirmer struct {
	out   io.Writer
	lines chan string
}

// NewStdinConfirmer creates a StdinConfirmer reading answers from in and
// writing prompts to out.
func NewStdinConfirmer(in io.Reader, out io.Writer) *StdinConfirmer {
	c := &StdinConfirmer{out: out, lines: make(chan string, 16)}
	go c.readLines(in)
	return c
}

func (c *StdinConfirmer) readLines(in io.Reader) {
	defer close(c.lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
}

// drain discards lines typed before the current prompt was shown.
// It reports false if the input is already closed.
func (c *StdinConfirmer) drain() bool {
	for {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}

// Confirm shows p and waits for "y"/"yes" or "n"/"no". An empty answer denies.
func (c *StdinConfirmer) Confirm(ctx context.Context, p Prompt) (bool, error) {
	if !c.drain() {
		return false, ErrInputClosed
	}
	_, _ = fmt.Fprint(c.out, Render(p))
	_, _ = fmt.Fprint(c.out, "Run this command? [y/N]: ")

	for {
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(c.out, "\nNo answer; request expired.")
			return false, ctx.Err()
		case line, ok := <-c.lines:
			if !ok {
				return false, ErrInputClosed
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, nil
			case "", "n", "no":
				return false, nil
			default:
				_, _ = fmt.Fprint(c.out, "Please answer y or n: ")
			}
		}
	}
}
