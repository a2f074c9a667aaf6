package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
)

// TerminalConfirmer shows an interactive confirm form on a terminal.
type TerminalConfirmer struct {
	In         io.Reader
	Out        io.Writer
	Accessible bool
}

// NewTerminalConfirmer creates a TerminalConfirmer on the given streams.
func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{In: in, Out: out}
}

// Confirm runs the form until the user answers or ctx ends. Aborting the
// form (ctrl+c, esc) counts as a denial.
func (c *TerminalConfirmer) Confirm(ctx context.Context, p Prompt) (bool, error) {
	origin := p.Origin
	if origin == "" {
		origin = "unknown host"
	}

	var approved bool
	field := huh.NewConfirm().
		Title(fmt.Sprintf("Run command requested by %s?", origin)).
		Description("$ " + p.Command).
		Affirmative("Run").
		Negative("Deny").
		Value(&approved)

	form := huh.NewForm(huh.NewGroup(field)).
		WithInput(c.In).
		WithOutput(c.Out).
		WithAccessible(c.Accessible)

	if err := form.RunWithContext(ctx); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("terminal prompt: %w", err)
	}
	return approved, nil
}
