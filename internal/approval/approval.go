// Package approval asks a human whether a dangerous command may run.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// Outcome is the resolved answer to a prompt.
type Outcome int

const (
	Deny Outcome = iota
	Allow
)

func (o Outcome) String() string {
	if o == Allow {
		return "allow"
	}
	return "deny"
}

// Prompt describes the command awaiting confirmation.
type Prompt struct {
	ToolName    string
	Command     string
	Cwd         string
	Pattern     string
	Description string
}

// Confirmer performs one blocking confirmation.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (Outcome, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, p Prompt) (Outcome, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, p Prompt) (Outcome, error) {
	return f(ctx, p)
}

// StaticConfirmer answers every prompt the same way.
type StaticConfirmer Outcome

func (s StaticConfirmer) Confirm(context.Context, Prompt) (Outcome, error) {
	return Outcome(s), nil
}

// State is the controller's position in Idle → Prompting → Resolved. A
// controller returns to Idle once the resolved prompt releases its slot.
type State int32

const (
	Idle State = iota
	Prompting
	Resolved
)

func (s State) String() string {
	switch s {
	case Prompting:
		return "prompting"
	case Resolved:
		return "resolved"
	}
	return "idle"
}

// Controller lets one prompt through at a time. Concurrent callers queue
// behind the active prompt; a caller whose context ends while queued is
// denied without prompting.
type Controller struct {
	confirmer Confirmer
	log       *slog.Logger
	slot      chan struct{}
	state     atomic.Int32
}

func NewController(c Confirmer, log *slog.Logger) *Controller {
	if c == nil {
		c = StaticConfirmer(Deny)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		confirmer: c,
		log:       log,
		slot:      make(chan struct{}, 1),
	}
}

// State reports whether a prompt is in flight.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Confirm never returns an error: failures and cancellations resolve to
// Deny. The error result only satisfies Confirmer.
func (c *Controller) Confirm(ctx context.Context, p Prompt) (Outcome, error) {
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		c.log.Debug("confirmation abandoned while queued", "command", p.Command)
		return Deny, nil
	}
	defer func() {
		c.state.Store(int32(Idle))
		<-c.slot
	}()

	c.state.Store(int32(Prompting))
	outcome, err := c.confirmer.Confirm(ctx, p)
	c.state.Store(int32(Resolved))

	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		c.log.Warn("confirmation failed, denying", "command", p.Command, "error", err)
		return Deny, nil
	case err != nil || ctx.Err() != nil:
		return Deny, nil
	}
	c.log.Debug("confirmation resolved", "command", p.Command, "outcome", outcome.String())
	return outcome, nil
}
