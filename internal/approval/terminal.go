package approval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
)

const (
	keyCtrlC = 0x03
	keyEsc   = 0x1b
)

var errTerminalClosed = errors.New("terminal closed")

// TerminalConfirmer prompts on a terminal and reads a single key in raw
// mode: y, Y or Enter allow; n, N, Esc, Ctrl-C or end of input deny.
// Other keys are ignored.
//
// A cancelled prompt closes In, when it is an io.Closer, so the pending read
// cannot swallow a later keypress. The confirmer denies every prompt after
// that.
type TerminalConfirmer struct {
	In  io.Reader
	Out io.Writer
	// Fd is put into raw mode for the duration of the read when it is a
	// terminal. -1 disables raw mode.
	Fd int

	closeOnce sync.Once
	closed    atomic.Bool
}

// Close closes In if it is an io.Closer. It is safe to call more than once.
func (t *TerminalConfirmer) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if c, ok := t.In.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// Interactive returns a terminal confirmer on the controlling terminal,
// falling back to stdin when it is a terminal. With no terminal it
// returns a confirmer that always denies.
func Interactive() (Confirmer, func() error) {
	if tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0); err == nil {
		if term.IsTerminal(int(tty.Fd())) {
			tc := &TerminalConfirmer{In: tty, Out: tty, Fd: int(tty.Fd())}
			return tc, tc.Close
		}
		tty.Close()
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return &TerminalConfirmer{In: os.Stdin, Out: os.Stderr, Fd: int(os.Stdin.Fd())}, func() error { return nil }
	}
	return StaticConfirmer(Deny), func() error { return nil }
}

func (t *TerminalConfirmer) Confirm(ctx context.Context, p Prompt) (Outcome, error) {
	if t.closed.Load() {
		return Deny, errTerminalClosed
	}
	out := t.Out
	if out == nil {
		out = io.Discard
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "⚠️  Dangerous command detected")
	fmt.Fprintf(out, "   %s\n", p.Command)
	if p.Description != "" {
		fmt.Fprintf(out, "   Reason: %s\n", p.Description)
	}
	fmt.Fprint(out, "Allow? [Y/n] ")

	restore := func() {}
	if t.Fd >= 0 && term.IsTerminal(t.Fd) {
		state, err := term.MakeRaw(t.Fd)
		if err != nil {
			return Deny, fmt.Errorf("enter raw mode: %w", err)
		}
		restore = func() { _ = term.Restore(t.Fd, state) }
	}

	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		o, err := readKey(t.In)
		done <- result{o, err}
	}()

	select {
	case r := <-done:
		restore()
		fmt.Fprintf(out, "%s\r\n", r.outcome)
		return r.outcome, r.err
	case <-ctx.Done():
		// The terminal must leave raw mode before its descriptor closes.
		restore()
		fmt.Fprint(out, "cancelled\r\n")
		t.Close()
		return Deny, ctx.Err()
	}
}

func readKey(in io.Reader) (Outcome, error) {
	if in == nil {
		return Deny, nil
	}
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n == 1 {
			switch buf[0] {
			case 'y', 'Y', '\r', '\n':
				return Allow, nil
			case 'n', 'N', keyEsc, keyCtrlC:
				return Deny, nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return Deny, nil
		}
		if err != nil {
			return Deny, err
		}
	}
}
