package policy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// TerminalConfirmer asks for approval on the controlling terminal. Without
// a TTY every request is denied; an unattended process must not silently
// approve dangerous calls.
type TerminalConfirmer struct {
	in    io.Reader
	out   io.Writer
	isTTY bool
}

// NewTerminalConfirmer creates a confirmer bound to stdin/stdout.
func NewTerminalConfirmer() *TerminalConfirmer {
	return &TerminalConfirmer{
		in:    os.Stdin,
		out:   os.Stdout,
		isTTY: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// RequestApproval prompts and reads a y/N answer. The read runs in a
// goroutine so the context deadline is honored even while blocked on input.
func (t *TerminalConfirmer) RequestApproval(ctx context.Context, description string, dangerous bool) (bool, error) {
	if !t.isTTY {
		return false, nil
	}

	label := "Approve"
	if dangerous {
		label = color.RedString("Approve DANGEROUS operation")
	}
	fmt.Fprintf(t.out, "%s: %s [y/N] ", label, description)

	type answer struct {
		ok  bool
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(t.in).ReadString('\n')
		if err != nil {
			ch <- answer{err: err}
			return
		}
		line = strings.ToLower(strings.TrimSpace(line))
		ch <- answer{ok: line == "y" || line == "yes"}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(t.out)
		return false, ctx.Err()
	case a := <-ch:
		return a.ok, a.err
	}
}

// AutoApprover approves everything. Used by non-interactive runs that were
// explicitly started with confirmation disabled.
type AutoApprover struct{}

func (AutoApprover) RequestApproval(context.Context, string, bool) (bool, error) {
	return true, nil
}
