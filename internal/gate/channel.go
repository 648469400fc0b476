package gate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// ConfirmationChannel asks a human a yes/no question. The target names
// who or what to ask; for the approval-store poller it is the approval
// key, interactive channels may ignore it.
type ConfirmationChannel interface {
	Confirm(ctx context.Context, target, prompt string) (bool, error)
}

// ChannelFunc adapts a plain function to a ConfirmationChannel.
type ChannelFunc func(ctx context.Context, target, prompt string) (bool, error)

// Confirm calls f.
func (f ChannelFunc) Confirm(ctx context.Context, target, prompt string) (bool, error) {
	return f(ctx, target, prompt)
}

// Scripted returns a channel that always answers the same way. Used by
// certification runs and tests.
func Scripted(answer bool) ConfirmationChannel {
	return ChannelFunc(func(ctx context.Context, _, _ string) (bool, error) {
		return answer, nil
	})
}

// Terminal asks on an interactive terminal. One line is read; anything
// starting with y or Y is a yes, everything else is a no.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

// Confirm prints the prompt and waits for an answer or ctx expiry.
func (t *Terminal) Confirm(ctx context.Context, _ string, prompt string) (bool, error) {
	in := t.In
	if in == nil {
		in = os.Stdin
	}
	out := t.Out
	if out == nil {
		out = os.Stdout
	}

	fmt.Fprintf(out, "%s [y/N]: ", prompt)

	type answer struct {
		yes bool
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			ch <- answer{false, err}
			return
		}
		line = strings.ToLower(strings.TrimSpace(line))
		ch <- answer{strings.HasPrefix(line, "y"), nil}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(out)
		return false, ctx.Err()
	case a := <-ch:
		return a.yes, a.err
	}
}
