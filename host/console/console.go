// Package console is an interactive shell over an emulated PIO block:
// raw register access, SDK state machine calls and clock stepping.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"pioemu/core"
	"pioemu/sdk"
)

const prompt = "pio> "

// Console reads command lines from an input and writes results to an
// output.
type Console struct {
	sdk    *sdk.SDK
	gpio   *core.GPIO
	clock  *core.Clock
	trace  *core.Trace
	logger *slog.Logger

	registry *Registry
	in       io.Reader
	out      io.Writer
	prompt   bool
}

// New returns a console with the built-in commands registered. trace
// may be nil.
func New(s *sdk.SDK, gpio *core.GPIO, clock *core.Clock, trace *core.Trace,
	in io.Reader, out io.Writer, logger *slog.Logger) (*Console, error) {
	if s == nil || gpio == nil || clock == nil {
		return nil, errors.Wrap(core.ErrNilArgument, "console needs an sdk, gpio and clock")
	}
	if in == nil || out == nil {
		return nil, errors.Wrap(core.ErrNilArgument, "console streams")
	}
	c := &Console{
		sdk:      s,
		gpio:     gpio,
		clock:    clock,
		trace:    trace,
		logger:   core.LoggerOrDiscard(logger),
		registry: NewRegistry(),
		in:       in,
		out:      out,
	}
	if f, ok := in.(*os.File); ok {
		c.prompt = term.IsTerminal(int(f.Fd()))
	}
	for _, cmd := range builtins() {
		if err := c.registry.Register(cmd); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry exposes the command table, for adding commands.
func (c *Console) Registry() *Registry { return c.registry }

// Printf writes formatted output to the console.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Exec runs one command line.
func (c *Console) Exec(line string) error {
	return c.registry.Dispatch(c, line)
}

// Run executes lines until the input ends, quit is entered or ctx is
// done. Command errors are printed and do not end the session.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		if c.prompt {
			c.Printf("%s", prompt)
		}
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return errors.Wrap(err, "console input")
			}
			return nil
		case line := <-lines:
			err := c.Exec(line)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			if err != nil {
				c.logger.Debug("command failed", "line", line, "error", err)
				c.Printf("error: %v\n", err)
			}
		}
	}
}
