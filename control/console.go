// SPDX-License-Identifier: EPL-2.0

package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Prompt is shown before each command on a terminal.
const Prompt = "jdelay> "

// Console reads commands from in and writes replies to out.
type Console struct {
	ctrl *Controller
	in   io.Reader
	out  io.Writer
}

func NewConsole(ctrl *Controller, in io.Reader, out io.Writer) *Console {
	return &Console{ctrl: ctrl, in: in, out: out}
}

type lineReader interface {
	ReadLine() (string, error)
}

type scanLines struct{ sc *bufio.Scanner }

func (s scanLines) ReadLine() (string, error) {
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}
	if err := s.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

// Run processes commands until quit, end of input or ctx is done. When in
// is a terminal it is switched to raw mode for line editing and restored
// before Run returns.
func (c *Console) Run(ctx context.Context) error {
	var (
		lines lineReader
		out   = c.out
	)

	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw terminal: %w", err)
		}
		defer func() { _ = term.Restore(fd, oldState) }()

		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{c.in, c.out}, Prompt)
		lines, out = t, t
	} else {
		lines = scanLines{sc: bufio.NewScanner(c.in)}
	}

	return c.loop(ctx, lines, out)
}

type readResult struct {
	line string
	err  error
}

func (c *Console) loop(ctx context.Context, lines lineReader, out io.Writer) error {
	results := make(chan readResult)
	next := make(chan struct{})
	done := make(chan struct{})
	defer close(done)

	// A blocked read cannot be interrupted, so reading happens on its own
	// goroutine and the loop selects on ctx.
	go func() {
		for {
			line, err := lines.ReadLine()
			select {
			case results <- readResult{line, err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
			select {
			case <-next:
			case <-done:
				return
			}
		}
	}()

	for {
		var r readResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r = <-results:
		}

		if r.err != nil {
			if errors.Is(r.err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read command: %w", r.err)
		}

		reply, err := c.ctrl.Dispatch(r.line)
		switch {
		case errors.Is(err, ErrQuit):
			if reply != "" {
				fmt.Fprintln(out, reply)
			}
			return nil
		case err != nil:
			fmt.Fprintln(out, "error:", err)
		case reply != "":
			fmt.Fprintln(out, reply)
		}

		select {
		case next <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
