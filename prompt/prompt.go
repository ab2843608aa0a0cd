// Package prompt asks the user to pick one of several options.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Cancelled is returned by Select when the user declines to choose.
const Cancelled = -1

// Prompt presents options and returns the chosen index or Cancelled.
type Prompt interface {
	Select(title string, options []string) int
}

// Func adapts a function to Prompt.
type Func func(title string, options []string) int

// Select implements Prompt.
func (f Func) Select(title string, options []string) int { return f(title, options) }

// Fixed always answers with the same index. Out-of-range values cancel.
type Fixed int

// Select implements Prompt.
func (f Fixed) Select(_ string, options []string) int {
	if int(f) < 0 || int(f) >= len(options) {
		return Cancelled
	}
	return int(f)
}

// maxAttempts bounds how often Terminal re-asks after invalid input.
const maxAttempts = 3

// Terminal reads a 1-based choice from In and writes the menu to Out.
// An empty line, "0", "q" or EOF cancels.
type Terminal struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// NewTerminal creates a Terminal over in and out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{In: in, Out: out}
}

// Select implements Prompt.
func (t *Terminal) Select(title string, options []string) int {
	if len(options) == 0 {
		return Cancelled
	}
	if t.reader == nil {
		t.reader = bufio.NewReader(t.In)
	}

	fmt.Fprintln(t.Out, title)
	for i, opt := range options {
		fmt.Fprintf(t.Out, "  %d) %s\n", i+1, opt)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		fmt.Fprintf(t.Out, "Choice [1-%d, empty to cancel]: ", len(options))
		line, err := t.reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" || line == "0" || strings.EqualFold(line, "q") {
			return Cancelled
		}
		n, convErr := strconv.Atoi(line)
		if convErr == nil && n >= 1 && n <= len(options) {
			return n - 1
		}
		if err != nil {
			return Cancelled
		}
		fmt.Fprintf(t.Out, "invalid choice %q\n", line)
	}
	return Cancelled
}
