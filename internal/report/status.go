// Package report renders everything the user sees: the transient progress
// line on stderr and the extent table on stdout.
package report

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// Status owns the single transient progress line. Each message overwrites
// the previous one in place; nothing is ever written when the output is not
// a terminal, and progress is suppressed entirely in quiet mode.
type Status struct {
	out   *os.File
	prog  string
	tty   bool
	quiet bool
}

// NewStatus returns a Status writing to out. prog prefixes every message.
func NewStatus(out *os.File, prog string, quiet bool) *Status {
	return &Status{
		out:   out,
		prog:  prog,
		tty:   isatty.IsTerminal(out.Fd()),
		quiet: quiet,
	}
}

// Printf replaces the progress line.
func (s *Status) Printf(format string, args ...interface{}) {
	if s.quiet || !s.tty {
		return
	}
	fmt.Fprintf(s.out, "\x1b[2K\r%s: %s", s.prog, fmt.Sprintf(format, args...))
}

// Clear erases the progress line so whatever comes next starts on a clean
// row. Quiet mode does not skip this: the line being cleared may have been
// drawn before quiet output began.
func (s *Status) Clear() {
	if !s.tty {
		return
	}
	fmt.Fprint(s.out, "\x1b[2K\r")
}
