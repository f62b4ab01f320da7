// Package interactive provides interactive prompts for user confirmation.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/adamancini/hatch/internal/release"
)

// Response represents the user's answer to a prompt.
type Response int

const (
	ResponseNo  Response = iota // Decline; also the answer to anything unrecognised
	ResponseYes                 // Proceed
	ResponseQuit                // Input closed or the user asked to stop
)

// Prompter asks yes/no questions on a line-oriented stream.
type Prompter struct {
	out     io.Writer
	scanner *bufio.Scanner
}

// NewPrompter creates a prompter on stdin and stdout.
func NewPrompter() *Prompter {
	return NewPrompterWithIO(os.Stdin, os.Stdout)
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{out: out, scanner: bufio.NewScanner(in)}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (p *Prompter) prompt(format string, args ...interface{}) Response {
	_, _ = fmt.Fprintf(p.out, format, args...)
	_, _ = fmt.Fprint(p.out, " [y/N] ")

	if !p.scanner.Scan() {
		return ResponseQuit
	}
	switch strings.ToLower(strings.TrimSpace(p.scanner.Text())) {
	case "y", "yes":
		return ResponseYes
	case "q", "quit":
		return ResponseQuit
	default:
		return ResponseNo
	}
}

// Confirm asks the question and reports whether the user agreed.
func (p *Prompter) Confirm(format string, args ...interface{}) bool {
	return p.prompt(format, args...) == ResponseYes
}

// ConfirmReleases lists the releases about to be applied on top of current
// and asks whether to go ahead.
func (p *Prompter) ConfirmReleases(current *release.Entry, entries []release.Entry) bool {
	if len(entries) == 0 {
		return true
	}
	from := "nothing installed"
	if current != nil {
		from = current.Version.String()
	}
	_, _ = fmt.Fprintf(p.out, "Installed: %s\n", from)
	var total int64
	for _, e := range entries {
		kind := "full"
		if e.IsDelta {
			kind = "delta"
		}
		_, _ = fmt.Fprintf(p.out, "  %-12s %-5s %s\n", e.Version, kind, humanSize(e.Filesize))
		total += e.Filesize
	}
	return p.Confirm("Apply %d release(s), %s to download?", len(entries), humanSize(total))
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
