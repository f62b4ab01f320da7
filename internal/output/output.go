// Package output renders command results as text, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// TextRenderer is implemented by results with a human readable form.
type TextRenderer interface {
	RenderText(w io.Writer) error
}

// Writer handles output in the specified format.
type Writer struct {
	format Format
	w      io.Writer
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{format: format, w: w}
}

// Format returns the writer's format.
func (w *Writer) Format() Format {
	return w.format
}

// Structured reports whether output is machine readable.
func (w *Writer) Structured() bool {
	return w.format == FormatJSON || w.format == FormatYAML
}

// Write outputs the given value in the configured format.
func (w *Writer) Write(v interface{}) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return errors.Trace(enc.Encode(v))
	case FormatYAML:
		enc := yaml.NewEncoder(w.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(enc.Close())
	default:
		switch t := v.(type) {
		case TextRenderer:
			return errors.Trace(t.RenderText(w.w))
		case fmt.Stringer:
			_, err := fmt.Fprintln(w.w, t.String())
			return errors.Trace(err)
		}
		_, err := fmt.Fprintf(w.w, "%+v\n", v)
		return errors.Trace(err)
	}
}

// ParseFormat parses a format string into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errors.NotValidf("output format %q", s)
	}
}

// Progress prints a percentage line for a long running step. It prints
// nothing when quiet.
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	label string
	quiet bool
	last  int
}

// NewProgress returns a Progress writing to w.
func NewProgress(w io.Writer, label string, quiet bool) *Progress {
	return &Progress{w: w, label: label, quiet: quiet, last: -1}
}

// Report prints percent if it moved since the last call.
func (p *Progress) Report(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quiet || percent == p.last {
		return
	}
	p.last = percent
	fmt.Fprintf(p.w, "\r%s %3d%%", p.label, percent)
	if percent >= 100 {
		fmt.Fprintln(p.w)
	}
}

// Done terminates the progress line if it was left open.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.quiet && p.last >= 0 && p.last < 100 {
		fmt.Fprintln(p.w)
	}
	p.last = -1
}
