// Package output renders command results and errors as text or JSON.
package output

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format selects how command results are written.
type Format string

// Output formats. FormatAuto is only a setting; ResolveFormat never returns it.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// ResolveFormat turns the output.default_format setting into the format a
// command writes. "auto", empty and unrecognized settings pick text on a
// terminal and JSON when stdout is piped into a script.
func ResolveFormat(w io.Writer, setting string) Format {
	switch f := Format(strings.ToLower(strings.TrimSpace(setting))); f {
	case FormatText, FormatJSON:
		return f
	}
	if isTerminal(w) {
		return FormatText
	}
	return FormatJSON
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd() fits in int on supported platforms
}

// Formatter writes a command's result in one resolved format.
type Formatter struct {
	format Format
	w      io.Writer
}

// NewFormatter returns a formatter writing format to w.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{format: format, w: w}
}

// Format returns the resolved format.
func (f *Formatter) Format() Format {
	return f.format
}

// Writer returns the result stream.
func (f *Formatter) Writer() io.Writer {
	return f.w
}

// Emit writes v as JSON, or calls text to render it for humans. A result
// without a text rendering is written as JSON in either format.
func (f *Formatter) Emit(v any, text func(w io.Writer) error) error {
	if f.format == FormatJSON || text == nil {
		return writeJSON(f.w, v)
	}
	return text(f.w)
}

// Success confirms a command that has no result of its own.
func (f *Formatter) Success(message string) error {
	return FormatSuccess(f.w, message, f.format)
}

// Error renders err in the formatter's format.
func (f *Formatter) Error(err error) error {
	return FormatError(f.w, err, f.format)
}
