package output

import (
	"fmt"
	"io"
)

// Messenger prints progress notices, usually to stderr so that stdout stays
// machine readable.
type Messenger struct {
	w     io.Writer
	plain bool
}

// NewMessenger creates a Messenger. Plain drops the emoji prefixes.
func NewMessenger(w io.Writer, plain bool) *Messenger {
	return &Messenger{w: w, plain: plain}
}

// Infof prints an informational message.
func (m *Messenger) Infof(format string, args ...any) {
	m.print("ℹ️  ", "info: ", format, args...)
}

// Warnf prints a warning.
func (m *Messenger) Warnf(format string, args ...any) {
	m.print("⚠️  ", "warning: ", format, args...)
}

// Successf prints a success message.
func (m *Messenger) Successf(format string, args ...any) {
	m.print("✅ ", "", format, args...)
}

func (m *Messenger) print(fancy, plain, format string, args ...any) {
	if m == nil || m.w == nil {
		return
	}
	prefix := fancy
	if m.plain {
		prefix = plain
	}
	_, _ = fmt.Fprintln(m.w, prefix+fmt.Sprintf(format, args...))
}
