package output

import (
	"io"
	"strings"
	"unicode/utf8"
)

const columnGap = "  "

// Table lays out command results in columns. Headers are underlined with
// dashes, and trailing padding is trimmed from every line.
type Table struct {
	headers []string
	rows    [][]string
	right   map[int]bool
	bare    bool
}

// NewTable returns a table with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AlignRight right-aligns the given columns. Gas figures, chain IDs and
// amounts read better this way.
func (t *Table) AlignRight(cols ...int) *Table {
	if t.right == nil {
		t.right = make(map[int]bool, len(cols))
	}
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

// AddRow appends a row. Short rows leave their last columns blank.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Fields writes label/value pairs one per line with the values aligned.
// A trailing label without a value is dropped.
func Fields(w io.Writer, pairs ...string) error {
	t := &Table{bare: true}
	for i := 0; i+1 < len(pairs); i += 2 {
		t.AddRow(pairs[i]+":", pairs[i+1])
	}
	return t.Render(w)
}

// Render writes the table to w. A table with no headers and no rows writes
// nothing.
func (t *Table) Render(w io.Writer) error {
	widths := t.widths()
	if len(widths) == 0 {
		return nil
	}

	var sb strings.Builder
	if !t.bare && len(t.headers) > 0 {
		t.writeLine(&sb, t.headers, widths)
		rule := make([]string, len(widths))
		for i, n := range widths {
			rule[i] = strings.Repeat("-", n)
		}
		t.writeLine(&sb, rule, widths)
	}
	for _, row := range t.rows {
		t.writeLine(&sb, row, widths)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func (t *Table) widths() []int {
	n := len(t.headers)
	for _, row := range t.rows {
		n = max(n, len(row))
	}
	if n == 0 {
		return nil
	}

	widths := make([]int, n)
	measure := func(cells []string) {
		for i, c := range cells {
			widths[i] = max(widths[i], utf8.RuneCountInString(c))
		}
	}
	if !t.bare {
		measure(t.headers)
	}
	for _, row := range t.rows {
		measure(row)
	}
	return widths
}

func (t *Table) writeLine(sb *strings.Builder, cells []string, widths []int) {
	parts := make([]string, len(widths))
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := strings.Repeat(" ", width-utf8.RuneCountInString(cell))
		if t.right[i] {
			parts[i] = pad + cell
		} else {
			parts[i] = cell + pad
		}
	}
	sb.WriteString(strings.TrimRight(strings.Join(parts, columnGap), " "))
	sb.WriteByte('\n')
}
