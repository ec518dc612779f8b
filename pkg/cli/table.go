package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// columnGap is the number of spaces between columns.
const columnGap = 2

// Table buffers rows and writes them column-aligned on Flush. When writing
// to a terminal, the widest columns are narrowed to fit and their cells
// wrapped onto continuation lines. Empty tables produce no output.
type Table struct {
	w         io.Writer
	headers   []string
	prefix    string
	rows      [][]string
	termWidth int
}

// NewTable creates a table with the given column headers, writing to stdout.
func NewTable(headers ...string) *Table {
	t := &Table{w: os.Stdout, headers: headers}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		t.termWidth = w
	}
	return t
}

// WithWriter redirects output. Width capping is disabled unless set again
// with WithWidth.
func (t *Table) WithWriter(w io.Writer) *Table {
	t.w = w
	t.termWidth = 0
	return t
}

// WithWidth caps the table at width columns; 0 disables capping.
func (t *Table) WithWidth(width int) *Table {
	t.termWidth = width
	return t
}

// WithPrefix sets a string prepended to each line (headers, divider, rows).
// Useful for indenting sub-tables within larger output.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// Row buffers one row. Missing cells are rendered empty.
func (t *Table) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Flush writes the headers, a dash divider and every buffered row. If no
// rows were added, nothing is printed.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}
	n := len(t.headers)
	widths := make([]int, n)
	for i, h := range t.headers {
		widths[i] = visualLen(h)
	}
	for _, row := range t.rows {
		for i := 0; i < n && i < len(row); i++ {
			widths[i] = max(widths[i], visualLen(row[i]))
		}
	}
	if t.termWidth > 0 {
		widths = capWidths(widths, t.headers, t.termWidth, visualLen(t.prefix))
	}

	dividers := make([]string, n)
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", visualLen(h))
	}
	t.writeLine(t.headers, widths)
	t.writeLine(dividers, widths)

	for _, row := range t.rows {
		cells := make([][]string, n)
		height := 1
		for i := range cells {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			cells[i] = wrapCell(v, widths[i])
			height = max(height, len(cells[i]))
		}
		for line := 0; line < height; line++ {
			vals := make([]string, n)
			for i := range cells {
				if line < len(cells[i]) {
					vals[i] = cells[i][line]
				}
			}
			t.writeLine(vals, widths)
		}
	}
	t.rows = nil
}

func (t *Table) writeLine(vals []string, widths []int) {
	var b strings.Builder
	b.WriteString(t.prefix)
	for i, v := range vals {
		b.WriteString(v)
		if i == len(vals)-1 {
			break
		}
		pad := widths[i] - visualLen(v) + columnGap
		b.WriteString(strings.Repeat(" ", max(pad, 1)))
	}
	fmt.Fprintln(t.w, strings.TrimRight(b.String(), " "))
}

// capWidths narrows the widest columns until the table fits termWidth. No
// column is narrowed below its header width, so a very narrow terminal may
// still overflow.
func capWidths(widths []int, headers []string, termWidth, prefix int) []int {
	out := append([]int(nil), widths...)
	minWidths := make([]int, len(out))
	for i := range out {
		if i < len(headers) {
			minWidths[i] = visualLen(headers[i])
		}
	}

	total := prefix + columnGap*(len(out)-1)
	for _, w := range out {
		total += w
	}
	for total > termWidth {
		widest := -1
		for i, w := range out {
			if w > minWidths[i] && (widest < 0 || w > out[widest]) {
				widest = i
			}
		}
		if widest < 0 {
			break
		}
		out[widest]--
		total--
	}
	return out
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visualLen is the printed width of s in terminal cells, ignoring ANSI
// color codes. East Asian wide characters count as two.
func visualLen(s string) int {
	return runewidth.StringWidth(ansiEscape.ReplaceAllString(s, ""))
}

// wrapCell word-wraps s to width. Words longer than width are hard-broken.
// A cell that fits is returned unchanged, color codes included.
func wrapCell(s string, width int) []string {
	if width <= 0 || visualLen(s) <= width {
		return []string{s}
	}

	var lines []string
	line := ""
	for _, word := range strings.Fields(ansiEscape.ReplaceAllString(s, "")) {
		if runewidth.StringWidth(word) > width {
			if line != "" {
				lines = append(lines, line)
			}
			line = ""
			for _, r := range word {
				if line != "" && runewidth.StringWidth(line)+runewidth.RuneWidth(r) > width {
					lines = append(lines, line)
					line = ""
				}
				line += string(r)
			}
			continue
		}
		switch {
		case line == "":
			line = word
		case runewidth.StringWidth(line)+1+runewidth.StringWidth(word) <= width:
			line += " " + word
		default:
			lines = append(lines, line)
			line = word
		}
	}
	if line != "" || len(lines) == 0 {
		lines = append(lines, line)
	}
	return lines
}
