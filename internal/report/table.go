package report

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// styles is the palette for one output. The renderer is bound to the writer,
// so files, pipes and buffers get plain text.
type styles struct {
	header lipgloss.Style
	label  lipgloss.Style
	gain   lipgloss.Style
	loss   lipgloss.Style
	dim    lipgloss.Style
	plain  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header: r.NewStyle().Foreground(lipgloss.Color("245")),
		label:  r.NewStyle().Bold(true),
		gain:   r.NewStyle().Foreground(lipgloss.Color("10")),
		loss:   r.NewStyle().Foreground(lipgloss.Color("9")),
		dim:    r.NewStyle().Foreground(lipgloss.Color("245")),
		plain:  r.NewStyle(),
	}
}

// signed returns the gain style for positive values, loss for negative.
func (s styles) signed(f float64) lipgloss.Style {
	switch {
	case f > 0:
		return s.gain
	case f < 0:
		return s.loss
	}
	return s.dim
}

type cell struct {
	text  string
	style lipgloss.Style
}

// table lays out styled cells in padded columns. Widths are measured on the
// rendered text, ignoring escape sequences.
type table struct {
	st     styles
	header []string
	right  []bool
	rows   [][]cell
}

func newTable(st styles, header ...string) *table {
	return &table{st: st, header: header}
}

// alignRight right-aligns the given columns.
func (t *table) alignRight(cols ...int) *table {
	for _, c := range cols {
		for len(t.right) <= c {
			t.right = append(t.right, false)
		}
		t.right[c] = true
	}
	return t
}

func (t *table) add(cells ...cell) {
	t.rows = append(t.rows, cells)
}

func (t *table) write(w io.Writer) error {
	all := make([][]string, 0, len(t.rows)+1)
	if len(t.header) > 0 {
		row := make([]string, len(t.header))
		for i, h := range t.header {
			row[i] = t.st.header.Render(h)
		}
		all = append(all, row)
	}
	for _, r := range t.rows {
		row := make([]string, len(r))
		for i, c := range r {
			row[i] = c.style.Render(c.text)
		}
		all = append(all, row)
	}

	var widths []int
	for _, row := range all {
		for i, s := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], lipgloss.Width(s))
		}
	}

	var b strings.Builder
	for _, row := range all {
		for i, s := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			gap := strings.Repeat(" ", widths[i]-lipgloss.Width(s))
			switch {
			case i < len(t.right) && t.right[i]:
				b.WriteString(gap + s)
			case i == len(row)-1:
				b.WriteString(s)
			default:
				b.WriteString(s + gap)
			}
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteTable prints rows under a dimmed header in aligned columns.
func WriteTable(w io.Writer, header []string, rows [][]string) error {
	st := newStyles(w)
	t := newTable(st, header...)
	for _, r := range rows {
		cells := make([]cell, len(r))
		for i, s := range r {
			cells[i] = cell{text: s, style: st.plain}
		}
		if len(cells) > 0 {
			cells[0].style = st.label
		}
		t.add(cells...)
	}
	return t.write(w)
}
