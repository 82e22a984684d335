package cli

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Flexoki Dark.
var (
	colorRule   = lipgloss.Color("#575653")
	colorMuted  = lipgloss.Color("#6F6E69")
	colorText   = lipgloss.Color("#FFFCF0")
	colorAccent = lipgloss.Color("#3AA99F")
	colorWarn   = lipgloss.Color("#DA702C")
	colorInk    = lipgloss.Color("#100F0F")
)

// FlamePalette colors frames. A frame's color depends only on its name so
// the same function keeps its color across views.
var FlamePalette = []lipgloss.Color{
	"#D14D41", "#DA702C", "#D0A215", "#E47A3A", "#C9522F",
	"#E0A33A", "#BC5215", "#AD8301", "#E8705F", "#F0A04B",
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	valueStyle  = lipgloss.NewStyle().Foreground(colorText)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	ruleStyle   = lipgloss.NewStyle().Foreground(colorRule)
)

// Table is a titled text table. A column whose body cells are all
// formatted quantities is right aligned.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// RenderTable renders t with rounded borders, or "" when it has no content.
func RenderTable(t Table) string {
	if len(t.Headers) == 0 && len(t.Rows) == 0 {
		return ""
	}
	right := quantityColumns(t.Rows)

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(ruleStyle).
		Headers(t.Headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := valueStyle
			if row == table.HeaderRow {
				s = headerStyle
			}
			s = s.Padding(0, 1)
			if right[col] {
				s = s.Align(lipgloss.Right)
			}
			return s
		})

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  " + headerStyle.Render(t.Title) + "\n")
	}
	b.WriteString(tbl.Render())
	b.WriteString("\n")
	return b.String()
}

func quantityColumns(rows [][]string) map[int]bool {
	right := map[int]bool{}
	if len(rows) == 0 {
		return right
	}
	cols := 0
	for _, r := range rows {
		cols = max(cols, len(r))
	}
	for c := 0; c < cols; c++ {
		right[c] = true
		for _, r := range rows {
			if c >= len(r) || !isQuantity(r[c]) {
				right[c] = false
				break
			}
		}
	}
	return right
}

// unitSuffixes are the suffixes FormatValue, FormatShare and FormatNumber
// attach to a number.
var unitSuffixes = map[string]bool{
	"": true, "%": true, "K": true, "M": true, "B": true,
	"ns": true, "µs": true, "ms": true, "s": true, "m": true,
	"KiB": true, "MiB": true, "GiB": true, "TiB": true, "PiB": true,
}

// isQuantity reports whether s reads as a formatted number with an optional
// unit, such as "1,234", "2.5ms", "2m 5s", "1.5 KiB" or the "-" placeholder.
func isQuantity(s string) bool {
	if s == "-" {
		return true
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return false
	}
	sawDigit := false
	for _, f := range fields {
		f = strings.TrimPrefix(f, "-")
		i := strings.IndexFunc(f, func(r rune) bool {
			return !unicode.IsDigit(r) && r != '.' && r != ','
		})
		if i < 0 {
			i = len(f)
		}
		if i > 0 {
			sawDigit = true
		}
		if !unitSuffixes[f[i:]] {
			return false
		}
	}
	return sawDigit
}

// RenderTitle renders title in an accented rounded box.
func RenderTitle(title string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(0, 2).
		Render(headerStyle.Render(title))
}

func bar(frac float64, width int) string {
	frac = min(max(frac, 0), 1)
	p := progress.New(
		progress.WithSolidFill(string(colorAccent)),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
	)
	p.EmptyColor = string(colorRule)
	return p.ViewAs(frac)
}

// ShareBar renders part's share of whole as a bar followed by the
// percentage. A zero whole renders an empty bar and "-".
func ShareBar(part, whole float64, width int) string {
	frac := 0.0
	if whole != 0 {
		frac = part / whole
	}
	return fmt.Sprintf("%s %6s", bar(frac, width), FormatShare(part, whole))
}

// RenderProgressBar renders current out of total as a bar and a count.
func RenderProgressBar(current, total int, width int) string {
	if total <= 0 {
		return ""
	}
	return fmt.Sprintf("%s %s/%s",
		bar(float64(current)/float64(total), width),
		FormatNumber(int64(current)),
		FormatNumber(int64(total)),
	)
}

// RenderWarning renders a one-line warning.
func RenderWarning(msg string) string {
	return warnStyle.Render("  ! " + msg)
}
