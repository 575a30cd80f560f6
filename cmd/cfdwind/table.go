package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#101F38"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))

	statusStyles = map[string]lipgloss.Style{
		"succeeded": lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
		"failed":    lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")),
		"running":   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")),
	}
)

// simpleTable renders static rows with padded, separator-joined columns.
type simpleTable struct {
	Title   string
	Headers []string
	Rows    [][]string
	// StatusColumn is styled by value; -1 disables it.
	StatusColumn int
}

func newSimpleTable(title string, headers ...string) *simpleTable {
	return &simpleTable{Title: title, Headers: headers, StatusColumn: -1}
}

func (t *simpleTable) AddRow(row ...string) {
	t.Rows = append(t.Rows, row)
}

func (t *simpleTable) View() string {
	if len(t.Rows) == 0 {
		return ""
	}

	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(titleStyle.Render(t.Title))
		sb.WriteString("\n")
	}

	colWidths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		colWidths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(colWidths) {
				colWidths[i] = max(colWidths[i], lipgloss.Width(cell))
			}
		}
	}
	// Width includes padding
	for i := range colWidths {
		colWidths[i] += 2
	}

	sep := mutedStyle.Render("|")
	for i, h := range t.Headers {
		sb.WriteString(headerStyle.Width(colWidths[i]).Render(h))
		if i < len(t.Headers)-1 {
			sb.WriteString(sep)
		}
	}
	sb.WriteString("\n")

	total := len(t.Headers) - 1
	for _, w := range colWidths {
		total += w
	}
	sb.WriteString(mutedStyle.Render(strings.Repeat("-", total)) + "\n")

	for _, row := range t.Rows {
		for i, cell := range row {
			if i >= len(colWidths) {
				break
			}
			style := cellStyle
			if i == t.StatusColumn {
				if s, ok := statusStyles[cell]; ok {
					style = s.Padding(0, 1)
				}
			}
			sb.WriteString(style.Width(colWidths[i]).Render(cell))
			if i < len(row)-1 && i < len(colWidths)-1 {
				sb.WriteString(sep)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
