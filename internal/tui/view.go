package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func (m MainModel) View() string {
	if m.quitting {
		return ""
	}

	outerStyle := baseStyle.
		Width(m.width-2).
		Height(m.height-2).
		Padding(0, 1)

	status := "Mode: Navigation (Press / to search)"
	if m.input.Focused() {
		status = "Mode: Searching (Press Esc/Enter to stop)"
	}
	if m.statusMsg != "" {
		status = errorStyle.Render(m.statusMsg)
	}

	dimBorderColor := lipgloss.Color("#585858") // Dark Gray

	sideHeader := "Process"
	if sel, ok := m.selectedEntry(); ok {
		sideHeader = sel.process
	}
	if !m.viewport.AtTop() && !m.viewport.AtBottom() {
		sideHeader += " ↕"
	} else if !m.viewport.AtTop() {
		sideHeader += " ↑"
	} else if !m.viewport.AtBottom() {
		sideHeader += " ↓"
	}

	sideContainerStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(dimBorderColor).
		PaddingLeft(2).
		Height(m.table.Height())

	sideHeaderStyle := tableHeaderStyle.
		Width(m.viewport.Width).
		Foreground(lipgloss.Color("#bcbcbc")). // Light Gray
		BorderForeground(dimBorderColor)

	availableWidth := m.width - 6
	listPaneWidth := max(int(float64(availableWidth)*0.7), 10)

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(listPaneWidth).Render(m.table.View()),
		sideContainerStyle.Render(
			lipgloss.JoinVertical(lipgloss.Left,
				sideHeaderStyle.Render(sideHeader),
				lipgloss.NewStyle().PaddingLeft(1).Render(m.viewport.View()),
			),
		),
	)

	mode := liveStyle.Render("LIVE")
	if m.paused {
		mode = pausedStyle.Render("PAUSED")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("whosock"),
		mode,
	)

	footerContent := m.footer()
	if m.opts.Version != "" {
		gap := m.width - 6 - lipgloss.Width(footerContent) - lipgloss.Width(m.opts.Version)
		if gap > 0 {
			footerContent += strings.Repeat(" ", gap) + m.opts.Version
		}
	}

	return outerStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			lipgloss.NewStyle().Height(1).Render(""),
			lipgloss.NewStyle().MarginBottom(1).PaddingLeft(1).Render(status),
			lipgloss.NewStyle().MarginBottom(1).PaddingLeft(1).Render(m.input.View()),
			mainContent,
			lipgloss.NewStyle().Height(1).Render(""),
			footerStyle.Width(m.width-4).Render(footerContent),
		),
	)
}

func (m MainModel) footer() string {
	total := fmt.Sprintf("Total: %d", len(m.filtered))
	if len(m.filtered) != m.snapshot.Len() {
		total += fmt.Sprintf(" of %d", m.snapshot.Len())
	}

	refreshed := "Refreshed: never"
	if !m.lastRefresh.IsZero() {
		refreshed = "Refreshed: " + m.lastRefresh.Format(time.TimeOnly)
	}

	return fmt.Sprintf("%s | %s every %s | t/a/o/n: Sort | r: Refresh | Space: Pause | Esc/q: Quit",
		total, refreshed, m.opts.Interval)
}
