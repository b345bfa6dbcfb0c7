package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

type tickMsg time.Time

func (m MainModel) waitTick() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		var cmd tea.Cmd
		// Rows moving under the cursor while typing a search is confusing.
		if !m.paused && !m.refreshing && !m.quitting && !m.input.Focused() {
			m.refreshing = true
			cmd = m.refreshSnapshot()
		}
		return m, tea.Batch(cmd, m.waitTick())

	case snapshotMsg:
		m.refreshing = false
		if msg.err != nil {
			m.opts.Logger.Debug("snapshot failed", zap.Error(msg.err))
			m.statusMsg = msg.err.Error()
			return m, nil
		}
		m.applySnapshot(msg)
		return m, nil

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		m.statusMsg = "" // clear any transient error on interaction
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

		if m.input.Focused() {
			if msg.String() == "enter" || msg.String() == "esc" {
				m.input.Blur()
				return m, nil
			}
			var inputCmd tea.Cmd
			m.input, inputCmd = m.input.Update(msg)
			m.filterEntries()
			m.table.SetCursor(0)
			m.updateSideViewport()
			return m, inputCmd
		}

		switch msg.String() {
		case "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "/":
			m.input.Focus()
			return m, textinput.Blink
		case "r", "R":
			if !m.refreshing {
				m.refreshing = true
				return m, m.refreshSnapshot()
			}
			return m, nil
		case " ":
			m.paused = !m.paused
			return m, nil

		// Sorting Keys
		case "t", "T":
			m.setSort("proto")
			return m, nil
		case "a", "A":
			m.setSort("addr")
			return m, nil
		case "o", "O":
			m.setSort("port")
			return m, nil
		case "n", "N":
			m.setSort("name")
			return m, nil

		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		prev := m.table.Cursor()
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		if m.table.Cursor() != prev {
			m.updateSideViewport()
		}
		return m, cmd
	}

	return m, nil
}

func (m *MainModel) resize(width, height int) {
	m.width = width
	m.height = height

	availableWidth := max(width-6, 0)

	listHeight := max(height-11, 5)

	listPaneWidth := max(int(float64(availableWidth)*0.7), 10)
	listWidth := max(listPaneWidth-4, 10)

	fixedColumnsWidth := 44 // Proto(7)+Address(30)+Port(7)
	processWidth := max(listWidth-fixedColumnsWidth-8, 10)

	columns := m.getColumns()
	columns[3].Width = processWidth
	m.table.SetColumns(columns)
	m.table.SetWidth(listWidth)
	m.table.SetHeight(listHeight)

	m.viewport.Width = max(availableWidth-listPaneWidth-4, 10)
	m.viewport.Height = max(listHeight-2, 3)
	m.updateSideViewport()
}
