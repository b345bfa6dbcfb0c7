package tui

import (
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

// screen row of the table header; data rows start two rows below it
const tableTop = 7

func (m MainModel) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	m.statusMsg = "" // clear any transient error on interaction

	switch msg.Button {
	case tea.MouseButtonWheelUp, tea.MouseButtonWheelDown:
		// Convert wheel to key so the table scrolls by one row
		// without jumping the cursor to the mouse Y position.
		keyMsg := tea.KeyMsg{Type: tea.KeyDown}
		if msg.Button == tea.MouseButtonWheelUp {
			keyMsg = tea.KeyMsg{Type: tea.KeyUp}
		}
		prev := m.table.Cursor()
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(keyMsg)
		if m.table.Cursor() != prev {
			m.updateSideViewport()
		}
		return m, cmd
	}

	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	switch {
	case msg.Y == 5:
		m.input.Focus()
	case msg.Y == tableTop:
		m.input.Blur()
		m.handleHeaderClick(msg.X - 2)
	case msg.Y > tableTop:
		m.input.Blur()
		row := m.table.Cursor() - cursorOffset(m.table) + (msg.Y - tableTop - 2)
		if row >= 0 && row < len(m.filtered) {
			m.table.SetCursor(row)
			m.updateSideViewport()
		}
	}
	return m, nil
}

// cursorOffset is the cursor's row within the visible window.
func cursorOffset(t table.Model) int {
	return min(t.Cursor(), t.Height()-1)
}

// returns the column index at x cells, or -1 if not found.
func (m *MainModel) getColumnAtX(x int, cols []table.Column) int {
	currentX := 0
	for i, col := range cols {
		colWidth := col.Width + 2
		if x >= currentX && x < currentX+colWidth {
			return i
		}
		currentX += colWidth
	}
	return -1
}

func (m *MainModel) handleHeaderClick(x int) {
	switch m.getColumnAtX(x, m.table.Columns()) {
	case 0:
		m.setSort("proto")
	case 1:
		m.setSort("addr")
	case 2:
		m.setSort("port")
	case 3:
		m.setSort("name")
	}
}
