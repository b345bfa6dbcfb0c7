package tui

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wrap"
	"go.uber.org/zap"

	"github.com/pranshuparmar/whosock/internal/pipeline"
	"github.com/pranshuparmar/whosock/pkg/model"
)

type snapshotMsg struct {
	snap model.OpenSockets
	at   time.Time
	err  error
}

func (m MainModel) refreshSnapshot() tea.Cmd {
	ctx, src, log := m.ctx, m.opts.Source, m.opts.Logger
	return func() tea.Msg {
		snap, err := pipeline.OpenSockets(ctx, src, pipeline.WithCollisionHandler(func(c pipeline.Collision) {
			log.Debug("socket reported twice, keeping later owner",
				zap.Stringer("socket", c.Socket),
				zap.String("previous", c.Previous),
				zap.String("winner", c.Winner))
		}))
		return snapshotMsg{snap: snap, at: time.Now(), err: err}
	}
}

// applySnapshot replaces the table contents, keeping the cursor on the same
// socket when it is still present.
func (m *MainModel) applySnapshot(msg snapshotMsg) {
	var selected model.LocalSocket
	hadSelection := false
	if c := m.table.Cursor(); c >= 0 && c < len(m.filtered) {
		selected, hadSelection = m.filtered[c].socket, true
	}

	m.snapshot = msg.snap
	m.lastRefresh = msg.at
	m.entries = make([]entry, 0, msg.snap.Len())
	for s, name := range msg.snap.All() {
		m.entries = append(m.entries, entry{socket: s, process: name})
	}
	m.sortEntries()
	m.filterEntries()

	if hadSelection {
		if i := slices.IndexFunc(m.filtered, func(e entry) bool { return e.socket == selected }); i >= 0 {
			m.table.SetCursor(i)
		}
	}
	m.updateSideViewport()
}

func (m *MainModel) sortEntries() {
	slices.SortStableFunc(m.entries, func(a, b entry) int {
		var c int
		switch m.sortCol {
		case "proto":
			c = cmp.Compare(a.socket.Protocol, b.socket.Protocol)
		case "port":
			c = cmp.Compare(a.socket.Port, b.socket.Port)
		case "name":
			c = cmp.Compare(strings.ToLower(a.process), strings.ToLower(b.process))
		}
		if c == 0 {
			c = a.socket.Compare(b.socket)
		}
		if m.sortDesc {
			return -c
		}
		return c
	})
}

func (m *MainModel) filterEntries() {
	filter := strings.ToLower(m.input.Value())

	m.filtered = nil
	for _, e := range m.entries {
		if filter == "" ||
			strings.Contains(e.socket.IP.String(), filter) ||
			strings.Contains(strconv.Itoa(int(e.socket.Port)), filter) ||
			strings.Contains(strings.ToLower(e.socket.Protocol.String()), filter) ||
			strings.Contains(strings.ToLower(e.process), filter) {
			m.filtered = append(m.filtered, e)
		}
	}

	rows := make([]table.Row, 0, len(m.filtered))
	for _, e := range m.filtered {
		rows = append(rows, table.Row{
			e.socket.Protocol.String(),
			e.socket.IP.String(),
			strconv.Itoa(int(e.socket.Port)),
			e.process,
		})
	}
	m.table.SetRows(rows)
}

func (m *MainModel) getColumns() []table.Column {
	cols := []table.Column{
		{Title: "Proto", Width: 7},
		{Title: "Address", Width: 30},
		{Title: "Port", Width: 7},
		{Title: "Process", Width: 24},
	}

	addArrow := func(idx int, key string) {
		if m.sortCol == key {
			if m.sortDesc {
				cols[idx].Title += " ↓"
			} else {
				cols[idx].Title += " ↑"
			}
		}
	}

	addArrow(0, "proto")
	addArrow(1, "addr")
	addArrow(2, "port")
	addArrow(3, "name")

	return cols
}

// setSort toggles direction when col is already the sort column.
func (m *MainModel) setSort(col string) {
	if m.sortCol == col {
		m.sortDesc = !m.sortDesc
	} else {
		m.sortCol = col
		m.sortDesc = false
	}
	m.sortEntries()
	m.filterEntries()

	cols := m.table.Columns()
	newCols := m.getColumns()
	for i := range cols {
		if i < len(newCols) {
			newCols[i].Width = cols[i].Width
		}
	}
	m.table.SetColumns(newCols)
}

func (m MainModel) selectedEntry() (entry, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.filtered) {
		return entry{}, false
	}
	return m.filtered[c], true
}

// updateSideViewport lists every socket held by the selected process.
func (m *MainModel) updateSideViewport() {
	sel, ok := m.selectedEntry()
	if !ok {
		m.viewport.SetContent("")
		return
	}

	var held []model.LocalSocket
	for _, e := range m.entries {
		if e.process == sel.process {
			held = append(held, e.socket)
		}
	}
	slices.SortFunc(held, model.LocalSocket.Compare)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%d sockets\n\n", sel.process, len(held))
	for _, s := range held {
		b.WriteString(s.String())
		b.WriteString("\n")
	}
	content := b.String()
	if m.viewport.Width > 0 {
		content = wrap.String(content, m.viewport.Width)
	}
	m.viewport.SetContent(content)
}
