package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/pranshuparmar/whosock/pkg/model"
)

const maxProcessWidth = 40

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5f5fd7")) // Purple/Blue
	processStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22aa22"))            // Green
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))            // Dimmed Gray
)

// Filter selects which snapshot entries are rendered. Zero fields match
// everything.
type Filter struct {
	Process  string
	Protocol model.Protocol
	Port     uint16
}

func (f Filter) Match(s model.LocalSocket, process string) bool {
	if f.Process != "" && !strings.EqualFold(f.Process, process) {
		return false
	}
	if f.Protocol != 0 && f.Protocol != s.Protocol {
		return false
	}
	if f.Port != 0 && f.Port != s.Port {
		return false
	}
	return true
}

// Apply returns the part of snap that f matches.
func (f Filter) Apply(snap model.OpenSockets) model.OpenSockets {
	if f == (Filter{}) {
		return snap
	}
	m := make(map[model.LocalSocket]string)
	for s, name := range snap.All() {
		if f.Match(s, name) {
			m[s] = name
		}
	}
	return model.NewOpenSockets(m)
}

// RenderTable writes the snapshot as aligned columns sorted by socket.
func RenderTable(w io.Writer, snap model.OpenSockets, f Filter, colorEnabled bool) error {
	var rows [][]string
	for _, s := range snap.Sockets() {
		name, _ := snap.Lookup(s)
		if !f.Match(s, name) {
			continue
		}
		rows = append(rows, []string{
			s.Protocol.String(),
			s.AddrPort().String(),
			truncate.StringWithTail(name, maxProcessWidth, "…"),
		})
	}

	t := columns{
		header:     []string{"PROTO", "LOCAL ADDRESS", "PROCESS"},
		rows:       rows,
		processCol: 2,
	}
	if err := t.write(w, colorEnabled); err != nil {
		return err
	}

	footer := strconv.Itoa(len(rows)) + " sockets"
	if len(rows) == 1 {
		footer = "1 socket"
	}
	if len(rows) != snap.Len() {
		footer += fmt.Sprintf(" (of %d)", snap.Len())
	}
	if colorEnabled {
		footer = dimStyle.Render(footer)
	}
	_, err := fmt.Fprintln(w, footer)
	return err
}

// RenderConnections writes raw connection records in source order.
func RenderConnections(w io.Writer, conns []model.RawConnection, f Filter, colorEnabled bool) error {
	var rows [][]string
	for _, c := range conns {
		s := model.NewLocalSocket(c.LocalIP(), c.LocalPort(), c.Protocol())
		if !f.Match(s, c.ProcessName) {
			continue
		}
		remote, pid := "-", "-"
		if c.Remote.IsValid() {
			remote = c.Remote.String()
		}
		if c.PID > 0 {
			pid = strconv.Itoa(c.PID)
		}
		state := c.State
		if state == "" {
			state = "-"
		}
		rows = append(rows, []string{
			c.Protocol().String(),
			s.AddrPort().String(),
			remote,
			state,
			pid,
			truncate.StringWithTail(c.ProcessName, maxProcessWidth, "…"),
		})
	}

	t := columns{
		header:     []string{"PROTO", "LOCAL ADDRESS", "REMOTE ADDRESS", "STATE", "PID", "PROCESS"},
		rows:       rows,
		processCol: 5,
	}
	return t.write(w, colorEnabled)
}

type columns struct {
	header     []string
	rows       [][]string
	processCol int
}

func (t columns) write(w io.Writer, colorEnabled bool) error {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = len(h)
	}
	for _, r := range t.rows {
		for i, col := range r {
			widths[i] = max(widths[i], lipgloss.Width(col))
		}
	}

	line := func(cols []string, style func(int, string) string) string {
		var b strings.Builder
		for i, col := range cols {
			b.WriteString(style(i, col))
			if i < len(cols)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(col)+2))
			}
		}
		return b.String()
	}

	plain := func(_ int, s string) string { return s }
	headerFn, rowFn := plain, plain
	if colorEnabled {
		headerFn = func(_ int, s string) string { return headerStyle.Render(s) }
		rowFn = func(i int, s string) string {
			if i == t.processCol {
				return processStyle.Render(s)
			}
			return s
		}
	}

	if _, err := fmt.Fprintln(w, line(t.header, headerFn)); err != nil {
		return err
	}
	for _, r := range t.rows {
		if _, err := fmt.Fprintln(w, line(r, rowFn)); err != nil {
			return err
		}
	}
	return nil
}
