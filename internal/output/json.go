package output

import (
	"encoding/json"
	"io"

	"github.com/pranshuparmar/whosock/pkg/model"
)

// WriteSnapshotJSON writes the part of snap matched by f as an indented
// array sorted by socket.
func WriteSnapshotJSON(w io.Writer, snap model.OpenSockets, f Filter) error {
	return writeJSON(w, f.Apply(snap))
}

// WriteConnectionsJSON writes the connections matched by f in source order.
// An empty result is written as [] rather than null.
func WriteConnectionsJSON(w io.Writer, conns []model.RawConnection, f Filter) error {
	matched := make([]model.RawConnection, 0, len(conns))
	for _, c := range conns {
		if f.Match(model.NewLocalSocket(c.LocalIP(), c.LocalPort(), c.Protocol()), c.ProcessName) {
			matched = append(matched, c)
		}
	}
	return writeJSON(w, matched)
}

// writeJSON leaves "<unknown>" unescaped rather than \u003cunknown\u003e.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
