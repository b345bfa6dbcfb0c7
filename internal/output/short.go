package output

import (
	"fmt"
	"io"

	"github.com/pranshuparmar/whosock/pkg/model"
)

var (
	colorResetShort   = "\033[0m"
	colorMagentaShort = "\033[35m"
	colorDimShort     = "\033[2m"
	colorGreenShort   = "\033[32m"
	colorRedShort     = "\033[31m"
)

// LookupResult is one socket resolved against a snapshot.
type LookupResult struct {
	Socket  model.LocalSocket
	Process string
	Found   bool
}

// Resolve looks up each socket in snap, keeping the order of sockets.
func Resolve(snap model.OpenSockets, sockets []model.LocalSocket) []LookupResult {
	results := make([]LookupResult, 0, len(sockets))
	for _, s := range sockets {
		name, ok := snap.Lookup(s)
		results = append(results, LookupResult{Socket: s, Process: name, Found: ok})
	}
	return results
}

// RenderShort prints one "socket → process" line per result.
func RenderShort(w io.Writer, results []LookupResult, colorEnabled bool) error {
	for _, r := range results {
		arrow := " → "
		name := r.Process
		if !r.Found {
			name = "not found"
		}
		var err error
		if colorEnabled {
			nameColor := colorGreenShort
			if !r.Found {
				nameColor = colorRedShort + colorDimShort
			}
			_, err = fmt.Fprintf(w, "%s%s%s%s%s%s\n", r.Socket, colorMagentaShort, arrow, colorResetShort+nameColor, name, colorResetShort)
		} else {
			_, err = fmt.Fprintf(w, "%s%s%s\n", r.Socket, arrow, name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
