package proc

// DefaultBackend is the backend New uses when none is named.
const DefaultBackend = "gopsutil"

func init() {
	backends["netstat"] = newNetstat
}
