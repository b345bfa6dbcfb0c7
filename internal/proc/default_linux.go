package proc

// DefaultBackend is the backend New uses when none is named.
const DefaultBackend = "procfs"

func init() {
	backends["procfs"] = newProcfs
	backends["netlink"] = newNetlink
}
