package proc

// DefaultBackend is the backend New uses when none is named. netstat is
// faster but does not report owning processes.
const DefaultBackend = "lsof"
