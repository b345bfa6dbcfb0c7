package proc

// DefaultBackend is the backend New uses when none is named.
const DefaultBackend = "sockstat"
