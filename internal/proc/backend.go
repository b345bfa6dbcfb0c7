package proc

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/pranshuparmar/whosock/internal/pipeline"
)

var (
	ErrUnknownBackend = errors.New("unknown connection backend")
	ErrUnsupported    = errors.New("connection backend not supported on this platform")
)

// UnknownProcess is the default name given to sockets whose owner could not
// be determined.
const UnknownProcess = "<unknown>"

// KnownBackends lists every backend name, whether or not it is available on
// the running platform.
var KnownBackends = []string{"procfs", "netlink", "lsof", "sockstat", "netstat", "gopsutil"}

// Options configures a connection backend. The zero value is usable.
type Options struct {
	// ProcPath is the procfs mount point (procfs and netlink backends).
	ProcPath string
	// LsofPath and SockstatPath name the executables to run.
	LsofPath     string
	SockstatPath string

	// IncludeUnowned keeps sockets with no discoverable owner, naming them
	// UnknownProcess. They are dropped otherwise.
	IncludeUnowned bool
	UnknownProcess string

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.ProcPath == "" {
		o.ProcPath = "/proc"
	}
	if o.LsofPath == "" {
		o.LsofPath = "lsof"
	}
	if o.SockstatPath == "" {
		o.SockstatPath = "sockstat"
	}
	if o.UnknownProcess == "" {
		o.UnknownProcess = UnknownProcess
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// attribute applies the unowned-socket policy to a resolved owner. ok is
// false when the connection should be dropped.
func (o Options) attribute(name string, pid int) (string, int, bool) {
	if name != "" {
		return name, pid, true
	}
	if !o.IncludeUnowned {
		return "", 0, false
	}
	return o.UnknownProcess, 0, true
}

type newFunc func(Options) (pipeline.ConnectionSource, error)

// backends holds the implementations built for this platform. Platform files
// add to it from init.
var backends = map[string]newFunc{
	"lsof":     newLsof,
	"sockstat": newSockstat,
	"gopsutil": newGopsutil,
}

// Available returns the backend names usable on this platform, sorted.
func Available() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New returns the named connection source. An empty name selects
// DefaultBackend.
func New(name string, opts Options) (pipeline.ConnectionSource, error) {
	if name == "" {
		name = DefaultBackend
	}
	fn, ok := backends[name]
	if !ok {
		if slices.Contains(KnownBackends, name) {
			return nil, fmt.Errorf("%s: %w", name, ErrUnsupported)
		}
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownBackend)
	}
	opts = opts.withDefaults()
	opts.Logger = opts.Logger.With(zap.String("backend", name))
	return fn(opts)
}
