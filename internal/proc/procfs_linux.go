package proc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"

	"github.com/prometheus/procfs"
	"go.uber.org/zap"

	"github.com/pranshuparmar/whosock/internal/pipeline"
	"github.com/pranshuparmar/whosock/pkg/model"
)

const udpEstablished = 1

// procfsSource joins /proc/net/{tcp,tcp6,udp,udp6} with the socket inodes
// found under /proc/<pid>/fd.
type procfsSource struct {
	fs   procfs.FS
	opts Options
}

func newProcfs(opts Options) (pipeline.ConnectionSource, error) {
	pfs, err := procfs.NewFS(opts.ProcPath)
	if err != nil {
		return nil, fmt.Errorf("procfs: %w", err)
	}
	warnUnprivileged(opts.Logger)
	return &procfsSource{fs: pfs, opts: opts}, nil
}

type socketTable struct {
	file  string
	proto model.Protocol
	read  func() (procfs.NetTCP, error)
}

func (s *procfsSource) tables() []socketTable {
	// NetUDP shares NetTCP's underlying line type.
	udp := func(read func() (procfs.NetUDP, error)) func() (procfs.NetTCP, error) {
		return func() (procfs.NetTCP, error) {
			lines, err := read()
			return procfs.NetTCP(lines), err
		}
	}
	return []socketTable{
		{"tcp", model.ProtocolTCP, s.fs.NetTCP},
		{"tcp6", model.ProtocolTCP, s.fs.NetTCP6},
		{"udp", model.ProtocolUDP, udp(s.fs.NetUDP)},
		{"udp6", model.ProtocolUDP, udp(s.fs.NetUDP6)},
	}
}

func (s *procfsSource) Connections(ctx context.Context) ([]model.RawConnection, error) {
	owners, err := socketOwners(ctx, s.fs, s.opts.Logger)
	if err != nil {
		return nil, err
	}

	var conns []model.RawConnection
	for _, table := range s.tables() {
		lines, err := table.read()
		if errors.Is(err, fs.ErrNotExist) {
			// No IPv6 support in this kernel.
			s.opts.Logger.Debug("socket table missing", zap.String("file", table.file))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read /proc/net/%s: %w", table.file, err)
		}

		for _, line := range lines {
			local, ok := addrFromIP(line.LocalAddr)
			if !ok {
				continue
			}
			var remote netip.AddrPort
			if rem, ok := addrFromIP(line.RemAddr); ok && line.RemPort != 0 {
				remote = netip.AddrPortFrom(rem, uint16(line.RemPort))
			}

			owner := owners[line.Inode]
			name, pid, ok := s.opts.attribute(owner.name, owner.pid)
			if !ok {
				continue
			}

			conns = append(conns, model.RawConnection{
				Local:       netip.AddrPortFrom(local, uint16(line.LocalPort)),
				Remote:      remote,
				Proto:       table.proto,
				State:       socketState(table.proto, int(line.St)),
				PID:         pid,
				ProcessName: name,
			})
		}
	}
	return conns, nil
}

func socketState(proto model.Protocol, st int) string {
	if proto == model.ProtocolTCP {
		return tcpState(st)
	}
	if st == udpEstablished {
		return "ESTABLISHED"
	}
	return ""
}
