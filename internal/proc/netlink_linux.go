package proc

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/prometheus/procfs"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/pranshuparmar/whosock/internal/pipeline"
	"github.com/pranshuparmar/whosock/pkg/model"
)

// netlinkSource reads the socket tables over NETLINK_SOCK_DIAG instead of
// parsing /proc/net. Owners still come from /proc/<pid>/fd.
type netlinkSource struct {
	fs   procfs.FS
	opts Options
	diag func(proto model.Protocol, family uint8) ([]*netlink.Socket, error)
}

func newNetlink(opts Options) (pipeline.ConnectionSource, error) {
	pfs, err := procfs.NewFS(opts.ProcPath)
	if err != nil {
		return nil, fmt.Errorf("procfs: %w", err)
	}
	warnUnprivileged(opts.Logger)
	return &netlinkSource{fs: pfs, opts: opts, diag: sockDiag}, nil
}

func sockDiag(proto model.Protocol, family uint8) ([]*netlink.Socket, error) {
	if proto == model.ProtocolUDP {
		return netlink.SocketDiagUDP(family)
	}
	return netlink.SocketDiagTCP(family)
}

func (s *netlinkSource) Connections(ctx context.Context) ([]model.RawConnection, error) {
	owners, err := socketOwners(ctx, s.fs, s.opts.Logger)
	if err != nil {
		return nil, err
	}

	var conns []model.RawConnection
	for _, q := range []struct {
		proto  model.Protocol
		family uint8
	}{
		{model.ProtocolTCP, unix.AF_INET},
		{model.ProtocolTCP, unix.AF_INET6},
		{model.ProtocolUDP, unix.AF_INET},
		{model.ProtocolUDP, unix.AF_INET6},
	} {
		sockets, err := s.diag(q.proto, q.family)
		if err != nil {
			return nil, fmt.Errorf("sock_diag %s family %d: %w", q.proto, q.family, err)
		}
		for _, sk := range sockets {
			local, ok := addrFromIP(sk.ID.Source)
			if !ok {
				continue
			}
			var remote netip.AddrPort
			if rem, ok := addrFromIP(sk.ID.Destination); ok && sk.ID.DestinationPort != 0 {
				remote = netip.AddrPortFrom(rem, sk.ID.DestinationPort)
			}

			owner := owners[uint64(sk.INode)]
			name, pid, ok := s.opts.attribute(owner.name, owner.pid)
			if !ok {
				continue
			}
			conns = append(conns, model.RawConnection{
				Local:       netip.AddrPortFrom(local, sk.ID.SourcePort),
				Remote:      remote,
				Proto:       q.proto,
				State:       socketState(q.proto, int(sk.State)),
				PID:         pid,
				ProcessName: name,
			})
		}
	}
	return conns, nil
}
