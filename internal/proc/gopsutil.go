package proc

import (
	"context"
	"fmt"
	"net/netip"
	"syscall"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/pranshuparmar/whosock/internal/pipeline"
	"github.com/pranshuparmar/whosock/pkg/model"
)

// gopsutilSource enumerates connections through gopsutil, which wraps the
// native API of each platform (GetExtendedTcpTable on Windows).
type gopsutilSource struct {
	opts Options

	connections func(ctx context.Context) ([]gnet.ConnectionStat, error)
	processName func(ctx context.Context, pid int32) (string, error)
}

func newGopsutil(opts Options) (pipeline.ConnectionSource, error) {
	return &gopsutilSource{
		opts: opts,
		connections: func(ctx context.Context) ([]gnet.ConnectionStat, error) {
			return gnet.ConnectionsWithContext(ctx, "inet")
		},
		processName: func(ctx context.Context, pid int32) (string, error) {
			p, err := process.NewProcessWithContext(ctx, pid)
			if err != nil {
				return "", err
			}
			return p.NameWithContext(ctx)
		},
	}, nil
}

func (s *gopsutilSource) Connections(ctx context.Context) ([]model.RawConnection, error) {
	stats, err := s.connections(ctx)
	if err != nil {
		return nil, fmt.Errorf("gopsutil: %w", err)
	}

	names := make(map[int32]string)
	conns := make([]model.RawConnection, 0, len(stats))
	for _, st := range stats {
		var proto model.Protocol
		switch st.Type {
		case syscall.SOCK_STREAM:
			proto = model.ProtocolTCP
		case syscall.SOCK_DGRAM:
			proto = model.ProtocolUDP
		default:
			continue
		}
		v6 := st.Family == syscall.AF_INET6

		local, err := gopsutilEndpoint(st.Laddr, v6)
		if err != nil {
			s.opts.Logger.Debug("skipping connection", zap.Any("laddr", st.Laddr), zap.Error(err))
			continue
		}
		var remote netip.AddrPort
		if st.Raddr.Port != 0 {
			remote, _ = gopsutilEndpoint(st.Raddr, v6)
		}

		var cmd string
		if st.Pid > 0 {
			var ok bool
			if cmd, ok = names[st.Pid]; !ok {
				cmd, err = s.processName(ctx, st.Pid)
				if err != nil {
					// Usually the process exited since the connection
					// table was read.
					s.opts.Logger.Debug("resolving process name", zap.Int32("pid", st.Pid), zap.Error(err))
				}
				names[st.Pid] = cmd
			}
		}
		name, pid, ok := s.opts.attribute(cmd, int(st.Pid))
		if !ok {
			continue
		}

		state := st.Status
		if state == "NONE" {
			state = ""
		}
		conns = append(conns, model.RawConnection{
			Local:       local,
			Remote:      remote,
			Proto:       proto,
			State:       state,
			PID:         pid,
			ProcessName: name,
		})
	}
	return conns, nil
}

func gopsutilEndpoint(a gnet.Addr, v6 bool) (netip.AddrPort, error) {
	if a.Port > 0xffff {
		return netip.AddrPort{}, fmt.Errorf("port %d out of range", a.Port)
	}
	addr, err := parseHost(a.IP, v6)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(addr.Unmap(), uint16(a.Port)), nil
}
