package proc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pranshuparmar/whosock/internal/pipeline"
	"github.com/pranshuparmar/whosock/pkg/model"
)

// netstatSource reads Windows "netstat -ano" and names the owning PIDs with
// "tasklist".
type netstatSource struct {
	opts Options
}

func newNetstat(opts Options) (pipeline.ConnectionSource, error) {
	return &netstatSource{opts: opts}, nil
}

func (s *netstatSource) Connections(ctx context.Context) ([]model.RawConnection, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-ano").Output()
	if err != nil {
		return nil, commandError("netstat", err)
	}
	list, err := exec.CommandContext(ctx, "tasklist", "/FO", "CSV", "/NH").Output()
	if err != nil {
		return nil, commandError("tasklist", err)
	}
	names, err := parseTasklist(bytes.NewReader(list))
	if err != nil {
		return nil, err
	}
	return parseNetstat(bytes.NewReader(out), names, s.opts)
}

// parseNetstat reads "netstat -ano" output:
//
//	Proto  Local Address          Foreign Address        State           PID
//	TCP    0.0.0.0:135            0.0.0.0:0              LISTENING       888
//	UDP    0.0.0.0:123            *:*                                    999
//
// UDP rows have no state column.
func parseNetstat(r io.Reader, names map[int]string, opts Options) ([]model.RawConnection, error) {
	var conns []model.RawConnection

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}

		proto, err := model.ParseProtocol(fields[0])
		if err != nil {
			continue
		}
		v6 := strings.HasPrefix(fields[1], "[")

		var pidStr, state string
		switch {
		case proto == model.ProtocolUDP && len(fields) == 4:
			pidStr = fields[3]
		case len(fields) >= 5:
			pidStr = fields[4]
			state = fields[3]
			if state == "LISTENING" {
				state = "LISTEN"
			}
		default:
			continue
		}

		local, err := parseEndpoint(fields[1], v6)
		if err != nil {
			opts.Logger.Debug("skipping netstat line", zap.String("line", scanner.Text()), zap.Error(err))
			continue
		}
		remote, err := parseEndpoint(fields[2], v6)
		if err != nil || remote.Port() == 0 {
			remote = netip.AddrPort{}
		}

		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			opts.Logger.Debug("skipping netstat line", zap.String("line", scanner.Text()), zap.Error(err))
			continue
		}
		// PID 0 is the idle process, which owns TIME_WAIT sockets.
		cmd := ""
		if pid != 0 {
			cmd = names[pid]
		}
		name, owner, ok := opts.attribute(cmd, pid)
		if !ok {
			continue
		}

		conns = append(conns, model.RawConnection{
			Local:       local,
			Remote:      remote,
			Proto:       proto,
			State:       state,
			PID:         owner,
			ProcessName: name,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading netstat output: %w", err)
	}
	return conns, nil
}

// parseTasklist maps PIDs to image names from "tasklist /FO CSV /NH":
//
//	"svchost.exe","888","Services","0","12,345 K"
func parseTasklist(r io.Reader) (map[int]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	names := make(map[int]string)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse tasklist output: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		pid, err := strconv.Atoi(record[1])
		if err != nil {
			continue
		}
		names[pid] = record[0]
	}
	return names, nil
}
