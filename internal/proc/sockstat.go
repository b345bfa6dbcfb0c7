package proc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pranshuparmar/whosock/internal/pipeline"
	"github.com/pranshuparmar/whosock/pkg/model"
)

type sockstatSource struct {
	opts Options
}

func newSockstat(opts Options) (pipeline.ConnectionSource, error) {
	return &sockstatSource{opts: opts}, nil
}

func (s *sockstatSource) Connections(ctx context.Context) ([]model.RawConnection, error) {
	exe, err := exec.LookPath(s.opts.SockstatPath)
	if err != nil {
		return nil, fmt.Errorf("sockstat: lookup: %w", err)
	}
	output, err := exec.CommandContext(ctx, exe, "-4", "-6").Output()
	if err != nil {
		return nil, commandError("sockstat", err)
	}
	return parseSockstat(bytes.NewReader(output), s.opts)
}

// parseSockstat reads FreeBSD sockstat output:
//
//	USER     COMMAND    PID   FD  PROTO  LOCAL ADDRESS         FOREIGN ADDRESS
//	www      nginx      812   6   tcp4   *:80                  *:*
//
// Unowned sockets are listed with "?" in the first four columns.
func parseSockstat(r io.Reader, opts Options) ([]model.RawConnection, error) {
	var conns []model.RawConnection

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 7 || fields[0] == "USER" {
			continue
		}

		protoField := fields[4]
		proto, err := model.ParseProtocol(protoField)
		if err != nil {
			continue
		}
		v6 := strings.HasSuffix(protoField, "6")

		local, err := parseEndpoint(fields[5], v6)
		if err != nil {
			opts.Logger.Debug("skipping sockstat line", zap.String("line", scanner.Text()), zap.Error(err))
			continue
		}
		remote, _ := parseEndpoint(fields[6], v6)

		state := ""
		if proto == model.ProtocolTCP {
			state = "ESTABLISHED"
			if !remote.IsValid() || remote.Port() == 0 {
				state = "LISTEN"
			}
		}

		cmd := fields[1]
		pid, err := strconv.Atoi(fields[2])
		if err != nil || cmd == "?" {
			cmd, pid = "", 0
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
		return nil, fmt.Errorf("reading sockstat output: %w", err)
	}
	return conns, nil
}
