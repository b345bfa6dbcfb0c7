package proc

import (
	"bufio"
	"bytes"
	"context"
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

// lsofArgs asks for field output (-F) of every IPv4 and IPv6 socket, with
// numeric hosts and ports and untruncated command names.
var lsofArgs = []string{"-n", "-P", "-w", "+c", "0", "-i4", "-i6", "-F", "pcftPnT"}

type lsofSource struct {
	opts Options
}

func newLsof(opts Options) (pipeline.ConnectionSource, error) {
	warnUnprivileged(opts.Logger)
	return &lsofSource{opts: opts}, nil
}

func (s *lsofSource) Connections(ctx context.Context) ([]model.RawConnection, error) {
	exe, err := exec.LookPath(s.opts.LsofPath)
	if err != nil {
		return nil, fmt.Errorf("lsof: lookup: %w", err)
	}
	output, err := exec.CommandContext(ctx, exe, lsofArgs...).Output()
	if err != nil {
		var xe *exec.ExitError
		// lsof exits 1 without complaint when nothing matched.
		if errors.As(err, &xe) && xe.ExitCode() == 1 && len(bytes.TrimSpace(xe.Stderr)) == 0 {
			return nil, nil
		}
		return nil, commandError("lsof", err)
	}
	return parseLsof(bytes.NewReader(output), s.opts)
}

// lsofFile accumulates the fields of one open file until the next file or
// process set begins.
type lsofFile struct {
	v6    bool
	proto string
	name  string
	state string
}

// parseLsof reads "lsof -F pcftPnT" output. Each process set starts with a
// 'p' line followed by 'c'; each file within it starts with 'f'.
func parseLsof(r io.Reader, opts Options) ([]model.RawConnection, error) {
	var (
		conns []model.RawConnection
		pid   int
		cmd   string
		file  *lsofFile
	)

	flush := func() {
		if file == nil {
			return
		}
		f := file
		file = nil

		proto, err := model.ParseProtocol(f.proto)
		if err != nil {
			return
		}
		local, remote, err := splitLsofName(f.name, f.v6)
		if err != nil {
			opts.Logger.Debug("skipping lsof entry", zap.String("name", f.name), zap.Error(err))
			return
		}
		name, owner, ok := opts.attribute(cmd, pid)
		if !ok {
			return
		}
		conns = append(conns, model.RawConnection{
			Local:       local,
			Remote:      remote,
			Proto:       proto,
			State:       f.state,
			PID:         owner,
			ProcessName: name,
		})
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		field, val := line[0], line[1:]
		switch field {
		case 'p':
			flush()
			pid, _ = strconv.Atoi(val)
			cmd = ""
		case 'c':
			cmd = val
		case 'f':
			flush()
			file = &lsofFile{}
		case 't':
			if file != nil {
				file.v6 = val == "IPv6"
			}
		case 'P':
			if file != nil {
				file.proto = val
			}
		case 'n':
			if file != nil {
				file.name = val
			}
		case 'T':
			if file != nil && strings.HasPrefix(val, "ST=") {
				file.state = strings.TrimPrefix(val, "ST=")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading lsof output: %w", err)
	}
	flush()
	return conns, nil
}

// splitLsofName splits an lsof network name such as
// "10.0.0.2:5000->1.2.3.4:443" or "*:5353".
func splitLsofName(name string, v6 bool) (local, remote netip.AddrPort, err error) {
	l, r, connected := strings.Cut(name, "->")
	local, err = parseEndpoint(l, v6)
	if err != nil {
		return local, remote, err
	}
	if connected {
		remote, _ = parseEndpoint(r, v6)
	}
	return local, remote, nil
}

func commandError(name string, err error) error {
	stderr := ""
	var xe *exec.ExitError
	if errors.As(err, &xe) {
		stderr = strings.TrimSpace(string(xe.Stderr))
	}
	return fmt.Errorf("%s: %w (%q)", name, err, stderr)
}
