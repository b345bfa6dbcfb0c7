package proc

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
	"go.uber.org/zap"
)

type socketOwner struct {
	pid  int
	name string
}

// socketOwners indexes every socket inode held open by a process. Processes
// are visited in PID order and the first holder of an inode keeps it, so a
// socket inherited across fork is attributed to the parent.
func socketOwners(ctx context.Context, fs procfs.FS, log *zap.Logger) (map[uint64]socketOwner, error) {
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	slices.SortFunc(procs, func(a, b procfs.Proc) int { return cmp.Compare(a.PID, b.PID) })

	owners := make(map[uint64]socketOwner)
	skipped := 0
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		targets, err := p.FileDescriptorTargets()
		if err != nil {
			// Exited, or not ours to read.
			skipped++
			continue
		}

		var name string
		for _, target := range targets {
			inode, ok := socketInode(target)
			if !ok {
				continue
			}
			if _, seen := owners[inode]; seen {
				continue
			}
			if name == "" {
				if name, err = p.Comm(); err != nil {
					break
				}
			}
			owners[inode] = socketOwner{pid: p.PID, name: name}
		}
	}
	if skipped > 0 {
		log.Debug("skipped unreadable processes", zap.Int("count", skipped))
	}
	return owners, nil
}

// socketInode extracts the inode from an fd link target like "socket:[12345]".
func socketInode(target string) (uint64, bool) {
	rest, ok := strings.CutPrefix(target, "socket:[")
	if !ok {
		return 0, false
	}
	inode, err := strconv.ParseUint(strings.TrimSuffix(rest, "]"), 10, 64)
	if err != nil {
		return 0, false
	}
	return inode, true
}
