//go:build unix

package proc

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func warnUnprivileged(log *zap.Logger) {
	if unix.Geteuid() != 0 {
		log.Warn("not running as root; sockets owned by other users will not be attributed")
	}
}
