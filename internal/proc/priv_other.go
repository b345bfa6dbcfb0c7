//go:build !unix

package proc

import "go.uber.org/zap"

func warnUnprivileged(*zap.Logger) {}
