package pipeline

import (
	"context"
	"fmt"

	"github.com/pranshuparmar/whosock/pkg/model"
)

// ConnectionSource enumerates the host's currently open connections.
type ConnectionSource interface {
	Connections(ctx context.Context) ([]model.RawConnection, error)
}

// Collision describes a socket reported more than once in one enumeration.
// Winner replaced Previous as the owning process.
type Collision struct {
	Socket   model.LocalSocket
	Previous string
	Winner   string
}

type SnapshotOption func(*snapshotConfig)

type snapshotConfig struct {
	onCollision func(Collision)
}

// WithCollisionHandler makes OpenSockets report every overwritten entry to fn.
func WithCollisionHandler(fn func(Collision)) SnapshotOption {
	return func(c *snapshotConfig) {
		c.onCollision = fn
	}
}

// OpenSockets queries src once and folds the result into a snapshot.
func OpenSockets(ctx context.Context, src ConnectionSource, opts ...SnapshotOption) (model.OpenSockets, error) {
	var cfg snapshotConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	conns, err := src.Connections(ctx)
	if err != nil {
		return model.OpenSockets{}, fmt.Errorf("list connections: %w", err)
	}
	return FoldWithCollisions(conns, cfg.onCollision), nil
}

// Fold maps each connection's local socket to its process name. When two
// connections share a local socket the one later in conns wins.
func Fold(conns []model.RawConnection) model.OpenSockets {
	return FoldWithCollisions(conns, nil)
}

// FoldWithCollisions is Fold, additionally calling onCollision (if non-nil)
// each time an entry is overwritten.
func FoldWithCollisions(conns []model.RawConnection, onCollision func(Collision)) model.OpenSockets {
	sockets := make(map[model.LocalSocket]string, len(conns))
	for _, c := range conns {
		key := model.NewLocalSocket(c.LocalIP(), c.LocalPort(), c.Protocol())
		if prev, ok := sockets[key]; ok && onCollision != nil {
			onCollision(Collision{Socket: key, Previous: prev, Winner: c.ProcessName})
		}
		sockets[key] = c.ProcessName
	}
	return model.NewOpenSockets(sockets)
}
