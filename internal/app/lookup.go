package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pranshuparmar/whosock/internal/output"
	"github.com/pranshuparmar/whosock/pkg/model"
)

// ErrNotFound is returned by lookup when a requested socket is not open.
var ErrNotFound = errors.New("socket not found")

func newLookupCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup SOCKET...",
		Short: "Print the process owning each given socket",
		Long: `Print the process owning each given socket. Sockets are written as
ip:port/protocol. Exits with status 1 if any socket is not open.`,
		Example: `  whosock lookup 127.0.0.1:8080/tcp '[::1]:53/udp'`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sockets := make([]model.LocalSocket, 0, len(args))
			for _, a := range args {
				s, err := model.ParseLocalSocket(a)
				if err != nil {
					return err
				}
				sockets = append(sockets, s)
			}

			snap, err := e.snapshot(cmd.Context())
			if err != nil {
				return err
			}

			results := output.Resolve(snap, sockets)
			if err := output.RenderShort(cmd.OutOrStdout(), results, e.color); err != nil {
				return err
			}

			missing := 0
			for _, r := range results {
				if !r.Found {
					missing++
				}
			}
			if missing > 0 {
				return fmt.Errorf("%d of %d: %w", missing, len(results), ErrNotFound)
			}
			return nil
		},
	}
}
