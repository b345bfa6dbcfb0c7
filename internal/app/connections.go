package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pranshuparmar/whosock/internal/output"
)

func newConnectionsCommand(e *env) *cobra.Command {
	var o listOptions
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Print the raw connection records the snapshot is built from",
		Long: `Print every connection reported by the backend, in backend order,
including remote address, state and PID. Several connections may share a
local socket; the snapshot keeps the last one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := o.filter()
			if err != nil {
				return err
			}
			conns, err := e.src.Connections(cmd.Context())
			if err != nil {
				return fmt.Errorf("list connections: %w", err)
			}

			if o.json {
				return output.WriteConnectionsJSON(cmd.OutOrStdout(), conns, f)
			}
			return output.RenderConnections(cmd.OutOrStdout(), conns, f, e.color)
		},
	}
	o.bind(cmd)
	return cmd
}
