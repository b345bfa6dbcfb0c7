package app

import (
	"github.com/spf13/cobra"

	"github.com/pranshuparmar/whosock/internal/output"
	"github.com/pranshuparmar/whosock/pkg/model"
)

type listOptions struct {
	json    bool
	process string
	proto   string
	port    uint16
}

func (o listOptions) filter() (output.Filter, error) {
	f := output.Filter{Process: o.process, Port: o.port}
	if o.proto != "" {
		p, err := model.ParseProtocol(o.proto)
		if err != nil {
			return f, err
		}
		f.Protocol = p
	}
	return f, nil
}

func (o *listOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.json, "json", false, "print JSON instead of a table")
	cmd.Flags().StringVar(&o.process, "process", "", "only show sockets owned by this process name")
	cmd.Flags().StringVar(&o.proto, "proto", "", "only show tcp or udp sockets")
	cmd.Flags().Uint16Var(&o.port, "port", 0, "only show sockets on this local port")
}

func newListCommand(e *env) *cobra.Command {
	var o listOptions
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Print the socket ownership snapshot",
		Example: `  whosock list --proto tcp --port 443
  whosock list --process nginx --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, e, o)
		},
	}
	o.bind(cmd)
	return cmd
}

func runList(cmd *cobra.Command, e *env, o listOptions) error {
	f, err := o.filter()
	if err != nil {
		return err
	}
	snap, err := e.snapshot(cmd.Context())
	if err != nil {
		return err
	}

	if o.json {
		return output.WriteSnapshotJSON(cmd.OutOrStdout(), snap, f)
	}
	return output.RenderTable(cmd.OutOrStdout(), snap, f, e.color)
}
