package app

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pranshuparmar/whosock/internal/config"
	"github.com/pranshuparmar/whosock/internal/tui"
)

func newWatchCommand(e *env) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Interactively watch socket ownership, refreshing on an interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("interval") {
				e.cfg.Watch.Interval = config.Duration(interval)
				if err := e.cfg.Validate(); err != nil {
					return err
				}
			}
			return tui.Run(cmd.Context(), tui.Options{
				Source:   e.src,
				Interval: time.Duration(e.cfg.Watch.Interval),
				Logger:   e.log,
				Version:  versionString(),
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}
