package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pranshuparmar/whosock/internal/config"
	"github.com/pranshuparmar/whosock/internal/logging"
	"github.com/pranshuparmar/whosock/internal/pipeline"
	"github.com/pranshuparmar/whosock/internal/proc"
	"github.com/pranshuparmar/whosock/pkg/model"
)

var (
	version   = ""
	commit    = ""
	buildDate = ""
)

func SetVersionBuildCommitString(v, c, d string) {
	version, commit, buildDate = v, c, d
}

func versionString() string {
	v := version
	if v == "" {
		v = "dev"
	}
	if commit != "" {
		v += " (" + commit
		if buildDate != "" {
			v += ", " + buildDate
		}
		v += ")"
	}
	return v
}

// newSource builds the connection source for a run.
var newSource = proc.New

type globalFlags struct {
	configPath     string
	backend        string
	includeUnowned bool
	logLevel       string
	logFormat      string
	noColor        bool
}

// env is what every command runs with once flags and config are resolved.
type env struct {
	cfg   config.Config
	log   *zap.Logger
	src   pipeline.ConnectionSource
	color bool
}

// snapshot builds one snapshot, logging collisions and passing them on to
// onCollision.
func (e *env) snapshot(ctx context.Context, onCollision ...func(pipeline.Collision)) (model.OpenSockets, error) {
	return pipeline.OpenSockets(ctx, e.src, pipeline.WithCollisionHandler(func(c pipeline.Collision) {
		e.logCollision(c)
		for _, fn := range onCollision {
			fn(c)
		}
	}))
}

func (e *env) logCollision(c pipeline.Collision) {
	e.log.Debug("socket reported twice, keeping later owner",
		zap.Stringer("socket", c.Socket),
		zap.String("previous", c.Previous),
		zap.String("winner", c.Winner))
}

func (e *env) setup(cmd *cobra.Command, g *globalFlags) error {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = g.backend
	}
	if flags.Changed("include-unowned") {
		cfg.IncludeUnowned = g.includeUnowned
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	opts := cfg.ProcOptions()
	opts.Logger = log
	src, err := newSource(cfg.Backend, opts)
	if err != nil {
		return fmt.Errorf("connection source: %w", err)
	}

	e.cfg = cfg
	e.log = log
	e.src = src
	e.color = !g.noColor && os.Getenv("NO_COLOR") == "" && isTerminal(cmd.OutOrStdout())
	log.Debug("configured",
		zap.String("backend", cfg.Backend),
		zap.Bool("include_unowned", cfg.IncludeUnowned),
		zap.String("config", g.configPath))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewRootCommand returns the whosock command tree. Without a subcommand it
// behaves like "whosock list".
func NewRootCommand() *cobra.Command {
	var (
		g globalFlags
		e env
	)

	cmd := &cobra.Command{
		Use:   "whosock",
		Short: "Show which process owns each open local socket",
		Long: `whosock maps every open local TCP and UDP socket (ip:port/protocol)
on this host to the name of the process holding it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       versionString(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd, &g)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, &e, listOptions{})
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.log != nil {
				_ = e.log.Sync()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "path to a TOML config file")
	pf.StringVar(&g.backend, "backend", proc.DefaultBackend, fmt.Sprintf("connection backend (available: %v)", proc.Available()))
	pf.BoolVar(&g.includeUnowned, "include-unowned", false, "keep sockets whose owning process cannot be determined")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", logging.FormatConsole, "log format (console or json)")
	pf.BoolVar(&g.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newListCommand(&e),
		newLookupCommand(&e),
		newConnectionsCommand(&e),
		newWatchCommand(&e),
		newServeCommand(&e),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// lookup has already printed which sockets were missing
		if !errors.Is(err, ErrNotFound) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		}
		os.Exit(1)
	}
}
