package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pranshuparmar/whosock/internal/config"
	"github.com/pranshuparmar/whosock/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(e *env) *cobra.Command {
	var (
		listen   string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Export socket ownership as Prometheus metrics",
		Long: `Rebuild the socket ownership snapshot on an interval and publish it on
/metrics in the Prometheus text format.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("listen") {
				e.cfg.Serve.Listen = listen
			}
			if cmd.Flags().Changed("interval") {
				e.cfg.Serve.Interval = config.Duration(interval)
			}
			if err := e.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", e.cfg.Serve.Listen)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return runServe(ctx, e, ln, time.Duration(e.cfg.Serve.Interval))
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":9155", "address to serve /metrics on")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "snapshot interval")
	return cmd
}

// runServe serves metrics on ln and refreshes them every interval until ctx
// is done.
func runServe(ctx context.Context, e *env, ln net.Listener, interval time.Duration) error {
	rec := metrics.NewRecorder()

	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	e.log.Info("serving metrics",
		zap.String("addr", ln.Addr().String()),
		zap.Duration("interval", interval))

	collect(ctx, e, rec)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("stopping metrics server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down server: %w", err)
			}
			return nil
		case err := <-errc:
			return fmt.Errorf("serving metrics: %w", err)
		case <-ticker.C:
			collect(ctx, e, rec)
		}
	}
}

func collect(ctx context.Context, e *env, rec *metrics.Recorder) {
	start := time.Now()
	snap, err := e.snapshot(ctx, rec.ObserveCollision)
	if err != nil {
		if ctx.Err() == nil {
			rec.ObserveError()
			e.log.Warn("snapshot failed", zap.Error(err))
		}
		return
	}
	took := time.Since(start)
	rec.ObserveSnapshot(snap, took, time.Now())
	e.log.Debug("snapshot", zap.Int("sockets", snap.Len()), zap.Duration("took", took))
}
