package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/minirx/internal/config"
	"github.com/roach88/minirx/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions

	// Ready, if set, receives the bound address once the server listens.
	Ready func(net.Addr)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve [specs-dir]",
		Short: "Serve a store over HTTP",
		Long: `Start a store with compiled specs and serve it over HTTP.

Routes:
  GET  /healthz        liveness
  GET  /state          whole state tree
  GET  /state/{key}    one feature slice
  PUT  /state          replace the state tree
  POST /dispatch       dispatch {"type": ..., "payload": ...}
  GET  /metrics        Prometheus metrics (metrics.enabled)
  GET  /devtools       devtools websocket (devtools.enabled)

Settings come from --config, MINIRX_* environment variables (MINIRX_SERVER_ADDR,
MINIRX_JOURNAL_PATH, ...) and the flags below, flags winning.

Example:
  minirx serve ./specs --server.addr :8080 --journal.path ./minirx.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("specs", args[0]); err != nil {
					return err
				}
			}
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().String("specs", "", "specs directory")
	cmd.Flags().String("server.addr", config.DefaultAddr, "listen address")
	cmd.Flags().String("journal.path", "", "SQLite journal path (empty disables recording)")
	cmd.Flags().Int("store.undo_buffer", 0, "undoable action history size (0 disables undo)")
	cmd.Flags().Bool("store.immutable", false, "detect state mutation")
	cmd.Flags().Bool("devtools.enabled", true, "serve the devtools websocket")
	cmd.Flags().Bool("metrics.enabled", true, "serve Prometheus metrics")
	cmd.Flags().Bool("tracing.enabled", false, "emit OpenTelemetry spans per action")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if cfg.Specs == "" {
		return NewExitError(ExitCommandError, "specs directory is required (argument, --specs or MINIRX_SPECS)")
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	specs, err := loadSpecs(cfg.Specs)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := openRuntime(ctx, cfg, specs, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start store", err)
	}
	defer rt.Close()

	srvOpts := []server.Option{server.WithLogger(logger)}
	if rt.registry != nil {
		srvOpts = append(srvOpts, server.WithMetrics(rt.registry))
	}
	if rt.bridge != nil {
		srvOpts = append(srvOpts, server.WithDevtools(rt.bridge))
	}
	srv := server.New(rt.store, srvOpts...)

	ready := func(addr net.Addr) {
		fmt.Fprintf(cmd.OutOrStdout(), "Serving session %s on http://%s\n", rt.store.Session(), addr)
		fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
		if opts.Ready != nil {
			opts.Ready(addr)
		}
	}
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr, ready); err != nil && !isCancellation(err) {
		return WrapExitError(ExitFailure, "server error", err)
	}

	logger.Info("store stopped gracefully", "session", rt.store.Session())
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
