package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SubratDash67/iplauctionbot/internal/engine"
	"github.com/SubratDash67/iplauctionbot/internal/gateway"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Listen   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auction engine and gateway",
		Long: `Start the auction engine and its WebSocket/HTTP gateway.

The engine opens the SQLite ledger (creating it if it doesn't exist),
recovers any interrupted session, and starts the single-writer event
loop. The gateway serves bid and admin frames over /ws and read-only
state over /api.

Example:
  auctiond serve --db ./auction.db
  auctiond serve -c auction.cue --listen :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.ListenAddr = opts.Listen
	}

	slog.Info("opening database", "path", cfg.DBPath)
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// Setup signal handling for graceful shutdown.
	// Use command's context if available (for testing), otherwise create one.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	eng, err := engine.New(ctx, st, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize engine", err)
	}

	gw := gateway.NewServer(cfg, eng, st)
	go gw.Hub().Run(ctx)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: gw.Routes(),
	}
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpSrv.ListenAndServe()
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("gateway shutdown", "error", err)
		}
	}()

	slog.Info("gateway listening", "addr", cfg.ListenAddr)
	fmt.Fprintf(cmd.OutOrStdout(), "Auction engine started on %s.\n", cfg.ListenAddr)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	engErr := make(chan error, 1)
	go func() {
		engErr <- eng.Run(ctx)
	}()

	select {
	case err := <-httpErr:
		cancel()
		<-engErr
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "gateway error", err)
		}
	case err := <-engErr:
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return WrapExitError(ExitFailure, "engine error", err)
		}
	}

	slog.Info("engine stopped gracefully")
	return nil
}
