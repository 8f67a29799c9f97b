package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/roach88/gridcalc/internal/server"
	"github.com/roach88/gridcalc/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
	Async    bool
	Force    bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <workbook>",
		Short: "Serve a workbook over HTTP",
		Long: `Build a workbook and serve it over HTTP until interrupted.

Requests are applied one at a time by a single workbook loop. With --db the
newest snapshot is restored at startup and the snapshot routes are enabled.

Routes (under /api/v1):
  GET  /values/:ref            read a value (?raw=1, ?period=n)
  POST /values/:ref            write {"value": ...}
  POST /formulas/:ref          install {"formula": "=..."}
  GET  /state, PUT /state      entered values
  POST /reset                  discard every edit
  GET  /diagnostics            build, warning and calculation lists
  GET|POST|DELETE /snapshots   list, save, delete snapshots
  POST /snapshots/:id/restore  restore a snapshot (?force=1)

Examples:
  gridcalc serve ./loan.yaml
  gridcalc serve ./loan.yaml --addr :9090 --db ./loan.db --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Database, "db", "", "snapshot database (enables snapshot routes)")
	cmd.Flags().BoolVar(&opts.Async, "async", false, "build in time slices, logging progress")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "restore the startup snapshot even if the workbook changed")

	return cmd
}

func runServe(opts *ServeOptions, path string, cmd *cobra.Command) error {
	logger := opts.Logger()

	// Use command's context if available (for testing), otherwise create one
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
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	wb, err := openWorkbook(ctx, opts.RootOptions, path, opts.Async)
	if err != nil {
		return err
	}

	srvOpts := []server.Option{server.WithLogger(logger)}
	if opts.Database != "" {
		st, err := openStore(opts.Database)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		id, err := restoreSnapshot(ctx, st, wb, "", opts.Force)
		switch {
		case errors.Is(err, store.ErrWorkbookChanged):
			logger.Warn("newest snapshot was taken against another description, starting clean", "error", err)
		case err != nil:
			return err
		case id != "":
			logger.Info("snapshot restored", "id", id)
		}
		srvOpts = append(srvOpts, server.WithStore(st))
	}

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	loop := server.NewLoop(wb, logger)
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s. Press Ctrl-C to stop.\n", wb.Name(), opts.Addr)

	srvErr := server.New(loop, srvOpts...).ListenAndServe(ctx, opts.Addr)
	cancel()
	<-loopDone

	if srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", srvErr)
	}
	logger.Info("server stopped gracefully")
	return nil
}
