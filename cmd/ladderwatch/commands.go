package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryanbastic/go-ladderwatch/internal/api"
	"github.com/ryanbastic/go-ladderwatch/internal/config"
	"github.com/ryanbastic/go-ladderwatch/internal/schedule"
)

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ladderwatch",
		Short:         "Keep a ladder database in sync with the regional ladder APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCommand(), cycleCommand())
	return root
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the update scheduler and the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := newLogger(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			defer a.Close()

			sched, err := schedule.New(cfg.UpdateTick, a.orchestrator, a.tracker, logger)
			if err != nil {
				logger.Error("invalid schedule", "error", err)
				return err
			}
			schedDone := make(chan error, 1)
			go func() { schedDone <- sched.Run(ctx) }()

			handler := api.NewServer(logger, api.Deps{
				Status:     a.orchestrator,
				Watermarks: a.tracker,
				Frames:     a.frames,
				Ladder:     a.store,
				Backends:   map[string]api.Pinger{"postgres": a.store},
			})
			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			srvErr := make(chan error, 1)
			go func() {
				logger.Info("starting HTTP server", "port", cfg.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					srvErr <- err
				}
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down...")
			case err := <-srvErr:
				logger.Error("HTTP server error", "error", err)
				stop()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP shutdown error", "error", err)
			}
			if err := <-schedDone; err != nil {
				logger.Error("scheduler error", "error", err)
			}

			logger.Info("shutdown complete")
			return nil
		},
	}
}

func cycleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one update cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := newLogger(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			defer a.Close()

			report, err := a.orchestrator.RunCycle(ctx)
			if err != nil {
				return fmt.Errorf("cycle %s: %w", report.ID, err)
			}
			if report.Skipped {
				fmt.Fprintln(os.Stdout, "cycle skipped: not due yet")
				return nil
			}
			for _, r := range report.Regions {
				status := "ok"
				if r.Err != nil {
					status = r.Err.Error()
				}
				fmt.Fprintf(os.Stdout, "%s\tseason %d\tteams %d\t%s\t%s\n", r.Region, r.Season, r.Teams, r.Duration.Round(time.Millisecond), status)
			}
			return nil
		},
	}
}
