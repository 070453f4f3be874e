package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fastpreload/internal/app"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Load the root records, preload the graph and write the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logger, loggerProvider, err := app.InitLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}

			a, err := app.New(cfg, logger)
			if err != nil {
				if loggerProvider != nil {
					_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
				}
				return err
			}
			a.AttachLoggerProvider(loggerProvider)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
				defer cancel()
				if err := a.Shutdown(shutdownCtx); err != nil {
					logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
				}
			}()

			if err := a.Init(ctx); err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if path := cfg.Preload.Output.File; path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			result, err := a.Run(ctx, out)
			if err != nil {
				return err
			}
			logger.Info("preload finished",
				slog.String("pass_id", result.Report.PassID),
				slog.Int("roots", result.Roots),
				slog.Int("fetches", result.Report.Fetches()),
				slog.Duration("duration", result.Report.Duration),
			)
			return nil
		},
	}
}
