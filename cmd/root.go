// Package cmd defines the command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alpinisme/formation-sync/internal/app"
	"github.com/alpinisme/formation-sync/internal/config"
	"github.com/alpinisme/formation-sync/internal/logging"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formation-sync",
		Short: "Synchronizes the federation training-course catalog and notifies subscribers.",
		Long: `formation-sync scrapes the federation's course catalog page, mirrors the
listings into Postgres, and emails subscribers a digest of newly published
courses in their disciplines.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); FORMATION_* env vars override")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newNotifyCmd())

	return cmd
}

// setup loads configuration and wires the application graph. Callers own
// the returned App and must Close it.
func setup(ctx context.Context) (*app.App, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application wiring failed", zap.Error(err))
		return nil, nil, err
	}
	return a, logger, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server (and the scheduler, when enabled).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one catalog sync and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, logger, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Syncer.Run(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("sync complete",
				zap.String("run_id", result.RunID),
				zap.Int("total", result.Total),
				zap.Int("succeeded", result.Succeeded),
				zap.Int("failed", result.Failed),
			)
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d records failed", result.Failed, result.Total)
			}
			return nil
		},
	}
}

func newNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Dispatch digests for courses first seen today and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, logger, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Dispatcher.DispatchToday(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("notification dispatch complete",
				zap.Int("notified", result.Notified),
				zap.Int("failed", len(result.Errors)),
			)
			return nil
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
