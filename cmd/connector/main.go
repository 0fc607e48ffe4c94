// Command connector runs the record-processing pipeline: classification gate,
// enrichment, and publication to the knowledge base.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/darc-connector/internal/bootstrap"
	"github.com/jonesrussell/darc-connector/internal/config"
	"github.com/jonesrussell/darc-connector/internal/database"
	"github.com/jonesrussell/darc-connector/internal/logger"
)

const (
	defaultConfigPath = "config.yml"
	shutdownTimeout   = 30 * time.Second
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "darc-connector",
	Short: "Record classification, enrichment, and publication pipeline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the connector service until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, setupErr := setup()
		if setupErr != nil {
			return setupErr
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, appErr := bootstrap.New(ctx, cfg, log)
		if appErr != nil {
			return appErr
		}

		app.Start(ctx)
		log.Info("connector started",
			logger.String("service", cfg.Service.Name),
			logger.String("version", cfg.Service.Version))

		<-ctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.Shutdown(shutdownCtx)
		return nil
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Execute a single pipeline run and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, setupErr := setup()
		if setupErr != nil {
			return setupErr
		}
		defer func() { _ = log.Sync() }()

		app, appErr := bootstrap.New(cmd.Context(), cfg, log)
		if appErr != nil {
			return appErr
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			app.Shutdown(shutdownCtx)
		}()

		stats, runErr := app.Orchestrator.Run(cmd.Context())
		if runErr != nil {
			return runErr
		}

		fmt.Printf("run complete: %d succeeded, %d failed, %d total\n",
			stats.Success, stats.Errors, stats.Total)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down]",
	Short: "Apply or roll back database schema migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, log, setupErr := setup()
		if setupErr != nil {
			return setupErr
		}
		defer func() { _ = log.Sync() }()

		switch args[0] {
		case "up":
			if err := database.MigrateUp(&cfg.Database); err != nil {
				return err
			}
			log.Info("migrations applied")
		case "down":
			if err := database.MigrateDown(&cfg.Database); err != nil {
				return err
			}
			log.Info("migrations rolled back")
		default:
			return fmt.Errorf("unknown migration direction %q", args[0])
		}
		return nil
	},
}

func setup() (*config.Config, logger.Logger, error) {
	cfg, cfgErr := config.Load(config.GetConfigPath(cfgFile))
	if cfgErr != nil {
		return nil, nil, cfgErr
	}

	log, logErr := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Service.Debug,
	})
	if logErr != nil {
		return nil, nil, fmt.Errorf("create logger: %w", logErr)
	}

	return cfg, log, nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", defaultConfigPath, "path to the config file")
	rootCmd.AddCommand(runCmd, onceCmd, migrateCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
