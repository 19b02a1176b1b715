package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/optio-learning/optio-backend/internal/app"
	"github.com/optio-learning/optio-backend/internal/data/db"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "optio",
	Short:         "Optio curriculum ingestion backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the job worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(app.Options{HTTP: true, Worker: true})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job worker only",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(app.Options{Worker: true})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if err := cfg.ValidateCore(); err != nil {
			return err
		}
		log, err := app.NewLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()
		theDB, err := app.OpenDatabase(cfg, log)
		if err != nil {
			return err
		}
		log.Info("Schema migrated")
		return db.Close(theDB)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (overrides CONFIG_FILE)")
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts app.Options) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, opts)
	if err != nil {
		log.Error("App init failed", "error", err)
		log.Sync()
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}
