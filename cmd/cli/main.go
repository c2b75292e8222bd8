package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/cmd/cli/commands"
	"github.com/jakechorley/live-schedule/internal/config"
	"github.com/jakechorley/live-schedule/pkg/core/scheduler"
	"github.com/jakechorley/live-schedule/pkg/lock"
	"github.com/jakechorley/live-schedule/pkg/postgres"
	"github.com/jakechorley/live-schedule/pkg/utils/logging"
)

var (
	env string
	app = &commands.AppContext{}
	pg  *postgres.DB
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cli",
		Short: "Live Schedule CLI - Generate and manage live-stream host schedules",
		Long:  `A CLI tool for generating weekly live-stream schedules, reviewing them and publishing batches.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if pg != nil {
				pg.Close()
			}
			if app.Logger != nil {
				_ = app.Logger.Sync()
			}
		},
		SilenceUsage: true,
	}

	// Add persistent environment flag
	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	_ = rootCmd.MarkPersistentFlagRequired("env")

	// Add all commands
	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.MigrateCmd(app))
	rootCmd.AddCommand(commands.AutoGenerateCmd(app))
	rootCmd.AddCommand(commands.ListSchedulesCmd(app))
	rootCmd.AddCommand(commands.ExportSchedulesCmd(app))
	rootCmd.AddCommand(commands.SetBatchStatusCmd(app))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config, database, lock and scheduler
func initApp() error {
	var err error
	app.Ctx = context.Background()
	app.Now = time.Now

	// Console-only logger until the config names a log directory
	console := logging.NewConsoleLogger()
	app.Logger = console

	// Load configuration
	console.Info("Loading configuration", zap.String("environment", env))
	app.Cfg, err = config.Load(env)
	if err != nil {
		console.Error("Failed to load configuration", zap.Error(err))
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	app.Logger, err = logging.InitLogger(env, app.Cfg.LogDir)
	if err != nil {
		app.Logger = console
		console.Error("Failed to initialize file logger", zap.String("log_dir", app.Cfg.LogDir), zap.Error(err))
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	_ = console.Sync()
	app.Logger.Info("Starting application", zap.String("environment", env))

	// Connect to database
	app.Logger.Info("Connecting to database")
	pg, err = postgres.NewDB(app.Ctx, app.Cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.Database = pg
	app.Migrator = pg
	app.Logger.Debug("Database connected successfully")

	// Initialize generation lock
	if app.Cfg.Redis != nil {
		app.Logger.Info("Using Redis generation lock", zap.String("address", app.Cfg.Redis.Address))
		client, err := lock.NewRedisClient(app.Cfg.Redis.Address, app.Cfg.Redis.Username, app.Cfg.Redis.Password, app.Cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		app.Locker = lock.NewRedisLocker(client, app.Cfg.Redis.LockTTL)
	} else {
		app.Logger.Info("Using in-process generation lock")
		app.Locker = lock.NewLocalLocker()
	}

	// Initialize scheduler
	schedCfg := scheduler.Config{CohostPosition: app.Cfg.CohostPosition}
	if app.Cfg.RandomSeed != nil {
		seed := *app.Cfg.RandomSeed
		app.Logger.Info("Using fixed random seed", zap.Uint64("seed", seed))
		schedCfg.Rand = rand.New(rand.NewPCG(seed, seed))
	}
	app.Generator = scheduler.New(pg, app.Logger, schedCfg)
	app.Logger.Info("Application initialized successfully")

	return nil
}
