package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dsuszek/dev-task/config"
	"github.com/dsuszek/dev-task/db"
	"github.com/dsuszek/dev-task/observability"
)

// app is the state shared by every subcommand once the root has loaded the
// configuration.
type app struct {
	configFile string
	envFiles   []string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "stars",
		Short:         "Star catalogue service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env when present)")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newSeedCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(viper.New(), a.configFile, a.envFiles...)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)

	a.cfg = cfg
	a.logger = logger
	return nil
}

// openDatabase connects with the configured driver, retrying while the
// server is still coming up. A non-empty DSN is used as is; otherwise the
// DSN is built from the discrete connection fields.
func (a *app) openDatabase(ctx context.Context, hooks ...db.Hook) (*db.DB, error) {
	dbCfg := a.cfg.Database
	poolCfg := dbCfg.PoolConfig()
	poolCfg.Hooks = append([]db.Hook{db.NewLogHook(db.LogHookConfig{
		Logger:             a.logger,
		SlowQueryThreshold: dbCfg.SlowQueryThreshold,
		LogArgs:            dbCfg.LogArgs,
	})}, hooks...)

	var database *db.DB
	retry := db.RetryConfig{
		MaxAttempts: dbCfg.ConnectAttempts,
		Delay:       dbCfg.ConnectDelay,
		RetryOn:     func(error) bool { return true },
	}
	attempt := 0
	err := db.WithRetry(ctx, retry, func() error {
		attempt++
		var err error
		if dbCfg.DSN != "" {
			poolCfg.DriverName = dbCfg.Driver
			poolCfg.DSN = dbCfg.DSN
			database, err = db.Open(poolCfg)
		} else {
			database, err = db.OpenWithDriver(dbCfg.Driver, dbCfg.DriverOptions(), poolCfg)
		}
		if err != nil {
			a.logger.Warn("database not reachable",
				zap.String("driver", dbCfg.Driver),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dbCfg.Driver, err)
	}
	a.logger.Info("database connected",
		zap.String("driver", database.DriverName()),
		zap.Duration("query_timeout", dbCfg.QueryTimeout),
	)
	return database, nil
}

// shutdownTimeout bounds graceful shutdown when the config leaves it unset.
const shutdownTimeout = 15 * time.Second
