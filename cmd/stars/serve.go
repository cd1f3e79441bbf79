package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dsuszek/dev-task/api"
	"github.com/dsuszek/dev-task/db"
	"github.com/dsuszek/dev-task/migrations"
	"github.com/dsuszek/dev-task/observability"
	"github.com/dsuszek/dev-task/repo"
	"github.com/dsuszek/dev-task/service"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	var hooks []db.Hook
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(observability.ServiceName)
		hooks = append(hooks, db.NewMetricsHook(metrics))
	}
	if cfg.Tracing.Enabled {
		tp, err := observability.NewTracerProvider(ctx, observability.TracingOptions{
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			SampleRate:  cfg.Tracing.SampleRate,
			Environment: cfg.Environment,
		})
		if err != nil {
			return err
		}
		logger.Info("tracing enabled", zap.String("endpoint", cfg.Tracing.Endpoint),
			zap.Float64("sample_rate", cfg.Tracing.SampleRate))
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(flushCtx); err != nil {
				logger.Warn("tracer shutdown", zap.Error(err))
			}
		}()
		hooks = append(hooks, db.NewTracingHook(observability.NewQueryTracer(tp, cfg.Database.Driver)))
	}

	database, err := a.openDatabase(ctx, hooks...)
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := a.autoMigrate(ctx, database); err != nil {
			return err
		}
	}

	svc := service.NewStarService(repo.NewStarRepo(database), logger,
		service.WithTxRunner(service.NewTxRunner(database)))

	routerCfg := api.RouterConfig{
		Service:     svc,
		Logger:      logger,
		DB:          database,
		CORSEnabled: cfg.Server.CORSEnabled,
		CORSOrigins: cfg.Server.CORSOrigins,
	}
	if metrics != nil {
		routerCfg.Metrics = metrics
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout == 0 {
		timeout = shutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// autoMigrate brings the schema up to date before serving. SQLite migrates on
// the serving pool, since a second pool may see a different database (e.g.
// ":memory:"). Other dialects migrate on a short-lived pool so the
// connection the migrate driver holds is released before serving.
func (a *app) autoMigrate(ctx context.Context, database *db.DB) error {
	if database.DriverName() == "sqlite3" {
		return migrations.Up(database, a.logger)
	}
	migrationDB, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	return migrations.Apply(migrationDB, a.logger)
}
