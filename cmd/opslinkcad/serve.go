package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/opslinkcad/internal/http/server"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

func newServeCmd(f *rootFlags) *cobra.Command {
	var runtimeMetrics bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el API HTTP y el gateway realtime",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logger.L().With(logger.Component("serve"))
			app, err := server.Build(ctx, cfg, server.Options{RuntimeMetrics: runtimeMetrics})
			if err != nil {
				log.Error("wiring failed", logger.Err(err))
				return err
			}

			log.Info("starting",
				logger.String("addr", cfg.Server.Addr),
				logger.String("env", cfg.App.Env),
				logger.String("driver", app.DAL.Driver()),
			)
			if err := app.Run(ctx); err != nil {
				log.Error("server stopped with error", logger.Err(err))
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&runtimeMetrics, "runtime-metrics", true, "exponer métricas de proceso y runtime de Go")
	return cmd
}
