package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/opslinkcad/internal/config"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/store"
)

// openStore abre el DAL configurado; el caller cierra.
func openStore(ctx context.Context, cfg *config.Config) (store.DataAccessLayer, error) {
	return store.Open(ctx, store.Config{
		Driver:    cfg.Storage.Driver,
		DSN:       cfg.Storage.DSN,
		Database:  cfg.Storage.Database,
		OpTimeout: cfg.Storage.OpTimeout,
		MaxConns:  cfg.Storage.MaxConns,
		MinConns:  cfg.Storage.MinConns,
	})
}

func newMigrateCmd(f *rootFlags) *cobra.Command {
	var tenantID, tenantName string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Crea schema e índices y siembra los roles base",
		Example: `  opslinkcad migrate
  opslinkcad migrate --tenant alpha --name "OpsLink CAD Community"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			dal, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = dal.Close(context.Background()) }()

			res, err := store.Seed(ctx, dal, store.SeedOptions{TenantID: tenantID, TenantName: tenantName})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok driver=%s tenants=%d roles=%d\n", dal.Driver(), res.Tenants, res.Roles)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant a crear o reactivar antes de sembrar")
	cmd.Flags().StringVar(&tenantName, "name", "", "nombre visible del tenant (default: el id)")
	return cmd
}
