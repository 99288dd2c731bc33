package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

func newAuditCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Herramientas sobre las cadenas de auditoría y custodia",
	}

	var tenantID, evidenceID string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Reproduce una cadena y recalcula cada hash",
		Long: `Sin --evidence verifica la cadena de auditoría del tenant.
Con --evidence verifica la cadena de custodia de esa evidencia.
Sale con error si la cadena está rota.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tenantID == "" {
				return errors.New("--tenant es requerido")
			}
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

			chain := audit.NewAuditChain(dal.AuditEvents())
			if evidenceID != "" {
				chain = audit.NewEvidenceChain(dal.EvidenceChain())
			}

			rep, verr := chain.Verify(ctx, tenantID, evidenceID)
			if verr != nil && !errors.Is(verr, audit.ErrTampered) {
				return verr
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
			if !rep.OK {
				return fmt.Errorf("%s chain broken at seq %d", chain.Name(), rep.BrokenSeq)
			}
			return nil
		},
	}
	verify.Flags().StringVar(&tenantID, "tenant", "", "tenant de la cadena")
	verify.Flags().StringVar(&evidenceID, "evidence", "", "id de evidencia (cadena de custodia)")

	cmd.AddCommand(verify)
	return cmd
}
