// Command opslinkcad levanta el API y agrupa las tareas operativas
// (migraciones, verificación de cadenas, generación de claves).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/opslinkcad/internal/config"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"

	// adapters registrados vía init()
	_ "github.com/dropDatabas3/opslinkcad/internal/store/memory"
	_ "github.com/dropDatabas3/opslinkcad/internal/store/mongo"
	_ "github.com/dropDatabas3/opslinkcad/internal/store/pg"
)

const serviceName = "opslinkcad"

// rootFlags son compartidos por todos los subcomandos.
type rootFlags struct {
	configPath string
	envFiles   []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "API de autenticación y cadena de custodia de OpsLink CAD",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", os.Getenv("CONFIG_PATH"), "ruta a config.yaml (env CONFIG_PATH)")
	root.PersistentFlags().StringSliceVar(&f.envFiles, "env-file", []string{".env"}, "archivos .env a cargar (no pisan el entorno)")

	root.AddCommand(
		newServeCmd(f),
		newMigrateCmd(f),
		newAuditCmd(f),
		newKeysCmd(),
	)
	return root
}

// load arma la config e inicializa el logger global. Cualquier falla de
// configuración aborta antes de tocar el store.
func (f *rootFlags) load() (*config.Config, error) {
	config.LoadEnvFiles(f.envFiles...)
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: serviceName,
	})
	return cfg, nil
}
