// Package cli implements paramctl, the operator tool for system parameters.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"influencegen/internal/backend"
	"influencegen/internal/config"
	"influencegen/internal/log"
)

// Opener opens backends for cfg. Tests substitute in-memory backends.
type Opener func(ctx context.Context, cfg config.Config) (*backend.Backends, error)

type app struct {
	open       Opener
	configPath string
	namespace  string
	reveal     bool

	cfg config.Config
	b   *backend.Backends
}

// NewRootCommand builds the paramctl command tree.
func NewRootCommand(open Opener) *cobra.Command {
	a := &app{open: open}
	root := &cobra.Command{
		Use:   "paramctl",
		Short: "Manage InfluenceGen system parameters",
		Long: `paramctl reads and writes the system parameters used by the InfluenceGen
gateway, such as the shared secret that authenticates N8N callbacks.

Backends are chosen from the same configuration as the API server
(INFLUENCEGEN_CONFIG, DATABASE_URL, REDIS_URL).`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.b == nil {
				return nil
			}
			return a.b.Close()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv(config.EnvConfigPath), "path to YAML config file")
	root.PersistentFlags().StringVarP(&a.namespace, "namespace", "n", "", "parameter namespace (default from config)")

	root.AddCommand(a.getCmd(), a.setCmd(), a.deleteCmd(), a.listCmd(), a.rotateCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	log.Configure(log.Config{Level: "warn", Output: cmd.ErrOrStderr(), Service: "paramctl"})
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.namespace != "" {
		cfg.Namespace = a.namespace
	}
	b, err := a.open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	a.cfg, a.b = cfg, b
	return nil
}

// Execute runs paramctl against the configured backends.
func Execute(version string) error {
	root := NewRootCommand(backend.Open)
	root.Version = version
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
