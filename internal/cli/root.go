package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Authorization and audit gateway for AI agent tool calls",
	Long: "Sits between an agent and its tools. Every call is resolved against\n" +
		"policy, checked against spend and denial ceilings, confirmed by a\n" +
		"human where required, and recorded in a hash-chained audit ledger\n" +
		"before anything runs.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config YAML (default ~/.toolgate/toolgate.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configPath resolves --config to a concrete file path so commands that
// watch or reload the config have a real file to point at.
func configPath() (string, error) {
	if cfgPath != "" {
		return cfgPath, nil
	}
	return config.DefaultPath()
}

// openLedger opens the ledger the config points at. Used by the read-only
// commands that do not need a full runtime.
func openLedger(ctx context.Context) (audit.Store, *config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	switch cfg.Ledger.Driver {
	case "", "sqlite":
		path, err := cfg.LedgerPath()
		if err != nil {
			return nil, nil, err
		}
		store, err := audit.NewSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return store, cfg, nil
	case "postgres":
		store, err := audit.NewPostgres(ctx, cfg.Ledger.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, cfg, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}
