package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/sim"
)

var (
	simCandidate string
	simFormat    string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simCandidate, "candidate", "", "Path to candidate config YAML (required)")
	simulateCmd.Flags().StringVarP(&simFormat, "format", "f", "text", "Output format (text|json)")
	simulateCmd.MarkFlagRequired("candidate")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay the ledger against a candidate config and show decision drift",
	Long: "Reads every recorded call from the audit ledger, replays it against a\n" +
		"candidate config, and shows which decisions would change.\n\n" +
		"Use this to preview a policy change before deploying it.",
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, _, err := openLedger(ctx)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	result, err := sim.Simulate(ctx, store, simCandidate)
	if err != nil {
		return err
	}

	switch simFormat {
	case "json":
		out, err := sim.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(sim.FormatText(result))
	}

	return nil
}
