package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/server"
)

var (
	checkArgs string
	checkUser string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkArgs, "args", "{}", "Tool arguments as a JSON object")
	checkCmd.Flags().StringVar(&checkUser, "user", "cli-user", "Stable actor identity")
}

var checkCmd = &cobra.Command{
	Use:   "check <tool>",
	Short: "Dry-run the decision for a call without executing it",
	Long: "Resolves policy and current escalation state for a hypothetical call\n" +
		"and prints the decision. Nothing executes and nothing is written to\n" +
		"the ledger. Exit code 77 if the call would be blocked.",
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(checkArgs), &toolArgs); err != nil {
		return fmt.Errorf("invalid --args: %w", err)
	}

	ctx := context.Background()
	rt, err := server.NewRuntime(ctx, server.Options{ConfigPath: cfgPath})
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer rt.Close()

	wd, _ := os.Getwd()
	report := rt.Check(ctx,
		model.ToolCall{ID: uuid.NewString(), Name: args[0], Arguments: toolArgs},
		model.CallContext{User: checkUser, Channel: "cli", Workspace: wd},
	)

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))

	blocked := !report.Known ||
		report.Decision.Action == model.ActionDeny ||
		report.Decision.Action == model.ActionEscalate
	if blocked {
		os.Exit(77)
	}
	return nil
}
