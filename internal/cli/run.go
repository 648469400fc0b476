package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/gate"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/server"
)

var (
	runArgs    string
	runUser    string
	runChannel string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runArgs, "args", "{}", "Tool arguments as a JSON object")
	runCmd.Flags().StringVar(&runUser, "user", "cli-user", "Stable actor identity")
	runCmd.Flags().StringVar(&runChannel, "channel", "cli", "Channel label recorded in audit entries")
}

var runCmd = &cobra.Command{
	Use:   "run <tool>",
	Short: "Execute one tool call through the full pipeline",
	Long: "Runs a single tool call end to end: policy resolution, escalation\n" +
		"checks, the write gate (asked on this terminal), cooldowns and audit\n" +
		"logging. Prints the result as JSON. Exit code 1 if the call fails or\n" +
		"is blocked.",
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(runArgs), &toolArgs); err != nil {
		return fmt.Errorf("invalid --args: %w", err)
	}

	ctx := context.Background()
	rt, err := server.NewRuntime(ctx, server.Options{
		ConfigPath: cfgPath,
		Channel:    &gate.Terminal{},
	})
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer rt.Close()

	wd, _ := os.Getwd()
	result := rt.Execute(ctx,
		model.ToolCall{ID: uuid.NewString(), Name: args[0], Arguments: toolArgs},
		model.CallContext{User: runUser, Channel: runChannel, Workspace: wd},
	)

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if !result.Success {
		os.Exit(1)
	}
	return nil
}
