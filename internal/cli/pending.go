package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/approval"
)

func init() {
	rootCmd.AddCommand(pendingCmd)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending gate confirmations",
	Long:  "Shows all confirmation requests in the approval store with their\nstatus, prompt, and timestamps.",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	store, err := approval.NewStore(approval.DefaultDir())
	if err != nil {
		return fmt.Errorf("failed to open approval store: %w", err)
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}

	fmt.Printf("%-28s %-10s %-40s %s\n", "KEY", "STATUS", "PROMPT", "CREATED")
	for _, a := range list {
		fmt.Printf("%-28s %-10s %-40s %s\n",
			a.Key,
			a.Status,
			truncate(a.Prompt, 40),
			a.CreatedAt.Format("15:04:05"),
		)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
