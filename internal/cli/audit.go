package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/audit"
)

var (
	tailLimit  int
	tailFormat string
	spendUser  string
	streakUser string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditSpendCmd)
	auditCmd.AddCommand(auditStreakCmd)
	auditTailCmd.Flags().IntVarP(&tailLimit, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().StringVarP(&tailFormat, "format", "f", "table", "Output format (table|json)")
	auditSpendCmd.Flags().StringVar(&spendUser, "user", "", "Actor identity (required)")
	auditSpendCmd.MarkFlagRequired("user")
	auditStreakCmd.Flags().StringVar(&streakUser, "user", "", "Actor identity (required)")
	auditStreakCmd.MarkFlagRequired("user")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit ledger operations",
	Long:  "Commands for inspecting and verifying the hash-chained audit ledger.",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent audit entries",
	Long:  "Reads the last N entries from the ledger and pretty-prints them in order.",
	RunE:  runAuditTail,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify hash chain integrity of the ledger",
	Long: "Walks the ledger in insertion order and validates every entry's hash\n" +
		"and prev-hash link. Exits 0 if intact, 1 if tampered.",
	RunE: runAuditVerify,
}

var auditSpendCmd = &cobra.Command{
	Use:   "spend",
	Short: "Show a user's spend for the current UTC day",
	RunE:  runAuditSpend,
}

var auditStreakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show a user's consecutive denial streak",
	RunE:  runAuditStreak,
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, _, err := openLedger(ctx)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	entries, err := store.Tail(ctx, tailLimit)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	switch tailFormat {
	case "json":
		out, err := audit.FormatJSON(entries)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(audit.FormatTable(entries))
	}
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, _, err := openLedger(ctx)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	res, err := store.VerifyChain(ctx)
	if err != nil {
		return fmt.Errorf("verify chain: %w", err)
	}
	if res.Valid {
		fmt.Printf("OK: %d entries verified\n", res.Entries)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at entry %d (%s): %s\n", res.ErrorSeq, res.ErrorID, res.Error)
	os.Exit(1)
	return nil
}

func runAuditSpend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, cfg, err := openLedger(ctx)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	spent, err := audit.NewQueries(store).DailySpentUSD(ctx, spendUser, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("query spend: %w", err)
	}
	fmt.Printf("%s spent $%.2f today (daily ceiling $%.2f)\n", spendUser, spent, cfg.Thresholds.DailyUSD)
	return nil
}

func runAuditStreak(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, cfg, err := openLedger(ctx)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	n, err := audit.NewQueries(store).ConsecutiveDenials(ctx, streakUser)
	if err != nil {
		return fmt.Errorf("query denials: %w", err)
	}
	fmt.Printf("%s has %d consecutive denials (ceiling %d)\n", streakUser, n, cfg.Thresholds.ConsecutiveDenialCeiling)
	return nil
}
