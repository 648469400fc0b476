package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/config"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system readiness and diagnose configuration issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	var checks []checkResult

	// 1. Binary location and version.
	execPath, _ := os.Executable()
	if execPath != "" {
		checks = append(checks, checkResult{
			label:  "toolgate binary",
			ok:     true,
			detail: fmt.Sprintf("%s (v%s)", execPath, version),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "toolgate binary",
			ok:     false,
			detail: "cannot determine executable path",
		})
	}

	// 2. Config file parses.
	path, pathErr := configPath()
	switch {
	case pathErr != nil:
		checks = append(checks, checkResult{
			label:  "config",
			ok:     false,
			detail: pathErr.Error(),
		})
	default:
		if _, err := os.Stat(path); err != nil {
			checks = append(checks, checkResult{
				label:  "config",
				ok:     false,
				detail: fmt.Sprintf("%s missing", path),
				fix:    "toolgate init",
			})
		} else if cfg, err := config.Load(cfgPath); err != nil {
			checks = append(checks, checkResult{
				label:  "config",
				ok:     false,
				detail: err.Error(),
			})
		} else {
			checks = append(checks, checkResult{
				label:  "config",
				ok:     true,
				detail: fmt.Sprintf("%s (%d policy rules)", path, len(cfg.Policies)),
			})
		}
	}

	// 3. Ledger opens and the hash chain verifies.
	if store, cfg, err := openLedger(ctx); err != nil {
		checks = append(checks, checkResult{
			label:  "ledger",
			ok:     false,
			detail: err.Error(),
		})
	} else {
		driver := cfg.Ledger.Driver
		if driver == "" {
			driver = "sqlite"
		}
		res, verr := store.VerifyChain(ctx)
		switch {
		case verr != nil:
			checks = append(checks, checkResult{
				label:  "ledger",
				ok:     false,
				detail: fmt.Sprintf("chain verify failed: %v", verr),
			})
		case !res.Valid:
			checks = append(checks, checkResult{
				label:  "ledger",
				ok:     false,
				detail: fmt.Sprintf("chain broken at entry %d: %s", res.ErrorSeq, res.Error),
			})
		default:
			checks = append(checks, checkResult{
				label:  "ledger",
				ok:     true,
				detail: fmt.Sprintf("%s, %d entries, chain intact", driver, res.Entries),
			})
		}
		store.Close()
	}

	// 4. Approval store is writable.
	apDir := approval.DefaultDir()
	if _, err := approval.NewStore(apDir); err != nil {
		checks = append(checks, checkResult{
			label:  "approval store",
			ok:     false,
			detail: err.Error(),
		})
	} else if probe, err := os.CreateTemp(apDir, ".doctor-*"); err != nil {
		checks = append(checks, checkResult{
			label:  "approval store",
			ok:     false,
			detail: fmt.Sprintf("%s not writable: %v", apDir, err),
		})
	} else {
		probe.Close()
		os.Remove(probe.Name())
		checks = append(checks, checkResult{
			label:  "approval store",
			ok:     true,
			detail: apDir,
		})
	}

	// Print results.
	hasFailures := false
	for _, c := range checks {
		mark := "✓" // ✓
		if !c.ok {
			mark = "✗" // ✗
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-18s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}
