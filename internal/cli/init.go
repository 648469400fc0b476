package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/config"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the toolgate config directory",
	Long: "Creates ~/.toolgate with a commented default config and the approval\n" +
		"store directory. Existing files are left alone unless --force is given.",
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := config.DefaultPath()
	if err != nil {
		return err
	}

	wrote, err := writeIfMissing(path, config.DefaultYAML())
	if err != nil {
		return err
	}

	// Creates the directory as a side effect.
	if _, err := approval.NewStore(approval.DefaultDir()); err != nil {
		return fmt.Errorf("create approval store: %w", err)
	}

	fmt.Println("toolgate init complete.")
	fmt.Println()
	if wrote {
		fmt.Printf("Created %s\n", path)
	} else {
		fmt.Printf("%s already exists (use --force to overwrite).\n", path)
	}
	fmt.Println()
	fmt.Println("Verify:")
	fmt.Println("  toolgate doctor")
	fmt.Println()
	fmt.Println("Point an agent at the gateway:")
	fmt.Println("  toolgate serve --user <agent-identity>")
	return nil
}

// writeIfMissing writes content to path unless it exists and --force is
// unset. Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
