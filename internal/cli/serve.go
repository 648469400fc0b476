package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/mcp"
	"github.com/ppiankov/toolgate/internal/server"
)

var (
	serveUser      string
	serveChannel   string
	serveWorkspace string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveUser, "user", "", "Stable actor identity recorded for calls from this agent")
	serveCmd.Flags().StringVar(&serveChannel, "channel", "", "Channel label recorded in audit entries")
	serveCmd.Flags().StringVar(&serveWorkspace, "workspace", "", "Workspace named in gate prompts (default: working directory)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP gateway on stdio",
	Long: "Runs toolgate as an MCP (Model Context Protocol) server over stdio.\n" +
		"The agent invokes tools through toolgate_run; policy, escalation\n" +
		"ceilings, the write gate and the audit ledger apply to every call.\n" +
		"Config file changes hot-reload without dropping the session.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := server.NewRuntime(ctx, server.Options{ConfigPath: path})
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer rt.Close()

	reloader, err := server.NewReloader(rt, []string{path})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}
	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	srv := mcp.New(rt, mcp.Identity{
		User:      serveUser,
		Channel:   serveChannel,
		Workspace: serveWorkspace,
	})

	// Banner on stderr; stdout belongs to the protocol.
	fmt.Fprintf(os.Stderr, "toolgate MCP server running on stdio (policy %s)\n", rt.PolicyHash())
	return srv.Run(ctx)
}
