package mcp

import (
	"context"
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolgate/internal/server"
)

// Version is stamped into the MCP handshake.
const Version = "0.1.0"

// Identity pins who the MCP client acts as. The agent cannot pick its
// own user: the operator fixes it when the server starts, and every
// policy and history check keys off it.
type Identity struct {
	User      string
	Channel   string
	Workspace string
}

// Server exposes the pipeline over MCP stdio. Gated calls ride the full
// pipeline including the confirmation channel; blocked calls come back
// as tool results flagged IsError, never as protocol errors.
type Server struct {
	rt  *server.Runtime
	mcp *mcpsdk.Server
	id  Identity
}

// New wraps a runtime in an MCP server.
func New(rt *server.Runtime, id Identity) *Server {
	if id.User == "" {
		id.User = "mcp-agent"
	}
	if id.Channel == "" {
		id.Channel = "mcp"
	}
	if id.Workspace == "" {
		if wd, err := os.Getwd(); err == nil {
			id.Workspace = wd
		}
	}

	s := &Server{rt: rt, id: id}
	s.mcp = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "toolgate",
			Version: Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP on stdio. Blocks until ctx is cancelled. Log output
// stays on stderr; stdout carries the protocol frames.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all toolgate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "toolgate_run",
		Description: "Execute a tool through the toolgate authorization pipeline. Blocked calls return an error with the decision reason.",
	}, s.handleRun)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "toolgate_check",
		Description: "Check what the policy would decide for a tool call without executing it (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "toolgate_pending",
		Description: "List approval requests, pending confirmations first.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "toolgate_approve",
		Description: "Approve a pending confirmation by key. A duration grants standing approval; omit it for one-time.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "toolgate_audit_tail",
		Description: "Show the most recent audit ledger entries.",
	}, s.handleAuditTail)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "toolgate_audit_verify",
		Description: "Verify the audit ledger hash chain end to end.",
	}, s.handleAuditVerify)
}
