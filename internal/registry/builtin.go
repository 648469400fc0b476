package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/toolgate/internal/escalate"
	"github.com/ppiankov/toolgate/internal/model"
)

// RegisterBuiltins adds the demo tool set used by certification runs
// and the quickstart. Real deployments register their own tools beside
// or instead of these.
func RegisterBuiltins(r *Registry) error {
	for _, d := range []Definition{echoTool, clockTool, noteAppendTool, walletTransferTool} {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

var echoTool = Definition{
	Name:        "echo",
	Description: "Returns its text argument unchanged.",
	Security:    Security{Level: model.LevelRead},
	Execute: func(ctx context.Context, args map[string]any, tc ToolContext) (model.ToolResult, error) {
		text, _ := args["text"].(string)
		return model.ToolResult{Success: true, Output: text}, nil
	},
}

var clockTool = Definition{
	Name:        "clock",
	Description: "Returns the current UTC time.",
	Security:    Security{Level: model.LevelRead},
	Execute: func(ctx context.Context, args map[string]any, tc ToolContext) (model.ToolResult, error) {
		layout := time.RFC3339
		if f, ok := args["format"].(string); ok && f != "" {
			layout = f
		}
		return model.ToolResult{Success: true, Output: time.Now().UTC().Format(layout)}, nil
	},
}

var noteAppendTool = Definition{
	Name:        "note_append",
	Description: "Appends a line to notes.md in the call workspace.",
	Security:    Security{Level: model.LevelWrite},
	Execute: func(ctx context.Context, args map[string]any, tc ToolContext) (model.ToolResult, error) {
		text, _ := args["text"].(string)
		if text == "" {
			return model.ToolResult{Success: false, Error: "note_append: missing text"}, nil
		}
		if tc.Call.Workspace == "" {
			return model.ToolResult{Success: false, Error: "note_append: no workspace"}, nil
		}

		path := filepath.Join(tc.Call.Workspace, "notes.md")

		ok, err := tc.Confirm(ctx, fmt.Sprintf("Append a note to %s?", path))
		if err != nil {
			return model.ToolResult{Success: false, Error: err.Error()}, err
		}
		if !ok {
			return model.ToolResult{Success: false, Error: "cancelled by user"}, nil
		}

		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return model.ToolResult{Success: false, Error: err.Error()}, err
		}
		defer f.Close()

		if _, err := fmt.Fprintln(f, text); err != nil {
			return model.ToolResult{Success: false, Error: err.Error()}, err
		}

		return model.ToolResult{
			Success: true,
			Output:  fmt.Sprintf("appended %d bytes to %s", len(text)+1, path),
			Data:    map[string]any{"path": path},
		}, nil
	},
}

var walletTransferTool = Definition{
	Name:         "wallet_transfer",
	Description:  "Transfers USD from the agent wallet to a named recipient.",
	Security:     Security{Level: model.LevelSign, ConfirmRequired: true},
	DeclineError: "Transfer cancelled by user",
	Execute: func(ctx context.Context, args map[string]any, tc ToolContext) (model.ToolResult, error) {
		to, _ := args["to"].(string)
		if to == "" {
			return model.ToolResult{Success: false, Error: "wallet_transfer: missing to"}, nil
		}
		amount := escalate.AmountFromArgs(args)
		if amount == nil {
			return model.ToolResult{Success: false, Error: "wallet_transfer: missing amount_usd"}, nil
		}

		ok, err := tc.Confirm(ctx, fmt.Sprintf("Transfer $%.2f to %s?", *amount, to))
		if err != nil {
			return model.ToolResult{Success: false, Error: err.Error()}, err
		}
		if !ok {
			return model.ToolResult{Success: false, Error: "Transfer cancelled by user"}, nil
		}

		// Demo stub: mints a reference without touching a real wallet.
		ref := "txn_" + uuid.NewString()[:8]
		return model.ToolResult{
			Success: true,
			Output:  fmt.Sprintf("transferred $%.2f to %s", *amount, to),
			Ref:     ref,
			Data:    map[string]any{"to": to, "amount_usd": *amount, "ref": ref},
		}, nil
	},
}
