// Package toolgate embeds the authorization and audit gateway in a Go
// agent process. Every call made through a Client runs the full
// pipeline: policy resolution, spend and denial ceilings, the human
// write gate, cooldowns and the hash-chained audit ledger.
//
// Usage:
//
//	tg, err := toolgate.New(ctx,
//	    toolgate.WithConfigPath("toolgate.yaml"),
//	    toolgate.WithIdentity("agent-7", "prod"),
//	    toolgate.WithTool(toolgate.Tool{
//	        Name:  "send_invoice",
//	        Level: "sign",
//	        Run:   sendInvoice,
//	    }),
//	)
//	result := tg.Execute(ctx, "send_invoice", map[string]any{"amount_usd": 120})
//
// The package links directly against the internal pipeline for
// zero-subprocess overhead. External users import
// github.com/ppiankov/toolgate/sdk/go/toolgate.
package toolgate
