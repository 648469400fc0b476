// Command toolgate is the authorization and audit gateway for AI agent
// tool calls.
package main

import "github.com/ppiankov/toolgate/internal/cli"

func main() {
	cli.Execute()
}
