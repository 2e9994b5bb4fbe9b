package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/mcpserver"
)

// NewMCPCmd constructs the `docqa mcp` command, which serves the assistant
// to MCP clients over stdin and stdout.
func NewMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve docqa as an MCP server over stdio",
		Long: `Serve docqa to MCP clients such as editors and desktop assistants.

Tools: ask_document, add_document, document_status.
Resource: docqa://documents/{documentId} with the document's index state.

Stdout carries the protocol; logs go to stderr.

Example client entry:
  {"command": "docqa", "args": ["mcp"]}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			a, err := buildApp(ctx, log, appOptions{})
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer a.Close()

			srv, err := mcpserver.New(a.assistant)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			return srv.Run(ctx)
		},
	}
}
