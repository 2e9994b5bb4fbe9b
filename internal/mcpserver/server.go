// Package mcpserver exposes docqa to MCP clients over stdio: a tool to ask
// questions, tools to register and inspect documents, and a resource per
// document carrying its index status.
package mcpserver

import (
	"context"
	"errors"
	"io"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/version"
)

// ErrMissingAssistant is returned by New without an assistant.
var ErrMissingAssistant = errors.New("mcpserver: assistant is required")

// Assistant is the part of the session layer the tools call.
// *agent.Assistant satisfies it.
type Assistant interface {
	Ask(ctx context.Context, q agent.Question) (agent.Reply, error)
	AddFile(ctx context.Context, path string) (store.Document, error)
	AddWeb(ctx context.Context, url, text string) (store.Document, error)
	Ingest(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (agent.DocumentStatus, error)
}

// Server is the docqa MCP server.
type Server struct {
	assistant Assistant
	server    *mcp.Server
}

// New builds a Server with every tool and resource registered.
func New(a Assistant) (*Server, error) {
	if a == nil {
		return nil, ErrMissingAssistant
	}
	s := &Server{
		assistant: a,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "docqa",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	err := s.server.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
