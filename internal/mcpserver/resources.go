package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/54b3r/docqa-go/internal/agent"
)

const documentURIPrefix = "docqa://documents/"

func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: documentURIPrefix + "{documentId}",
		Name:        "document-status",
		Description: "Registration and index state of a document",
		MIMEType:    "application/json",
	}, s.handleDocumentResource)
}

func (s *Server) handleDocumentResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	id := documentID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	st, err := s.assistant.Status(ctx, id)
	if errors.Is(err, agent.ErrUnknownDocument) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("mcpserver: status %s: %w", id, err)
	}
	body, err := json.Marshal(statusOutput(st))
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode status: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(body),
		}},
	}, nil
}

// documentID extracts the id from docqa://documents/{id}.
func documentID(uri string) string {
	id, ok := strings.CutPrefix(uri, documentURIPrefix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
