package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/54b3r/docqa-go/internal/agent"
)

// AskInput is the input schema of the ask_document tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question, in any language"`
	Lang     string `json:"lang,omitempty" jsonschema:"BCP 47 code of the question and reply; empty means English, auto detects and replies in English"`
	Source   string `json:"source,omitempty" jsonschema:"document id returned by add_document; empty answers from general knowledge"`
}

// AskOutput is the output schema of the ask_document tool.
type AskOutput struct {
	Answer       string   `json:"answer"`
	Lang         string   `json:"lang"`
	Mode         string   `json:"mode"`
	Insufficient bool     `json:"insufficient"`
	Sources      []string `json:"sources,omitempty"`
}

// AddInput is the input schema of the add_document tool.
type AddInput struct {
	Path string `json:"path,omitempty" jsonschema:"local path of a pdf, txt, csv or docx file"`
	URL  string `json:"url,omitempty" jsonschema:"web page to fetch when text is empty"`
	Text string `json:"text,omitempty" jsonschema:"page text already extracted from url"`
}

// StatusInput is the input schema of the document_status tool.
type StatusInput struct {
	ID string `json:"id" jsonschema:"document id"`
}

// StatusOutput describes one document and its index.
type StatusOutput struct {
	ID     string `json:"id"`
	Format string `json:"format"`
	Source string `json:"source"`
	State  string `json:"state"`
	Chunks int    `json:"chunks,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_document",
		Description: "Answer a question strictly from a registered document, or globally when no source is given. Questions and answers may be in any language.",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_document",
		Description: "Register a local file or a web page and build its index. Returns the document id to pass as source.",
	}, s.handleAdd)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "document_status",
		Description: "Report the index state of a registered document.",
	}, s.handleStatus)
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	reply, err := s.assistant.Ask(ctx, agent.Question{Text: in.Question, Lang: in.Lang, DocumentID: in.Source})
	if err != nil {
		return nil, AskOutput{}, err
	}

	out := AskOutput{
		Answer:       reply.Answer,
		Lang:         reply.Lang,
		Mode:         reply.Mode.String(),
		Insufficient: reply.Insufficient,
	}
	seen := map[string]bool{}
	for _, c := range reply.Grounding {
		if !seen[c.Source] {
			seen[c.Source] = true
			out.Sources = append(out.Sources, c.Source)
		}
	}
	return nil, out, nil
}

// handleAdd registers the document and blocks until its index is built, so
// the returned id can be asked about right away.
func (s *Server) handleAdd(ctx context.Context, _ *mcp.CallToolRequest, in AddInput) (*mcp.CallToolResult, StatusOutput, error) {
	var (
		id  string
		err error
	)
	switch {
	case in.Path != "":
		doc, aerr := s.assistant.AddFile(ctx, in.Path)
		id, err = doc.ID, aerr
	case in.URL != "" || in.Text != "":
		doc, aerr := s.assistant.AddWeb(ctx, in.URL, in.Text)
		id, err = doc.ID, aerr
	default:
		return nil, StatusOutput{}, fmt.Errorf("one of path, url or text is required")
	}
	if err != nil {
		return nil, StatusOutput{}, err
	}
	if err := s.assistant.Ingest(ctx, id); err != nil {
		return nil, StatusOutput{}, err
	}
	return s.handleStatus(ctx, nil, StatusInput{ID: id})
}

func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, in StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	st, err := s.assistant.Status(ctx, in.ID)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, statusOutput(st), nil
}

func statusOutput(st agent.DocumentStatus) StatusOutput {
	src := st.Document.Path
	if st.Document.URL != "" {
		src = st.Document.URL
	}
	return StatusOutput{
		ID:     st.Document.ID,
		Format: string(st.Document.Format),
		Source: src,
		State:  st.Status.State.String(),
		Chunks: st.Status.Chunks,
		Error:  st.Status.Error,
	}
}
