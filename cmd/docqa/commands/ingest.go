package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/store"
)

// NewIngestCmd constructs the `docqa ingest` command, which registers
// documents and builds their indexes ahead of the first question.
func NewIngestCmd() *cobra.Command {
	var (
		urls        []string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Register documents and build their indexes",
		Long: `Register local files and web pages and build their retrieval indexes.

Indexes are persisted in the configured index store (INDEX_BACKEND) and
reused by later ask, serve and mcp runs as long as the document content and
chunking settings are unchanged. Each document prints its id, which is the
value to pass as the source of a question.

Examples:
  docqa ingest ./report.pdf ./notes.txt
  docqa ingest --url https://example.com/handbook
  INDEX_BACKEND=qdrant docqa ingest ./data/*.docx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(urls) == 0 {
				return fmt.Errorf("ingest: at least one file or --url is required")
			}
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := buildApp(ctx, log, appOptions{})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer a.Close()

			type source struct{ path, url string }
			sources := make([]source, 0, len(args)+len(urls))
			for _, p := range args {
				sources = append(sources, source{path: p})
			}
			for _, u := range urls {
				sources = append(sources, source{url: u})
			}

			results := make([]agent.DocumentStatus, len(sources))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(concurrency, 1))
			for i, src := range sources {
				g.Go(func() error {
					st, err := ingestOne(gctx, a.assistant, src.path, src.url)
					if err != nil {
						return err
					}
					results[i] = st
					log.Info("document indexed",
						slog.String("id", st.Document.ID),
						slog.Int("chunks", st.Status.Chunks),
					)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, st := range results {
				fmt.Fprintf(out, "%s\t%s\t%d chunks\n", st.Document.ID, st.Status.State, st.Status.Chunks)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Web page to ingest (repeatable)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 2, "Documents indexed in parallel")

	return cmd
}

func ingestOne(ctx context.Context, a *agent.Assistant, path, url string) (agent.DocumentStatus, error) {
	var (
		doc store.Document
		err error
	)
	if path != "" {
		doc, err = a.AddFile(ctx, path)
	} else {
		doc, err = a.AddWeb(ctx, url, "")
	}
	if err != nil {
		return agent.DocumentStatus{}, err
	}
	if err := a.Ingest(ctx, doc.ID); err != nil {
		return agent.DocumentStatus{}, fmt.Errorf("%s: %w", doc.ID, err)
	}
	return a.Status(ctx, doc.ID)
}
