package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/store"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// question, optionally grounded in one document, and prints the reply.
func NewAskCmd() *cobra.Command {
	var (
		doc       string
		url       string
		lang      string
		noHistory bool
		sources   bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question, optionally about a document or web page",
		Long: `Ask a question in any language and print the answer.

With --doc or --url the answer comes strictly from that document; when the
document does not contain the answer the reply says so. Without either the
model answers from general knowledge.

Examples:
  docqa ask --doc ./report.pdf "What was the revenue in 2023?"
  docqa ask --doc ./bericht.docx --lang de "Wie hoch war der Umsatz?"
  docqa ask --url https://example.com/pricing "How much is the pro plan?"
  docqa ask "What is a vector database?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if doc != "" && url != "" {
				return fmt.Errorf("ask: --doc and --url are mutually exclusive")
			}
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := buildApp(ctx, log, appOptions{ephemeral: noHistory})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			var d store.Document
			switch {
			case doc != "":
				d, err = a.assistant.AddFile(ctx, doc)
			case url != "":
				d, err = a.assistant.AddWeb(ctx, url, "")
			}
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			reply, err := a.assistant.Ask(ctx, agent.Question{Text: args[0], Lang: lang, DocumentID: d.ID})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			printReply(cmd.OutOrStdout(), reply, sources)
			return nil
		},
	}

	cmd.Flags().StringVarP(&doc, "doc", "d", "", "Document to answer from (pdf, txt, csv, docx)")
	cmd.Flags().StringVarP(&url, "url", "u", "", "Web page to answer from")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Language of the question and reply as a BCP 47 code, or auto (default: English)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the exchange in the history database")
	cmd.Flags().BoolVar(&sources, "sources", false, "Print the passages the answer was grounded in")

	return cmd
}

func printReply(w io.Writer, r agent.Reply, sources bool) {
	fmt.Fprintln(w, r.Answer)
	if !sources || len(r.Grounding) == 0 {
		return
	}
	fmt.Fprintln(w)
	for i, c := range r.Grounding {
		fmt.Fprintf(w, "[%d] %s #%d: %s\n", i+1, c.Source, c.Ordinal, snippet(c.Text, 120))
	}
}

// snippet shortens s to at most n runes on one line.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
