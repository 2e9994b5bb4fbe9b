// Package prompt renders the grounded prompts sent to the generator.
package prompt

import (
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Sentinel is the exact reply that signals the context does not hold an
// answer. Callers detect no-answer outcomes by comparing against it.
const Sentinel = "The context does not provide this information."

const summaryTemplate = `You are a document analyst. Write a structured summary of the document excerpts below.

Format the summary in Markdown:
- Start with a level-2 header naming the document's subject.
- Group related points under level-3 headers.
- Use bullet points for the key facts, figures, and conclusions.
- Keep names, numbers, and dates exactly as written in the excerpts.

Only use the excerpts. Do not add facts that are not in them.

## Document excerpts

{context}

## Summary
`

const answerTemplate = `You are a careful assistant answering questions about a document.

Answer the question using ONLY the document excerpts below.
- If the excerpts do not contain the answer, reply with exactly this sentence and nothing else:
  ` + Sentinel + `
- Do not use outside knowledge or make assumptions.
- Quote names, figures, dates, and other specific values verbatim from the excerpts.
- Format the answer in Markdown. Use bullet points when listing several items.

## Document excerpts

{context}

## Question

{question}

## Answer
`

// Build renders the prompt for intent. contextText is inserted verbatim.
// The summary template ignores question.
func Build(intent rag.Intent, contextText, question string) string {
	tmpl := answerTemplate
	if intent == rag.IntentSummary {
		tmpl = summaryTemplate
	}
	// Replacer makes a single pass: placeholders inside the inserted text stay literal.
	r := strings.NewReplacer("{context}", contextText, "{question}", question)
	return r.Replace(tmpl)
}

// Context joins the chunk texts of result in retrieval order, separated by
// blank lines. Chunk text is never trimmed or truncated.
func Context(result rag.Result) string {
	var sb strings.Builder
	for i, h := range result {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(h.Text)
	}
	return sb.String()
}
