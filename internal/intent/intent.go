// Package intent decides whether a question asks for a summary of the whole
// document or for a specific answer.
package intent

import (
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// summaryTerms are matched as case-insensitive substrings of the question.
// A sub-word hit (e.g. "briefcase") still counts as a summary request.
var summaryTerms = []string{
	"summarize",
	"summarise",
	"summary",
	"overview",
	"explain",
	"highlight",
	"brief",
	"describe",
	"gist",
	"outline",
	"recap",
	"what is this pdf",
	"what is this document",
	"give me details",
}

// Classify returns rag.IntentSummary when question contains any summary term,
// and rag.IntentQuestionAnswering otherwise.
func Classify(question string) rag.Intent {
	q := strings.ToLower(question)
	for _, term := range summaryTerms {
		if strings.Contains(q, term) {
			return rag.IntentSummary
		}
	}
	return rag.IntentQuestionAnswering
}

// Terms returns a copy of the summary vocabulary.
func Terms() []string {
	return append([]string(nil), summaryTerms...)
}
