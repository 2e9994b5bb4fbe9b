package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(t *testing.T, s *SQLiteStore, ex Exchange) int64 {
	t.Helper()
	id, err := s.Record(context.Background(), ex)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return id
}

func Test_Store_RecordAndList(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	id := record(t, s, Exchange{
		Source:   "report.pdf",
		Mode:     "grounded",
		Intent:   "question-answering",
		Lang:     "fr",
		Question: "Quel est le chiffre d'affaires ?",
		Answer:   "42 millions.",
	})
	if id == 0 {
		t.Fatal("expected a non-zero id")
	}

	got, err := s.List(context.Background(), "report.pdf", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 exchange, got %d", len(got))
	}
	ex := got[0]
	if ex.ID != id || ex.Lang != "fr" || ex.Answer != "42 millions." || ex.Insufficient {
		t.Errorf("unexpected exchange: %+v", ex)
	}
	if ex.CreatedAt.IsZero() {
		t.Error("CreatedAt was not set")
	}
}

func Test_Store_ListNewestFirstAndLimit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	for _, q := range []string{"first", "second", "third"} {
		record(t, s, Exchange{Source: "a.txt", Mode: "grounded", Intent: "summary", Lang: "en", Question: q, Answer: "-"})
	}

	got, err := s.List(context.Background(), "a.txt", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 exchanges, got %d", len(got))
	}
	if got[0].Question != "third" || got[1].Question != "second" {
		t.Errorf("want third, second; got %s, %s", got[0].Question, got[1].Question)
	}
}

func Test_Store_SourceFilter(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	record(t, s, Exchange{Source: "x.pdf", Mode: "grounded", Intent: "summary", Lang: "en", Question: "from x", Answer: "-"})
	record(t, s, Exchange{Mode: "global", Intent: "question-answering", Lang: "en", Question: "global", Answer: "-", Insufficient: true})

	onlyX, err := s.List(context.Background(), "x.pdf", 10)
	if err != nil {
		t.Fatalf("list x: %v", err)
	}
	if len(onlyX) != 1 || onlyX[0].Question != "from x" {
		t.Errorf("source filter failed: got %v", onlyX)
	}

	all, err := s.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("want 2 exchanges, got %d", len(all))
	}
	if !all[0].Insufficient {
		t.Error("insufficient flag did not round-trip")
	}
}

func Test_Store_InvalidModeRejected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.Record(context.Background(), Exchange{Mode: "chat", Intent: "x", Lang: "en", Question: "q", Answer: "a"})
	if err == nil {
		t.Fatal("expected the mode check constraint to reject the row")
	}
}

func Test_Store_Documents(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	file := Document{ID: "3f2a.pdf", Format: rag.FormatPDF, Path: "/uploads/3f2a.pdf", Name: "report.pdf"}
	web := Document{ID: "web-0011", Format: rag.FormatWeb, URL: "https://example.com", WebText: "page text"}
	for _, d := range []Document{file, web} {
		if err := s.PutDocument(ctx, d); err != nil {
			t.Fatalf("put %s: %v", d.ID, err)
		}
	}

	got, err := s.Document(ctx, "3f2a.pdf")
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if ref := got.Ref(); ref.Path != file.Path || ref.Format != rag.FormatPDF {
		t.Errorf("file ref: got %+v", ref)
	}

	got, err = s.Document(ctx, "web-0011")
	if err != nil {
		t.Fatalf("get web: %v", err)
	}
	if ref := got.Ref(); !ref.IsWeb() || ref.WebText != "page text" || ref.URL != "https://example.com" {
		t.Errorf("web ref: got %+v", ref)
	}

	// Re-registering replaces the content but keeps the ID.
	web.WebText = "updated"
	if err := s.PutDocument(ctx, web); err != nil {
		t.Fatalf("re-put: %v", err)
	}
	got, _ = s.Document(ctx, "web-0011")
	if got.WebText != "updated" {
		t.Errorf("want updated web text, got %q", got.WebText)
	}

	if _, err := s.Document(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	if err := s.PutDocument(ctx, Document{}); err == nil {
		t.Error("expected an error for an empty id")
	}
}

func Test_Store_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	record(t, s, Exchange{Mode: "global", Intent: "question-answering", Lang: "en", Question: "q", Answer: "a"})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })
	got, err := s2.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("want 1 persisted exchange, got %d", len(got))
	}
}
