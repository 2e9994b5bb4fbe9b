// Package store persists what docqa has been asked and which documents it
// knows about, in a local SQLite database. The exchange log is a record for
// operators and users; it is never fed back into prompts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docqa-go/internal/rag"
)

// ErrNotFound is returned when a requested document is not registered.
var ErrNotFound = errors.New("store: not found")

// Exchange is one answered question.
type Exchange struct {
	// ID is assigned by the store on Record.
	ID int64 `json:"id"`

	// Source is the document identifier, or empty in global mode.
	Source string `json:"source,omitempty"`

	// Mode is "grounded" or "global".
	Mode string `json:"mode"`

	// Intent is the classified intent of the question.
	Intent string `json:"intent"`

	// Lang is the language the user asked in.
	Lang string `json:"lang"`

	// Question is the question as the user asked it.
	Question string `json:"question"`

	// Answer is the reply as returned to the user.
	Answer string `json:"answer"`

	// Insufficient marks replies where the document had no answer.
	Insufficient bool `json:"insufficient"`

	// CreatedAt is when the exchange was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Document is a registered document: an uploaded file or fetched web text.
type Document struct {
	// ID is the document identifier used as the index key.
	ID string `json:"id"`

	// Format is the content format tag.
	Format rag.Format `json:"format"`

	// Path is the file on disk for uploads.
	Path string `json:"path,omitempty"`

	// URL is the page web text was taken from, if any.
	URL string `json:"url,omitempty"`

	// Name is the name the user gave the document (the upload file name).
	Name string `json:"name,omitempty"`

	// WebText is the stored web text. Not serialised.
	WebText string `json:"-"`

	// CreatedAt is when the document was first registered.
	CreatedAt time.Time `json:"created_at"`
}

// Ref rebuilds the reference the pipeline consumes.
func (d Document) Ref() rag.DocumentRef {
	if d.Format == rag.FormatWeb {
		return rag.WebRef(d.URL, d.WebText)
	}
	return rag.DocumentRef{Path: d.Path, Format: d.Format}
}

// ExchangeLog records answered exchanges. Implementations must be safe for
// concurrent use.
type ExchangeLog interface {
	// Record persists ex and returns its assigned ID.
	Record(ctx context.Context, ex Exchange) (int64, error)
	// List returns up to n exchanges, newest first. An empty source lists
	// every exchange.
	List(ctx context.Context, source string, n int) ([]Exchange, error)
}

// DocumentRegistry maps document identifiers to their sources.
type DocumentRegistry interface {
	// PutDocument registers d, replacing any document with the same ID.
	PutDocument(ctx context.Context, d Document) error
	// Document returns the document registered under id, or ErrNotFound.
	Document(ctx context.Context, id string) (Document, error)
}

// Ensure SQLiteStore implements both interfaces.
var (
	_ ExchangeLog      = (*SQLiteStore)(nil)
	_ DocumentRegistry = (*SQLiteStore)(nil)
)

// SQLiteStore is backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns ~/.docqa/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create dir for %s: %w", path, err)
		}
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS exchanges (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    source       TEXT    NOT NULL DEFAULT '',
    mode         TEXT    NOT NULL CHECK(mode IN ('grounded','global')),
    intent       TEXT    NOT NULL,
    lang         TEXT    NOT NULL,
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    insufficient INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL  -- Unix timestamp (milliseconds)
);
CREATE INDEX IF NOT EXISTS idx_exchanges_source_created
    ON exchanges (source, created_at);
CREATE TABLE IF NOT EXISTS documents (
    id         TEXT    PRIMARY KEY,
    format     TEXT    NOT NULL,
    path       TEXT    NOT NULL DEFAULT '',
    url        TEXT    NOT NULL DEFAULT '',
    name       TEXT    NOT NULL DEFAULT '',
    web_text   TEXT    NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record persists ex. A zero CreatedAt is set to now.
func (s *SQLiteStore) Record(ctx context.Context, ex Exchange) (int64, error) {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}
	const q = `INSERT INTO exchanges (source, mode, intent, lang, question, answer, insufficient, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		ex.Source, ex.Mode, ex.Intent, ex.Lang, ex.Question, ex.Answer, ex.Insufficient, ex.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: record id: %w", err)
	}
	return id, nil
}

// List returns up to n exchanges for source, newest first.
func (s *SQLiteStore) List(ctx context.Context, source string, n int) ([]Exchange, error) {
	const q = `
SELECT id, source, mode, intent, lang, question, answer, insufficient, created_at
FROM   exchanges
WHERE  (? = '' OR source = ?)
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, source, source, n)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var ex Exchange
		var ms int64
		if err := rows.Scan(&ex.ID, &ex.Source, &ex.Mode, &ex.Intent, &ex.Lang,
			&ex.Question, &ex.Answer, &ex.Insufficient, &ms); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		ex.CreatedAt = time.UnixMilli(ms)
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return out, nil
}

// PutDocument registers d. Re-registering an ID keeps its original CreatedAt.
func (s *SQLiteStore) PutDocument(ctx context.Context, d Document) error {
	if d.ID == "" {
		return fmt.Errorf("store: document id is required")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	const q = `INSERT INTO documents (id, format, path, url, name, web_text, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    format = excluded.format, path = excluded.path, url = excluded.url,
    name = excluded.name, web_text = excluded.web_text`
	if _, err := s.db.ExecContext(ctx, q,
		d.ID, string(d.Format), d.Path, d.URL, d.Name, d.WebText, d.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("store: put document %s: %w", d.ID, err)
	}
	return nil
}

// Document returns the document registered under id.
func (s *SQLiteStore) Document(ctx context.Context, id string) (Document, error) {
	const q = `SELECT id, format, path, url, name, web_text, created_at FROM documents WHERE id = ?`
	var (
		d      Document
		format string
		ms     int64
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&d.ID, &format, &d.Path, &d.URL, &d.Name, &d.WebText, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("store: document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("store: document %s: %w", id, err)
	}
	d.Format = rag.Format(format)
	d.CreatedAt = time.UnixMilli(ms)
	return d, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
