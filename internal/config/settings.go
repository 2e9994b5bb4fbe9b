package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Settings is the resolved, typed view of the docqa environment. Provider
// and embedder settings are resolved by their own packages; Settings covers
// everything else the commands need.
type Settings struct {
	ChunkSize    int
	ChunkOverlap int

	RetrievalStrategy string
	RetrievalK        int
	RetrievalFetchK   int
	ScoreThreshold    float32
	MMRLambda         float32

	IndexBackend    string
	IndexDir        string
	IndexSQLitePath string
	StaleCheck      bool
	QdrantHost      string
	QdrantPort      int
	QdrantPrefix    string
	QdrantAPIKey    string
	QdrantTLS       bool
	PostgresDSN     string

	GenerationTimeout time.Duration
	MaxPromptTokens   int
	TokenEncoding     string

	TranslateProvider     string
	GoogleTranslateAPIKey string

	UploadDir        string
	DocumentMaxBytes int64
	WebTimeout       time.Duration

	ServerHost string
	ServerPort int
	APIKey     string
	RateLimit  float64
	RateBurst  int

	// HistoryDB is the exchange log path, or "disabled".
	HistoryDB string
}

// HistoryDisabled is the HistoryDB value that turns the exchange log off.
const HistoryDisabled = "disabled"

// Resolve reads Settings from the environment, applying defaults for unset
// keys. Malformed values fail with rag.ErrConfiguration naming the variable.
func Resolve() (Settings, error) {
	home := DataDir()
	p := &parser{}

	s := Settings{
		ChunkSize:    p.asInt("CHUNK_SIZE", 1000),
		ChunkOverlap: p.asInt("CHUNK_OVERLAP", 200),

		RetrievalStrategy: envOr("RETRIEVAL_STRATEGY", "similarity"),
		RetrievalK:        p.asInt("RETRIEVAL_K", 6),
		RetrievalFetchK:   p.asInt("RETRIEVAL_FETCH_K", 20),
		ScoreThreshold:    p.asFloat32("RETRIEVAL_SCORE_THRESHOLD", 0.5),
		MMRLambda:         p.asFloat32("RETRIEVAL_MMR_LAMBDA", 0.5),

		IndexBackend:    strings.ToLower(envOr("INDEX_BACKEND", "file")),
		IndexDir:        envOr("INDEX_DIR", filepath.Join(home, "indexes")),
		IndexSQLitePath: envOr("INDEX_SQLITE_PATH", filepath.Join(home, "indexes.db")),
		StaleCheck:      p.asBool("INDEX_STALE_CHECK", true),
		QdrantHost:      envOr("QDRANT_HOST", "localhost"),
		QdrantPort:      p.asInt("QDRANT_PORT", 6334),
		QdrantPrefix:    envOr("QDRANT_PREFIX", "docqa"),
		QdrantAPIKey:    os.Getenv("QDRANT_API_KEY"),
		QdrantTLS:       p.asBool("QDRANT_TLS", false),
		PostgresDSN:     os.Getenv("DATABASE_URL"),

		GenerationTimeout: p.asDuration("GENERATION_TIMEOUT", 120*time.Second),
		MaxPromptTokens:   p.asInt("MAX_PROMPT_TOKENS", 6000),
		TokenEncoding:     envOr("TOKEN_ENCODING", "cl100k_base"),

		TranslateProvider:     strings.ToLower(envOr("TRANSLATE_PROVIDER", "llm")),
		GoogleTranslateAPIKey: os.Getenv("GOOGLE_TRANSLATE_API_KEY"),

		UploadDir:        envOr("DOCQA_UPLOAD_DIR", filepath.Join(home, "uploads")),
		DocumentMaxBytes: p.asInt64("DOCUMENT_MAX_BYTES", 50<<20),
		WebTimeout:       p.asDuration("WEB_FETCH_TIMEOUT", 30*time.Second),

		ServerHost: envOr("DOCQA_HOST", "127.0.0.1"),
		ServerPort: p.asInt("DOCQA_PORT", 8080),
		APIKey:     os.Getenv("DOCQA_API_KEY"),
		RateLimit:  p.asFloat64("DOCQA_RATE_LIMIT", 10),
		RateBurst:  p.asInt("DOCQA_RATE_BURST", 20),

		HistoryDB: envOr("DOCQA_HISTORY_DB", filepath.Join(home, "history.db")),
	}
	if p.err != nil {
		return Settings{}, p.err
	}
	if s.IndexBackend == "pgvector" && s.PostgresDSN == "" {
		return Settings{}, fmt.Errorf("config: DATABASE_URL is required for the pgvector index backend: %w", rag.ErrConfiguration)
	}
	return s, nil
}

// DataDir returns ~/.docqa, or .docqa in the working directory when the home
// directory cannot be determined.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docqa"
	}
	return filepath.Join(home, ".docqa")
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parser reads typed env values and keeps the first error.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s=%q: %v: %w", key, raw, err, rag.ErrConfiguration)
	}
}

func (p *parser) asInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) asInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) asFloat64(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) asFloat32(key string, def float32) float32 {
	return float32(p.asFloat64(key, float64(def)))
}

func (p *parser) asBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) asDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}
