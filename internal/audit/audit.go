// Package audit logs every docqa command invocation with the settings it
// resolved, so operators can tell which provider, index backend and
// translator a run used. Secret values are never logged; only whether they
// are set.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// redaction says how an env value is rendered in the audit entry.
type redaction int

const (
	// plain values are logged as-is.
	plain redaction = iota
	// secret values are logged as "set" or "unset".
	secret
	// dsn values are logged with any password removed.
	dsn
)

// auditEntry defines an env var to include in the audit log.
type auditEntry struct {
	key    string
	redact redaction
}

// auditKeys is the ordered list of env vars included in every audit log entry.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", plain},
	{"OLLAMA_HOST", plain},
	{"OLLAMA_MODEL", plain},
	{"OPENAI_API_KEY", secret},
	{"OPENAI_MODEL", plain},
	{"AZURE_OPENAI_API_KEY", secret},
	{"AZURE_OPENAI_ENDPOINT", plain},
	{"AZURE_OPENAI_DEPLOYMENT", plain},
	{"GOOGLE_API_KEY", secret},
	{"GEMINI_MODEL", plain},
	{"ARK_API_KEY", secret},
	{"ARK_MODEL", plain},
	{"EMBEDDING_PROVIDER", plain},
	{"EMBEDDING_MODEL", plain},
	{"EMBEDDING_API_KEY", secret},
	{"CHUNK_SIZE", plain},
	{"CHUNK_OVERLAP", plain},
	{"RETRIEVAL_STRATEGY", plain},
	{"RETRIEVAL_K", plain},
	{"INDEX_BACKEND", plain},
	{"INDEX_DIR", plain},
	{"INDEX_STALE_CHECK", plain},
	{"QDRANT_HOST", plain},
	{"QDRANT_PORT", plain},
	{"QDRANT_API_KEY", secret},
	{"DATABASE_URL", dsn},
	{"TRANSLATE_PROVIDER", plain},
	{"GOOGLE_TRANSLATE_API_KEY", secret},
	{"DOCQA_API_KEY", secret},
	{"DOCQA_HISTORY_DB", plain},
	{"LOG_LEVEL", plain},
	{"LOG_FORMAT", plain},
	{"LANGFUSE_PUBLIC_KEY", secret},
	{"LANGFUSE_SECRET_KEY", secret},
}

// redactions indexes auditKeys by name for SanitiseKey.
var redactions = func() map[string]redaction {
	m := make(map[string]redaction, len(auditKeys))
	for _, e := range auditKeys {
		m[e.key] = e.redact
	}
	return m
}()

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised environment.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, e := range auditKeys {
		attrs = append(attrs, slog.String(e.key, render(e.redact, os.Getenv(e.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns the loggable form of value for the env var key:
// "set"/"unset" for secrets, a password-free DSN for connection strings,
// and the value itself otherwise.
func SanitiseKey(key, value string) string {
	return render(redactions[key], value)
}

func render(r redaction, v string) string {
	switch r {
	case secret:
		return presence(v)
	case dsn:
		return redactDSN(v)
	default:
		return valOrUnset(v)
	}
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// redactDSN strips the password from a URL-form connection string. Values
// that do not parse as a URL with a host are reduced to presence.
func redactDSN(v string) string {
	if v == "" {
		return "unset"
	}
	u, err := url.Parse(v)
	if err != nil || u.Host == "" {
		return "set"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.Redacted()
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
