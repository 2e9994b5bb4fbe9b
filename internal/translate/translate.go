// Package translate converts questions into English before they reach the
// pipeline and converts answers back into the asker's language.
//
// Backends implement Translator. Service wraps a backend with the rules
// every caller needs: language codes are validated and canonicalised, and
// text is passed through untouched when no translation is required.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const (
	// English is the working language of the pipeline.
	English = "en"
	// Auto asks the backend to detect the source language.
	Auto = "auto"
)

var (
	// ErrUnsupportedLanguage reports a language code that cannot be parsed.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrTranslation reports a backend failure.
	ErrTranslation = errors.New("translation failed")
)

// Translator translates text between two languages. source may be Auto.
// Implementations must be safe for concurrent use.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Passthrough returns text unchanged. It is the backend when translation is
// disabled.
type Passthrough struct{}

// Translate implements Translator.
func (Passthrough) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

// Service applies passthrough rules around a Translator backend.
type Service struct {
	backend Translator
	logger  *slog.Logger
}

// NewService wraps backend. A nil backend behaves like Passthrough.
func NewService(backend Translator, logger *slog.Logger) *Service {
	if backend == nil {
		backend = Passthrough{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, logger: logger}
}

// ParseLang canonicalises a BCP 47 language code. Empty input means English;
// "auto" is kept as is.
func ParseLang(code string) (string, error) {
	code = strings.TrimSpace(code)
	switch strings.ToLower(code) {
	case "":
		return English, nil
	case Auto:
		return Auto, nil
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("translate: %q: %w", code, ErrUnsupportedLanguage)
	}
	return tag.String(), nil
}

// Name returns the English display name of a language code, or the code
// itself when it has none.
func Name(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if n := display.English.Languages().Name(tag); n != "" {
		return n
	}
	return code
}

// IsEnglish reports whether code denotes English in any region.
func IsEnglish(code string) bool {
	return sameLanguage(code, English)
}

// ToEnglish translates text written in lang into English.
func (s *Service) ToEnglish(ctx context.Context, text, lang string) (string, error) {
	return s.Translate(ctx, text, lang, English)
}

// FromEnglish translates English text into lang.
func (s *Service) FromEnglish(ctx context.Context, text, lang string) (string, error) {
	return s.Translate(ctx, text, English, lang)
}

// Translate translates text from source to target, skipping the backend when
// the text is blank or both languages are the same.
func (s *Service) Translate(ctx context.Context, text, source, target string) (string, error) {
	src, err := ParseLang(source)
	if err != nil {
		return "", err
	}
	dst, err := ParseLang(target)
	if err != nil {
		return "", err
	}
	if dst == Auto {
		return "", fmt.Errorf("translate: target language cannot be %q: %w", Auto, ErrUnsupportedLanguage)
	}
	if strings.TrimSpace(text) == "" || sameLanguage(src, dst) {
		return text, nil
	}

	out, err := s.backend.Translate(ctx, text, src, dst)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("translate: %w", ctx.Err())
		}
		return "", fmt.Errorf("translate: %s to %s: %w: %w", src, dst, ErrTranslation, err)
	}
	s.logger.Debug("translated", "source", src, "target", dst, "chars", len(text))
	return out, nil
}

// sameLanguage compares the base languages of two codes, so "en" and "en-GB"
// match. Auto never matches.
func sameLanguage(a, b string) bool {
	if a == Auto || b == Auto {
		return false
	}
	ta, err := language.Parse(a)
	if err != nil {
		return false
	}
	tb, err := language.Parse(b)
	if err != nil {
		return false
	}
	ba, _ := ta.Base()
	bb, _ := tb.Base()
	return ba == bb
}
