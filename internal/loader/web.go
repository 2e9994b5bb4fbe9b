package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/54b3r/docqa-go/internal/rag"
)

// WebConfig holds the configuration for a Fetcher.
type WebConfig struct {
	// Timeout bounds each page fetch. Defaults to 30s if zero.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBytes caps the response body size. Defaults to DefaultMaxBytes.
	MaxBytes int64
}

// Fetcher downloads a web page with a single GET and reduces it to text.
type Fetcher struct {
	// cfg holds the resolved configuration.
	cfg WebConfig

	// httpClient is the client used for page requests.
	httpClient *http.Client
}

// NewFetcher returns a Fetcher with defaults applied to cfg.
func NewFetcher(cfg WebConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docqa/1.0 (document question answering)"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Fetcher{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// Fetch retrieves rawURL and returns a web reference holding its text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (rag.DocumentRef, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return rag.DocumentRef{}, fmt.Errorf("loader: %q is not an http(s) URL: %w", rawURL, rag.ErrDocumentLoad)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return rag.DocumentRef{}, loadErr(rawURL, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html, text/plain;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return rag.DocumentRef{}, loadErr(rawURL, fmt.Errorf("http get: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rag.DocumentRef{}, loadErr(rawURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body := io.LimitReader(resp.Body, f.cfg.MaxBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	var text string
	switch {
	case mediaType == "text/plain":
		b, err := io.ReadAll(body)
		if err != nil {
			return rag.DocumentRef{}, loadErr(rawURL, fmt.Errorf("reading body: %w", err))
		}
		text, _ = extractText(ctx, b)
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		text, err = HTMLText(body)
		if err != nil {
			return rag.DocumentRef{}, loadErr(rawURL, err)
		}
	default:
		return rag.DocumentRef{}, fmt.Errorf("loader: %s: %w: content type %q", rawURL, rag.ErrUnsupportedFormat, mediaType)
	}

	if strings.TrimSpace(text) == "" {
		return rag.DocumentRef{}, fmt.Errorf("loader: %s: %w", rawURL, rag.ErrEmptyDocument)
	}
	return rag.WebRef(u.String(), text), nil
}

// skipped elements contribute no text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Title:    true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Iframe:   true,
}

// block elements start and end on their own line.
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Tr: true, atom.Td: true, atom.Th: true, atom.Blockquote: true,
	atom.Pre: true, atom.Table: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Main: true, atom.Nav: true,
	atom.Ul: true, atom.Ol: true, atom.Dd: true, atom.Dt: true, atom.Figcaption: true,
}

// HTMLText returns the visible text of an HTML document, one block element
// per line.
func HTMLText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var (
		sb   strings.Builder
		skip int
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("html: %w", err)
			}
			return tidy(sb.String()), nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] {
				if tt == html.StartTagToken {
					skip++
				}
				continue
			}
			if block[a] {
				sb.WriteByte('\n')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if block[a] {
				sb.WriteByte('\n')
			}

		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}
