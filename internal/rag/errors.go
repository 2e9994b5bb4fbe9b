package rag

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Callers match them with errors.Is; producers wrap them with
// %w so the underlying cause stays available.
var (
	// ErrConfiguration reports an invalid deployment setting, such as a chunk
	// overlap that is not smaller than the chunk size. Fatal at startup.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrUnsupportedFormat reports a document whose format cannot be loaded.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrDocumentLoad reports a document that could not be read or parsed.
	ErrDocumentLoad = errors.New("document load failed")

	// ErrEmptyDocument reports a document that yielded no extractable text.
	ErrEmptyDocument = errors.New("document has no extractable content")

	// ErrIndexNotFound is returned by index stores when nothing is persisted
	// under the requested identifier.
	ErrIndexNotFound = errors.New("index not found")
)

// EmbeddingProviderError wraps a failure of the embedding capability.
type EmbeddingProviderError struct {
	// Provider names the embedding backend.
	Provider string
	// Err is the underlying failure.
	Err error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error { return e.Err }

// GenerationProviderError wraps a failure of the generation capability
// (rate limit, auth, malformed response).
type GenerationProviderError struct {
	// Provider names the generation backend.
	Provider string
	// Err is the underlying failure.
	Err error
}

func (e *GenerationProviderError) Error() string {
	return fmt.Sprintf("generation provider %s: %v", e.Provider, e.Err)
}

func (e *GenerationProviderError) Unwrap() error { return e.Err }

// GenerationTimeoutError reports a generator call that exceeded its deadline.
// It is always retryable.
type GenerationTimeoutError struct {
	// Provider names the generation backend.
	Provider string
	// Timeout is the deadline that was exceeded.
	Timeout time.Duration
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("generation provider %s: no reply within %s", e.Provider, e.Timeout)
}

// Retryable reports that the call may succeed if repeated.
func (e *GenerationTimeoutError) Retryable() bool { return true }

// Retryable reports whether err is worth retrying with backoff. Provider
// failures and timeouts are; configuration and input errors are not.
func Retryable(err error) bool {
	var timeout *GenerationTimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var gen *GenerationProviderError
	if errors.As(err, &gen) {
		return true
	}
	var emb *EmbeddingProviderError
	return errors.As(err, &emb)
}
