package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/translate"
)

// statusFor maps a session or pipeline error to its HTTP status code.
func statusFor(err error) int {
	var (
		timeout  *rag.GenerationTimeoutError
		genErr   *rag.GenerationProviderError
		embedErr *rag.EmbeddingProviderError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, agent.ErrEmptyQuestion),
		errors.Is(err, translate.ErrUnsupportedLanguage):
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrUnknownDocument),
		errors.Is(err, rag.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrUnsupportedFormat),
		errors.Is(err, rag.ErrDocumentLoad),
		errors.Is(err, rag.ErrEmptyDocument):
		return http.StatusUnprocessableEntity
	case errors.As(err, &timeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &genErr),
		errors.As(err, &embedErr),
		errors.Is(err, translate.ErrTranslation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it with the status statusFor assigns.
// Internal errors are not echoed to the client.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	log := logging.FromContext(ctx)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", slog.Any("error", err))
		msg = "internal error"
	} else {
		log.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	if rag.Retryable(err) {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONError(ctx, w, status, msg)
}

// validationFields collapses validator errors into field -> rule.
func validationFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		out[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return out
}

// checkRequest validates v and writes a 400 with per-field reasons when it
// fails. It reports whether the request may proceed.
func (s *Server) checkRequest(ctx context.Context, w http.ResponseWriter, v any) bool {
	if err := s.validate.Struct(v); err != nil {
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
			Error:  "invalid request",
			Fields: validationFields(err),
		})
		return false
	}
	return true
}
