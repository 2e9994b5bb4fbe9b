package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/store"
)

const (
	// defaultHistoryLimit is used when GET /api/history has no limit.
	defaultHistoryLimit = 20
	// maxHistoryLimit caps the limit query parameter.
	maxHistoryLimit = 200
)

// handleUpload handles POST /api/documents. The multipart field "file" is
// stored under a fresh name and indexed. With ?wait=true the response is
// sent once the index is ready (201); otherwise ingestion continues in the
// background and the response is 202 with the current status.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(ctx, w, err)
			return
		}
		writeJSONError(ctx, w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	doc, err := s.assistant.SaveUpload(ctx, header.Filename, file)
	if err != nil {
		s.metrics.uploadsTotal.WithLabelValues("error").Inc()
		writeError(ctx, w, err)
		return
	}
	s.metrics.uploadsTotal.WithLabelValues("ok").Inc()
	s.respondIngest(w, r, doc)
}

// handleWeb handles POST /api/documents/web with a URL to fetch or text the
// caller already extracted. Ingestion follows the same rules as uploads.
func (s *Server) handleWeb(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req webRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.checkRequest(ctx, w, &req) {
		return
	}

	doc, err := s.assistant.AddWeb(ctx, req.URL, req.Text)
	if err != nil {
		s.metrics.uploadsTotal.WithLabelValues("error").Inc()
		writeError(ctx, w, err)
		return
	}
	s.metrics.uploadsTotal.WithLabelValues("ok").Inc()
	s.respondIngest(w, r, doc)
}

// respondIngest starts or awaits ingestion of a freshly registered document
// and writes its status.
func (s *Server) respondIngest(w http.ResponseWriter, r *http.Request, doc store.Document) {
	ctx := r.Context()
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		if err := s.assistant.Ingest(ctx, doc.ID); err != nil {
			writeError(ctx, w, err)
			return
		}
		s.writeStatus(ctx, w, http.StatusCreated, doc.ID)
		return
	}

	s.ingestInBackground(ctx, doc.ID)
	s.writeStatus(ctx, w, http.StatusAccepted, doc.ID)
}

// ingestInBackground indexes id after the request has returned. The build is
// detached from the request context but keeps its logger.
func (s *Server) ingestInBackground(ctx context.Context, id string) {
	bg := context.WithoutCancel(ctx)
	log := logging.FromContext(ctx).With(slog.String("identifier", id))
	s.background.Add(1)
	s.metrics.ingestInFlight.Inc()
	go func() {
		defer s.background.Done()
		defer s.metrics.ingestInFlight.Dec()
		if err := s.assistant.Ingest(bg, id); err != nil {
			log.Warn("background ingestion failed", slog.Any("error", err))
			return
		}
		log.Info("background ingestion finished")
	}()
}

// handleDocument handles GET /api/documents/{id}.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(r.Context(), w, http.StatusOK, r.PathValue("id"))
}

// handleIngest handles POST /api/documents/{id}/ingest. It blocks until the
// index is ready or the build fails; a failed document can be retried here.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.assistant.Ingest(ctx, id); err != nil {
		writeError(ctx, w, err)
		return
	}
	s.writeStatus(ctx, w, http.StatusOK, id)
}

func (s *Server) writeStatus(ctx context.Context, w http.ResponseWriter, code int, id string) {
	st, err := s.assistant.Status(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, code, st)
}

// handleHistory handles GET /api/history?source=&limit=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := defaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONError(ctx, w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	source := q.Get("source")
	exchanges, err := s.assistant.History(ctx, source, limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, historyResponse{Source: source, Exchanges: exchanges})
}
