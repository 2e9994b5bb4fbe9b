package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/logging"
)

// handleAsk handles POST /api/ask. The question is translated to English,
// answered against the source document (or globally), and the reply is
// translated back before it is returned as JSON.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.checkRequest(ctx, w, &req) {
		return
	}

	s.metrics.askInFlight.Inc()
	defer s.metrics.askInFlight.Dec()
	start := time.Now()

	reply, err := s.assistant.Ask(ctx, agent.Question{
		Text:       req.Question,
		Lang:       req.Lang,
		DocumentID: req.Source,
	})
	if err != nil {
		outcome := "error"
		if statusFor(err) == http.StatusGatewayTimeout {
			outcome = "timeout"
		}
		s.metrics.observeAsk(outcome, "", time.Since(start))
		writeError(ctx, w, err)
		return
	}

	outcome := "ok"
	if reply.Insufficient {
		outcome = "insufficient"
	}
	s.metrics.observeAsk(outcome, reply.Mode.String(), time.Since(start))
	logging.FromContext(ctx).Info("question answered",
		slog.String("source", req.Source),
		slog.String("lang", reply.Lang),
		slog.String("mode", reply.Mode.String()),
		slog.Int("grounding", len(reply.Grounding)),
	)
	writeJSON(ctx, w, http.StatusOK, reply)
}
