package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/concierge-ai/concierge/internal/log"
	"github.com/concierge-ai/concierge/internal/profile"
	"github.com/concierge-ai/concierge/internal/prompt"
	"github.com/concierge-ai/concierge/internal/rag"
)

// MaxQueryLength bounds the query accepted by the assist endpoint.
const MaxQueryLength = 10000

// Assistant runs the retrieval-augmented pipeline for one query and
// audits store consistency.
type Assistant interface {
	Answer(ctx context.Context, userID, query string) (string, error)
	Reconcile(ctx context.Context, userID string) (rag.ReconcileReport, error)
}

// AssistHandler handles the assist and consistency endpoints.
type AssistHandler struct {
	assistant Assistant
	logger    log.Logger
}

// NewAssistHandler creates a new assist handler.
func NewAssistHandler(assistant Assistant, logger log.Logger) *AssistHandler {
	return &AssistHandler{assistant: assistant, logger: logger}
}

// RegisterRoutes registers assist routes on the given mux.
func (h *AssistHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/assist", h.assist)
	mux.HandleFunc("GET /api/users/{id}/consistency", h.consistency)
}

// AssistRequest is the request body for the assist endpoint.
type AssistRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

// AssistResponse is the assist endpoint response. Warning is set when
// the answer was generated but could not be fully persisted.
type AssistResponse struct {
	Response string `json:"response"`
	Warning  string `json:"warning,omitempty"`
}

// assist runs one query through the pipeline.
//
// Error mapping:
//   - unknown user          → 404
//   - malformed preferences → 422
//   - provider failure      → 502
//   - partial persistence   → 200 with a warning (the answer survives)
func (h *AssistHandler) assist(w http.ResponseWriter, r *http.Request) {
	var req AssistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.UserID == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "user_id and query are required")
		return
	}
	if len(req.Query) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_field", "query too long (max 10000 characters)")
		return
	}

	response, err := h.assistant.Answer(r.Context(), req.UserID, req.Query)
	if err != nil {
		var perr *rag.PersistError
		switch {
		case errors.Is(err, profile.ErrUnknownUser):
			writeError(w, http.StatusNotFound, "unknown_user", "user is not registered")
		case errors.Is(err, prompt.ErrMalformedPreferences):
			writeError(w, http.StatusUnprocessableEntity, "malformed_preferences", "stored preferences are unusable")
		case errors.As(err, &perr):
			// The answer was generated; surface it with a warning.
			writeJSON(w, http.StatusOK, AssistResponse{
				Response: response,
				Warning:  "response generated but not fully saved to history",
			})
		case errors.Is(err, rag.ErrProviderUnavailable):
			writeError(w, http.StatusBadGateway, "provider_unavailable", "assistant backend is unavailable")
		default:
			h.logger.Error("assist request failed", "user_id", req.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "assist request failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, AssistResponse{Response: response})
}

// ConsistencyResponse is the consistency audit response.
type ConsistencyResponse struct {
	UserID           string   `json:"user_id"`
	Consistent       bool     `json:"consistent"`
	LoggedTurns      int      `json:"logged_turns"`
	IndexedRecords   int      `json:"indexed_records"`
	MissingFromIndex []string `json:"missing_from_index"`
	MissingFromLog   []string `json:"missing_from_log"`
}

// consistency audits the relational log against the vector index for
// one user and reports any divergence. It never repairs.
func (h *AssistHandler) consistency(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	report, err := h.assistant.Reconcile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, rag.ErrProviderUnavailable) {
			writeError(w, http.StatusBadGateway, "provider_unavailable", "vector index is unavailable")
			return
		}
		h.logger.Error("consistency audit failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "consistency audit failed")
		return
	}

	missingIndex := report.MissingFromIndex
	if missingIndex == nil {
		missingIndex = []string{}
	}
	missingLog := report.MissingFromLog
	if missingLog == nil {
		missingLog = []string{}
	}
	writeJSON(w, http.StatusOK, ConsistencyResponse{
		UserID:           report.UserID,
		Consistent:       report.Consistent(),
		LoggedTurns:      report.LoggedTurns,
		IndexedRecords:   report.IndexedRecords,
		MissingFromIndex: missingIndex,
		MissingFromLog:   missingLog,
	})
}
