package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/concierge-ai/concierge/internal/conversation"
	"github.com/concierge-ai/concierge/internal/log"
	"github.com/concierge-ai/concierge/internal/profile"
)

// User validation constants.
const (
	MaxUserIDLength = 100
	MaxNameLength   = 200
)

// Registrar provides user profile registration and lookup.
type Registrar interface {
	AddUser(ctx context.Context, u profile.User) error
	GetUser(ctx context.Context, userID string) (profile.User, error)
}

// Historian lists the stored conversation turns for a user.
type Historian interface {
	ListTurns(ctx context.Context, userID string) ([]conversation.Turn, error)
}

// UserHandler handles user profile and history endpoints.
type UserHandler struct {
	store   Registrar
	history Historian
	logger  log.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(store Registrar, history Historian, logger log.Logger) *UserHandler {
	return &UserHandler{store: store, history: history, logger: logger}
}

// RegisterRoutes registers user routes on the given mux.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users", h.create)
	mux.HandleFunc("GET /api/users/{id}", h.get)
	if h.history != nil {
		mux.HandleFunc("GET /api/users/{id}/history", h.listHistory)
	}
}

// CreateUserRequest is the request body for registering a user.
type CreateUserRequest struct {
	UserID      string         `json:"user_id"`
	Name        string         `json:"name"`
	Preferences map[string]any `json:"preferences"`
}

// UserResponse is the JSON shape of a stored profile.
type UserResponse struct {
	UserID      string         `json:"user_id"`
	Name        string         `json:"name"`
	Preferences map[string]any `json:"preferences"`
}

// create registers a user profile. Registration is idempotent: repeating
// a user_id leaves the stored profile unchanged.
func (h *UserHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	if req.UserID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "user_id and name are required")
		return
	}
	if len(req.UserID) > MaxUserIDLength {
		writeError(w, http.StatusBadRequest, "invalid_field", "user_id too long (max 100 characters)")
		return
	}
	if len(req.Name) > MaxNameLength {
		writeError(w, http.StatusBadRequest, "invalid_field", "name too long (max 200 characters)")
		return
	}
	if req.Preferences == nil {
		req.Preferences = map[string]any{}
	}

	u := profile.User{ID: req.UserID, Name: req.Name, Preferences: req.Preferences}
	if err := h.store.AddUser(r.Context(), u); err != nil {
		h.logger.Error("failed to register user", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to register user")
		return
	}

	// The stored profile wins when the user already existed.
	stored, err := h.store.GetUser(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("failed to load registered user", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load user")
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{
		UserID:      stored.ID,
		Name:        stored.Name,
		Preferences: stored.Preferences,
	})
}

// get returns a stored user profile.
func (h *UserHandler) get(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	u, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, profile.ErrUnknownUser) {
			writeError(w, http.StatusNotFound, "unknown_user", "user is not registered")
			return
		}
		h.logger.Error("failed to load user", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{UserID: u.ID, Name: u.Name, Preferences: u.Preferences})
}

// TurnResponse is the JSON shape of one stored conversation turn.
type TurnResponse struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
}

// listHistory returns the full conversation history for a user in
// chronological order.
func (h *UserHandler) listHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	// 404 for unregistered users rather than an empty history.
	if _, err := h.store.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, profile.ErrUnknownUser) {
			writeError(w, http.StatusNotFound, "unknown_user", "user is not registered")
			return
		}
		h.logger.Error("failed to load user", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load user")
		return
	}

	turns, err := h.history.ListTurns(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list turns", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list history")
		return
	}

	out := make([]TurnResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, TurnResponse{
			ID:        t.ID,
			Timestamp: t.Timestamp,
			Query:     t.Query(),
			Response:  t.Response(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"turns":   out,
		"total":   len(out),
	})
}
