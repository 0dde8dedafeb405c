package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-ai/concierge/internal/log"
	"github.com/concierge-ai/concierge/internal/profile"
	"github.com/concierge-ai/concierge/internal/prompt"
	"github.com/concierge-ai/concierge/internal/rag"
)

// stubAssistant returns canned results per call.
type stubAssistant struct {
	response string
	err      error

	report       rag.ReconcileReport
	reconcileErr error
}

func (s *stubAssistant) Answer(context.Context, string, string) (string, error) {
	return s.response, s.err
}

func (s *stubAssistant) Reconcile(context.Context, string) (rag.ReconcileReport, error) {
	return s.report, s.reconcileErr
}

func newAssistServer(t *testing.T, assistant Assistant) http.Handler {
	t.Helper()
	return NewServer(assistant, nil, nil, nil, log.NewNop()).Handler()
}

func TestAssist_Success(t *testing.T) {
	handler := newAssistServer(t, &stubAssistant{response: "Try a green curry."})

	w := postJSON(t, handler, "/api/assist", AssistRequest{UserID: "u1", Query: "dinner?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp AssistResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Try a green curry.", resp.Response)
	assert.Empty(t, resp.Warning)
}

func TestAssist_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown user",
			err:        fmt.Errorf("%w: %q", profile.ErrUnknownUser, "u1"),
			wantStatus: http.StatusNotFound,
			wantCode:   "unknown_user",
		},
		{
			name:       "malformed preferences",
			err:        fmt.Errorf("%w: dietary_requirements is not a list", prompt.ErrMalformedPreferences),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "malformed_preferences",
		},
		{
			name:       "provider unavailable",
			err:        fmt.Errorf("%w: HTTP 500", rag.ErrProviderUnavailable),
			wantStatus: http.StatusBadGateway,
			wantCode:   "provider_unavailable",
		},
		{
			name:       "unexpected error",
			err:        errors.New("disk on fire"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newAssistServer(t, &stubAssistant{err: tt.err})

			w := postJSON(t, handler, "/api/assist", AssistRequest{UserID: "u1", Query: "q"})
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error)
		})
	}
}

func TestAssist_PartialPersist_ReturnsResponseWithWarning(t *testing.T) {
	assistant := &stubAssistant{
		response: "Try a green curry.",
		err: &rag.PersistError{
			TurnID:     "t1",
			LogWritten: true,
			Err:        errors.New("index write refused"),
		},
	}
	handler := newAssistServer(t, assistant)

	w := postJSON(t, handler, "/api/assist", AssistRequest{UserID: "u1", Query: "dinner?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp AssistResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Try a green curry.", resp.Response)
	assert.NotEmpty(t, resp.Warning)
}

func TestAssist_Validation(t *testing.T) {
	handler := newAssistServer(t, &stubAssistant{response: "ok"})

	tests := []struct {
		name string
		req  AssistRequest
	}{
		{"missing user_id", AssistRequest{Query: "q"}},
		{"missing query", AssistRequest{UserID: "u1"}},
		{"query too long", AssistRequest{UserID: "u1", Query: strings.Repeat("x", MaxQueryLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, handler, "/api/assist", tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/assist", bytes.NewReader([]byte("not json")))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestConsistency_Endpoint(t *testing.T) {
	assistant := &stubAssistant{
		report: rag.ReconcileReport{
			UserID:           "u1",
			LoggedTurns:      2,
			IndexedRecords:   1,
			MissingFromIndex: []string{"t2"},
		},
	}
	handler := newAssistServer(t, assistant)

	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/consistency", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ConsistencyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.False(t, resp.Consistent)
	assert.Equal(t, 2, resp.LoggedTurns)
	assert.Equal(t, []string{"t2"}, resp.MissingFromIndex)
	assert.Empty(t, resp.MissingFromLog)
}

func TestConsistency_IndexUnavailable(t *testing.T) {
	assistant := &stubAssistant{
		reconcileErr: fmt.Errorf("%w: connection refused", rag.ErrProviderUnavailable),
	}
	handler := newAssistServer(t, assistant)

	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/consistency", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
