package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/callcoach/internal/conversation"
	"github.com/kalambet/callcoach/internal/feedback"
	"github.com/kalambet/callcoach/internal/session"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// SessionsResponse is returned by GET /admin/sessions.
type SessionsResponse struct {
	Count    int                   `json:"count"`
	Sessions []session.SessionInfo `json:"sessions"`
}

// HistoryResponse is returned by GET /admin/sessions/{id}/history.
type HistoryResponse struct {
	SessionID string                  `json:"session_id"`
	Exchanges []conversation.Exchange `json:"exchanges"`
}

// ResponseLookup is returned by GET /admin/responses/{id}.
type ResponseLookup struct {
	SessionID string                `json:"session_id"`
	Exchange  conversation.Exchange `json:"exchange"`
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := deps.Sessions.Sessions()
		writeJSON(w, http.StatusOK, SessionsResponse{Count: len(list), Sessions: list})
	}
}

// handleCloseSession detaches and closes the session's live connection.
// History is kept.
func handleCloseSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Sessions.Unbind(chi.URLParam(r, "session_id")) {
			httpError(w, http.StatusNotFound, "not_found", "session is not bound")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSessionHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "session_id")
		limit := parseIntParam(r, "limit", defaultListLimit, maxListLimit)

		hist, err := deps.History.History(r.Context(), id, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read history: %v", err)
			return
		}
		if hist == nil {
			hist = []conversation.Exchange{}
		}
		writeJSON(w, http.StatusOK, HistoryResponse{SessionID: id, Exchanges: hist})
	}
}

func handleLookupResponse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Lookup == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "response lookup is not available")
			return
		}
		id := chi.URLParam(r, "response_id")

		sid, ex, err := deps.Lookup.ExchangeByResponseID(r.Context(), id)
		if errors.Is(err, conversation.ErrUnknownResponse) {
			httpError(w, http.StatusNotFound, "not_found", "response not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to look up response: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, ResponseLookup{SessionID: sid, Exchange: ex})
	}
}

func handleListFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultListLimit, maxListLimit)

		records, err := deps.Feedback.ListFeedback(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list feedback: %v", err)
			return
		}
		if records == nil {
			records = []feedback.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleFeedbackSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := deps.Feedback.FeedbackSummary(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to summarise feedback: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
