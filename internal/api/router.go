package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/callcoach/internal/conversation"
	"github.com/kalambet/callcoach/internal/feedback"
	"github.com/kalambet/callcoach/internal/session"
)

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Sessions *session.Registry
	History  conversation.Store
	Lookup   conversation.Lookup
	Feedback feedback.Reader

	StaticDir      string
	AllowedOrigins []string
	// AdminToken protects /admin when non-empty.
	AdminToken string

	WS     WSConfig
	Logger *slog.Logger
}

// NewRouter builds the service's HTTP handler.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/", handleIndex(deps.StaticDir))
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(deps.StaticDir))))
	r.Get("/health", handleHealth)
	r.Get("/ws/{session_id}", newWSHandler(deps).ServeHTTP)

	r.Route("/admin", func(r chi.Router) {
		if deps.AdminToken != "" {
			r.Use(BearerAuth(deps.AdminToken))
		}
		r.Get("/sessions", handleListSessions(deps))
		r.Delete("/sessions/{session_id}", handleCloseSession(deps))
		r.Get("/sessions/{session_id}/history", handleSessionHistory(deps))
		r.Get("/responses/{response_id}", handleLookupResponse(deps))
		r.Get("/feedback", handleListFeedback(deps))
		r.Get("/feedback/summary", handleFeedbackSummary(deps))
	})

	return r
}

func handleIndex(staticDir string) http.HandlerFunc {
	index := filepath.Join(staticDir, "index.html")
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, index)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
