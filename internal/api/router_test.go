package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/callcoach/internal/conversation"
	"github.com/kalambet/callcoach/internal/feedback"
	"github.com/kalambet/callcoach/internal/session"
)

func newTestDeps(t *testing.T) (Deps, *conversation.MemoryStore, *feedback.Recorder) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>coach</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('hi')"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := conversation.NewMemoryStore()
	rec := feedback.NewRecorder(nil, 0)
	return Deps{
		Sessions:  session.NewRegistry(nil, rec, nil),
		History:   store,
		Lookup:    store,
		Feedback:  rec,
		StaticDir: dir,
	}, store, rec
}

func doGet(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	rec := doGet(t, NewRouter(deps), "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}

func TestIndexAndStatic(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	h := NewRouter(deps)

	rec := doGet(t, h, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "coach") {
		t.Errorf("GET / = %d %q", rec.Code, rec.Body.String())
	}

	rec = doGet(t, h, "/static/app.js", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "console.log") {
		t.Errorf("GET /static/app.js = %d %q", rec.Code, rec.Body.String())
	}

	rec = doGet(t, h, "/static/missing.js", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /static/missing.js = %d, want 404", rec.Code)
	}
}

func TestAdmin_RequiresTokenWhenConfigured(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	deps.AdminToken = "s3cret"
	h := NewRouter(deps)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", "s3cret", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doGet(t, h, "/admin/sessions", tc.token)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	// Health stays open.
	if rec := doGet(t, h, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestAdmin_OpenWithoutToken(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	if rec := doGet(t, NewRouter(deps), "/admin/feedback/summary", ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAdmin_Sessions(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	deps.Sessions.Bind("call-2", nopChannel{})
	deps.Sessions.Bind("call-1", nopChannel{})

	rec := doGet(t, NewRouter(deps), "/admin/sessions", "")
	var got SessionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if got.Count != 2 || got.Sessions[0].ID != "call-1" {
		t.Errorf("sessions = %+v", got)
	}
}

func TestAdmin_History(t *testing.T) {
	deps, store, _ := newTestDeps(t)
	seedExchanges(t, store, "call-1", 4)
	h := NewRouter(deps)

	rec := doGet(t, h, "/admin/sessions/call-1/history?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got HistoryResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(got.Exchanges) != 2 || got.Exchanges[1].Transcript != "turn d" {
		t.Errorf("history = %+v", got)
	}

	// Bad limit falls back to the default window.
	rec = doGet(t, h, "/admin/sessions/call-1/history?limit=abc", "")
	got = HistoryResponse{}
	json.NewDecoder(rec.Body).Decode(&got)
	if len(got.Exchanges) != 4 {
		t.Errorf("exchanges = %d, want 4", len(got.Exchanges))
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, string, conversation.Exchange) error {
	return errors.New("disk gone")
}

func (failingStore) History(context.Context, string, int) ([]conversation.Exchange, error) {
	return nil, errors.New("disk gone")
}

func TestAdmin_HistoryStoreError(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	deps.History = failingStore{}

	rec := doGet(t, NewRouter(deps), "/admin/sessions/x/history", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error.Type != "api_error" || !strings.Contains(body.Error.Message, "disk gone") {
		t.Errorf("error body = %+v", body)
	}
}

func TestAdmin_LookupResponse(t *testing.T) {
	deps, store, _ := newTestDeps(t)
	seedExchanges(t, store, "call-9", 1)
	h := NewRouter(deps)

	rec := doGet(t, h, "/admin/responses/call-9-ra", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got ResponseLookup
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if got.SessionID != "call-9" || got.Exchange.Response != "reply a" {
		t.Errorf("lookup = %+v", got)
	}

	if rec := doGet(t, h, "/admin/responses/unknown", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
}

func TestAdmin_Feedback(t *testing.T) {
	deps, _, fb := newTestDeps(t)
	fb.Record(feedback.Record{SessionID: "s", ResponseID: "r1", Helpful: true})
	fb.Record(feedback.Record{SessionID: "s", ResponseID: "r2"})
	h := NewRouter(deps)

	rec := doGet(t, h, "/admin/feedback?limit=1", "")
	var list []feedback.Record
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 || list[0].ResponseID != "r2" {
		t.Errorf("list = %+v", list)
	}

	rec = doGet(t, h, "/admin/feedback/summary", "")
	var sum feedback.Summary
	if err := json.NewDecoder(rec.Body).Decode(&sum); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if sum != (feedback.Summary{Total: 2, Helpful: 1, NotHelpful: 1}) {
		t.Errorf("summary = %+v", sum)
	}
}

func TestAdmin_ZeroLimitUsesDefault(t *testing.T) {
	deps, store, _ := newTestDeps(t)
	seedExchanges(t, store, "call-1", defaultListLimit+5)

	rec := doGet(t, NewRouter(deps), "/admin/sessions/call-1/history?limit=0", "")
	var got HistoryResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(got.Exchanges) != defaultListLimit {
		t.Errorf("exchanges = %d, want %d", len(got.Exchanges), defaultListLimit)
	}
}

func TestAdmin_CloseSession(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	ch := &closeTracker{}
	deps.Sessions.Bind("call-9", ch)
	h := NewRouter(deps)

	del := func() int {
		req := httptest.NewRequest(http.MethodDelete, "/admin/sessions/call-9", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := del(); code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", code)
	}
	if !ch.closed || deps.Sessions.Count() != 0 {
		t.Errorf("closed = %v, bound = %d", ch.closed, deps.Sessions.Count())
	}
	if code := del(); code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", code)
	}
}

type closeTracker struct {
	nopChannel
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=0", 20},
		{"limit=-1", 20},
		{"limit=x", 20},
		{"limit=9999", 500},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil)
		if got := parseIntParam(r, "limit", 20, 500); got != tc.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tc.query, got, tc.want)
		}
	}
}
