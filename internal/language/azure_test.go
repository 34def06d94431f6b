package language

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func decodeTexts(t *testing.T, r *http.Request) []textItem {
	t.Helper()
	var items []textItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		t.Errorf("decoding request body: %v", err)
	}
	return items
}

func TestAzureDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("path = %q, want /detect", r.URL.Path)
		}
		if got := r.URL.Query().Get("api-version"); got != "3.0" {
			t.Errorf("api-version = %q, want 3.0", got)
		}
		if got := r.Header.Get("Ocp-Apim-Subscription-Key"); got != "k" {
			t.Errorf("subscription key = %q, want k", got)
		}
		if got := r.Header.Get("Ocp-Apim-Subscription-Region"); got != "westeurope" {
			t.Errorf("region = %q, want westeurope", got)
		}
		items := decodeTexts(t, r)
		if len(items) != 1 || items[0].Text != "Hola, ¿cómo estás?" {
			t.Errorf("body = %+v", items)
		}
		w.Write([]byte(`[{"language":"es","score":0.98}]`))
	}))
	defer srv.Close()

	a := NewAzure(srv.URL, "k", "westeurope", "en")
	lang, err := a.Detect(context.Background(), "Hola, ¿cómo estás?")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if lang != "es" {
		t.Errorf("lang = %q, want es", lang)
	}
}

func TestAzureTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Errorf("path = %q, want /translate", r.URL.Path)
		}
		if got := r.URL.Query().Get("to"); got != "en" {
			t.Errorf("to = %q, want en", got)
		}
		w.Write([]byte(`[{"translations":[{"text":"Hello, how are you?","to":"en"}]}]`))
	}))
	defer srv.Close()

	a := NewAzure(srv.URL, "k", "", "en")
	out, err := a.Translate(context.Background(), "Hola, ¿cómo estás?", "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "Hello, how are you?" {
		t.Errorf("out = %q", out)
	}
}

func TestAzure_EmptyTextSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	a := NewAzure(srv.URL, "k", "", "en")
	lang, err := a.Detect(context.Background(), "   ")
	if err != nil || lang != "en" {
		t.Errorf("Detect(blank) = %q, %v; want en, nil", lang, err)
	}
	out, err := a.Translate(context.Background(), "", "fr")
	if err != nil || out != "" {
		t.Errorf("Translate(empty) = %q, %v", out, err)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times, want 0", calls.Load())
	}
}

func TestAzure_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"code":500000}}`},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":401000}}`},
		{"bad json", http.StatusOK, `not json`},
		{"empty array", http.StatusOK, `[]`},
		{"no translations", http.StatusOK, `[{"translations":[]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewAzure(srv.URL, "k", "", "en")
			if _, err := a.Translate(context.Background(), "bonjour", "en"); err == nil {
				t.Error("Translate: expected error")
			}
		})
	}
}

func TestAzure_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[{"language":"de","score":1}]`))
	}))
	defer srv.Close()

	a := NewAzure(srv.URL, "k", "", "en")
	lang, err := a.Detect(context.Background(), "Guten Tag")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if lang != "de" || calls.Load() != 2 {
		t.Errorf("lang=%q calls=%d, want de and 2", lang, calls.Load())
	}
}

func TestPassthrough(t *testing.T) {
	p := Passthrough{Pivot: "en"}
	lang, _ := p.Detect(context.Background(), "Bonjour")
	if lang != "en" {
		t.Errorf("Detect = %q, want en", lang)
	}
	out, _ := p.Translate(context.Background(), "Bonjour", "fr")
	if out != "Bonjour" {
		t.Errorf("Translate = %q, want input unchanged", out)
	}
}
