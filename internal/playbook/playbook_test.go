package playbook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

const playbookJSON = `{
	"sales_scripts": [{"name": "Opener", "text": "Thanks for taking the time today."}],
	"faqs": [{"question": "Do you ship abroad?", "answer": "Yes, to 40 countries."}],
	"product_details": [{"name": "Trail Runner", "description": "Lightweight running shoe."}]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad_FromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(playbookJSON))
	}))
	defer srv.Close()

	pb, origin := Load(context.Background(), Source{URL: srv.URL, Path: "does-not-exist.json"})
	if origin != "url" {
		t.Errorf("origin = %q, want url", origin)
	}
	if len(pb.SalesScripts) != 1 || pb.SalesScripts[0].Name != "Opener" {
		t.Errorf("scripts = %+v", pb.SalesScripts)
	}
}

func TestLoad_URLFailureFallsBackToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	path := writeFile(t, "initial_data.json", playbookJSON)
	pb, origin := Load(context.Background(), Source{URL: srv.URL, Path: path})
	if origin != path {
		t.Errorf("origin = %q, want %q", origin, path)
	}
	if len(pb.FAQs) != 1 || pb.FAQs[0].Answer != "Yes, to 40 countries." {
		t.Errorf("faqs = %+v", pb.FAQs)
	}
}

func TestLoad_FallsBackToDefault(t *testing.T) {
	bad := writeFile(t, "initial_data.json", "{not json")
	pb, origin := Load(context.Background(), Source{Path: bad})
	if origin != "default" {
		t.Errorf("origin = %q, want default", origin)
	}
	if len(pb.ProductDetails) != 1 || pb.ProductDetails[0].Name != "Default Product" {
		t.Errorf("products = %+v", pb.ProductDetails)
	}
}

func TestLoad_SkipsUnreadableProductSheets(t *testing.T) {
	notPDF := writeFile(t, "brochure.pdf", "plain text, not a pdf")
	pb, _ := Load(context.Background(), Source{ProductSheets: []string{notPDF, "/missing/sheet.pdf"}})
	if len(pb.ProductDetails) != 1 {
		t.Errorf("products = %d, want only the default entry", len(pb.ProductDetails))
	}
}

func TestLoadProductSheet_Missing(t *testing.T) {
	if _, err := LoadProductSheet(filepath.Join(t.TempDir(), "nope.pdf")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSheetName(t *testing.T) {
	tests := map[string]string{
		"/data/sheets/Trail Runner.pdf": "Trail Runner",
		`C:\sheets\boots.pdf`:           "boots",
		"plain.pdf":                     "plain",
	}
	for in, want := range tests {
		if got := sheetName(in); got != want {
			t.Errorf("sheetName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClipRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"truncate me", 8, "truncate"},
		{"Größe prüfen", 4, "Größ"},
		{"日本語のテキスト", 3, "日本語"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		got := clipRunes(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("clipRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("clipRunes(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}

func TestCompose_IncludesPlaybookAndGuidance(t *testing.T) {
	c := NewComposer(0)
	out := c.Compose(Default())

	for _, want := range []string{
		"[Sales Scripts]",
		"Introduction: Hello, my name is [Name]",
		"Q: What products do you offer?",
		"[Products]",
		"Direct quotes only",
		"Would next Tuesday work for a quick demo?",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestCompose_RespectsBudget(t *testing.T) {
	pb := Playbook{
		SalesScripts: []Script{{Name: "Short", Text: "Hi."}},
		ProductDetails: []Product{
			{Name: "Huge", Description: strings.Repeat("x", 2000)},
			{Name: "Small", Description: "fits"},
		},
	}
	out := NewComposer(50).Compose(pb)

	if strings.Contains(out, "Huge") {
		t.Error("oversized entry should be dropped")
	}
	if !strings.Contains(out, "Short: Hi.") || !strings.Contains(out, "Small: fits") {
		t.Errorf("entries that fit are missing:\n%s", out)
	}
}

func TestCompose_EmptyPlaybook(t *testing.T) {
	out := NewComposer(0).Compose(Playbook{})
	if strings.Contains(out, "[FAQs]") {
		t.Error("empty section header rendered")
	}
	if !strings.HasPrefix(out, role) {
		t.Error("prompt should start with the role instruction")
	}
}

func TestCustomerTurn(t *testing.T) {
	if got := CustomerTurn("Hello"); got != "Customer said: Hello" {
		t.Errorf("got %q", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
