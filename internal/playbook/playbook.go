// Package playbook loads the sales material the assistant is grounded on.
package playbook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

const (
	fetchTimeout     = 15 * time.Second
	maxPlaybookBytes = 4 << 20
	maxSheetChars    = 4000
)

type Script struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Playbook is the sales material injected into the system instruction.
type Playbook struct {
	SalesScripts   []Script  `json:"sales_scripts"`
	FAQs           []FAQ     `json:"faqs"`
	ProductDetails []Product `json:"product_details"`
}

// Default is used when no configured source can be read.
func Default() Playbook {
	return Playbook{
		SalesScripts: []Script{
			{Name: "Introduction", Text: "Hello, my name is [Name] from [Company]. How are you today?"},
		},
		FAQs: []FAQ{
			{Question: "What products do you offer?", Answer: "We offer a range of solutions. Could you tell me more about your specific needs?"},
		},
		ProductDetails: []Product{
			{Name: "Default Product", Description: "Our flagship product designed to meet your needs."},
		},
	}
}

// Source lists where to look for the playbook.
type Source struct {
	URL           string
	Path          string
	ProductSheets []string
}

// Load tries the URL, then the local file, then the built-in default.
// Product sheets are appended to whichever playbook was found; unreadable
// sheets are skipped. The second return value names the origin used.
func Load(ctx context.Context, src Source) (Playbook, string) {
	pb, origin := loadBase(ctx, src)

	for _, path := range src.ProductSheets {
		p, err := LoadProductSheet(path)
		if err != nil {
			slog.Warn("skipping product sheet", "path", path, "error", err)
			continue
		}
		pb.ProductDetails = append(pb.ProductDetails, p)
	}
	return pb, origin
}

func loadBase(ctx context.Context, src Source) (Playbook, string) {
	if src.URL != "" {
		pb, err := fetch(ctx, src.URL)
		if err == nil {
			return pb, "url"
		}
		slog.Warn("loading playbook from url failed", "error", err)
	}
	if src.Path != "" {
		pb, err := readFile(src.Path)
		if err == nil {
			return pb, src.Path
		}
		slog.Warn("loading playbook from file failed", "path", src.Path, "error", err)
	}
	return Default(), "default"
}

func fetch(ctx context.Context, url string) (Playbook, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Playbook{}, fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Playbook{}, fmt.Errorf("fetching playbook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Playbook{}, fmt.Errorf("fetching playbook: unexpected status %d", resp.StatusCode)
	}
	return decode(io.LimitReader(resp.Body, maxPlaybookBytes))
}

func readFile(path string) (Playbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return Playbook{}, err
	}
	defer f.Close()
	return decode(io.LimitReader(f, maxPlaybookBytes))
}

func decode(r io.Reader) (Playbook, error) {
	var pb Playbook
	if err := json.NewDecoder(r).Decode(&pb); err != nil {
		return Playbook{}, fmt.Errorf("decoding playbook: %w", err)
	}
	return pb, nil
}

// LoadProductSheet extracts the plain text of a PDF and returns it as a
// product entry named after the file.
func LoadProductSheet(path string) (Product, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Product{}, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	txt, err := r.GetPlainText()
	if err != nil {
		return Product{}, fmt.Errorf("extracting text: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(txt, maxSheetChars*4))
	if err != nil {
		return Product{}, fmt.Errorf("reading text: %w", err)
	}

	// The read limit can split the last rune; drop the partial bytes.
	desc := strings.Join(strings.Fields(strings.ToValidUTF8(string(b), "")), " ")
	if desc == "" {
		return Product{}, fmt.Errorf("no text in %s", path)
	}
	return Product{Name: sheetName(path), Description: clipRunes(desc, maxSheetChars)}, nil
}

// clipRunes returns the first n runes of s.
func clipRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func sheetName(path string) string {
	base := path[strings.LastIndexAny(path, `/\`)+1:]
	return strings.TrimSuffix(base, ".pdf")
}
