package playbook

import (
	"fmt"
	"strings"
)

const defaultMaxPlaybookTokens = 1500

const role = `You are a real-time assistant for a sales representative on a live call.
Reply with the exact words the representative should say next, in one or two
short sentences.`

const guidance = `Example GOOD responses:
"Could you help me understand your current setup better?"
"Let me check if we have inventory in your preferred size."
"Would next Tuesday work for a quick demo?"

BAD responses:
"Suggest asking about their current setup"
"Try saying: Let me check inventory"

Focus on:
- Direct quotes only
- Natural conversation flow
- No suggestion prefixes`

// Composer renders the system instruction for the completion service.
type Composer struct {
	MaxPlaybookTokens int
}

// NewComposer creates a Composer. If maxTokens <= 0 the default is used.
func NewComposer(maxTokens int) *Composer {
	if maxTokens <= 0 {
		maxTokens = defaultMaxPlaybookTokens
	}
	return &Composer{MaxPlaybookTokens: maxTokens}
}

// Compose builds the system instruction. Playbook entries are added in
// section order (scripts, FAQs, products) until the token budget runs out;
// entries that do not fit are skipped.
func (c *Composer) Compose(pb Playbook) string {
	sections := []section{
		{"[Sales Scripts]", scriptEntries(pb.SalesScripts)},
		{"[FAQs]", faqEntries(pb.FAQs)},
		{"[Products]", productEntries(pb.ProductDetails)},
	}

	var rendered []string
	remaining := c.MaxPlaybookTokens
	for _, s := range sections {
		header := "\n" + s.header + "\n"
		var selected []string
		for _, e := range s.entries {
			cost := EstimateTokens(e)
			if len(selected) == 0 {
				cost += EstimateTokens(header)
			}
			if cost > remaining {
				continue
			}
			selected = append(selected, e)
			remaining -= cost
		}
		if len(selected) > 0 {
			rendered = append(rendered, header+strings.Join(selected, ""))
		}
	}

	var sb strings.Builder
	sb.WriteString(role)
	sb.WriteString("\n")
	for _, r := range rendered {
		sb.WriteString(r)
	}
	sb.WriteString("\n")
	sb.WriteString(guidance)
	return sb.String()
}

// CustomerTurn formats the current transcript as the final user message.
func CustomerTurn(transcript string) string {
	return "Customer said: " + transcript
}

type section struct {
	header  string
	entries []string
}

func scriptEntries(in []Script) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, fmt.Sprintf("- %s: %s\n", s.Name, s.Text))
	}
	return out
}

func faqEntries(in []FAQ) []string {
	out := make([]string, 0, len(in))
	for _, f := range in {
		out = append(out, fmt.Sprintf("Q: %s\nA: %s\n", f.Question, f.Answer))
	}
	return out
}

func productEntries(in []Product) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		out = append(out, fmt.Sprintf("- %s: %s\n", p.Name, p.Description))
	}
	return out
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
