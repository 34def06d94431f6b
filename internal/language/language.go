// Package language provides language detection and translation.
package language

import "context"

// Service detects the language of a text and translates between language
// codes. Implementations return an error on any remote failure; callers
// decide the fallback.
type Service interface {
	Detect(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, to string) (string, error)
}

// Passthrough is used when no translator is configured. Every text is
// reported as the pivot language and translation is the identity.
type Passthrough struct {
	Pivot string
}

func (p Passthrough) Detect(context.Context, string) (string, error) {
	return p.Pivot, nil
}

func (p Passthrough) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}
