package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Providers accepted by New.
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderStub   = "stub"
)

const verifyTimeout = 10 * time.Second

// Settings selects and configures the provider.
type Settings struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	APIVersion string
	// Verify sends a tiny test completion before accepting the provider.
	Verify bool
}

// New picks the completer once at startup. Any construction or verification failure
// is logged and yields Stub, so callers always receive a usable Completer.
func New(ctx context.Context, s Settings) Completer {
	c, err := build(s)
	if err != nil {
		slog.Warn("completion provider unavailable, using stub", "provider", s.Provider, "error", err)
		return Stub{}
	}
	if _, ok := c.(Stub); ok || !s.Verify {
		return c
	}

	if err := verify(ctx, c); err != nil {
		slog.Warn("completion provider failed verification, using stub", "provider", s.Provider, "model", s.Model, "error", err)
		return Stub{}
	}
	slog.Info("completion provider ready", "provider", s.Provider, "model", s.Model)
	return c
}

func build(s Settings) (Completer, error) {
	switch strings.ToLower(s.Provider) {
	case ProviderAzure:
		if s.APIKey == "" || s.BaseURL == "" {
			return nil, errors.New("azure provider needs completion.api_key and completion.base_url")
		}
		return NewAzureOpenAI(s.APIKey, s.BaseURL, s.Model, s.APIVersion), nil
	case ProviderOpenAI:
		if s.APIKey == "" {
			return nil, errors.New("openai provider needs completion.api_key")
		}
		return NewOpenAI(s.APIKey, s.BaseURL, s.Model), nil
	case ProviderOllama:
		return NewOllama(s.BaseURL, s.Model), nil
	case ProviderStub:
		return Stub{}, nil
	default:
		return nil, fmt.Errorf("unknown completion provider: %s", s.Provider)
	}
}

func verify(ctx context.Context, c Completer) error {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	_, err := c.Complete(ctx, []Message{{Role: RoleUser, Content: "Hello"}}, Options{MaxTokens: 10})
	return err
}
