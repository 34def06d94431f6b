package language

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAzureEndpoint = "https://api.cognitive.microsofttranslator.com"
	apiVersion           = "3.0"
	defaultTimeout       = 15 * time.Second
	maxRetries           = 3
	initialBackoff       = 250 * time.Millisecond
)

// Azure calls the Azure AI Translator v3 REST API.
type Azure struct {
	endpoint   string
	apiKey     string
	region     string
	pivot      string
	httpClient *http.Client
}

// NewAzure creates a translator client. An empty endpoint selects the global
// public endpoint; pivot is what Detect reports for empty input.
func NewAzure(endpoint, apiKey, region, pivot string) *Azure {
	if endpoint == "" {
		endpoint = DefaultAzureEndpoint
	}
	return &Azure{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		region:   region,
		pivot:    pivot,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type textItem struct {
	Text string `json:"Text"`
}

type detectResult struct {
	Language string  `json:"language"`
	Score    float64 `json:"score"`
}

type translateResult struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// Detect returns the language code the service considers most likely.
func (a *Azure) Detect(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return a.pivot, nil
	}

	var results []detectResult
	if err := a.call(ctx, "/detect", nil, text, &results); err != nil {
		return "", fmt.Errorf("detecting language: %w", err)
	}
	if len(results) == 0 || results[0].Language == "" {
		return "", errors.New("detecting language: empty result")
	}
	return results[0].Language, nil
}

// Translate converts text into the language identified by to.
func (a *Azure) Translate(ctx context.Context, text, to string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	var results []translateResult
	if err := a.call(ctx, "/translate", url.Values{"to": {to}}, text, &results); err != nil {
		return "", fmt.Errorf("translating to %s: %w", to, err)
	}
	if len(results) == 0 || len(results[0].Translations) == 0 {
		return "", fmt.Errorf("translating to %s: empty result", to)
	}
	return results[0].Translations[0].Text, nil
}

// call posts a single-element text body to path and decodes the JSON reply
// into out, retrying with exponential backoff on HTTP 429.
func (a *Azure) call(ctx context.Context, path string, params url.Values, text string, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api-version", apiVersion)
	u := a.endpoint + path + "?" + params.Encode()

	body, err := json.Marshal([]textItem{{Text: text}})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		err := a.do(ctx, u, body, out)
		if err == nil {
			return nil
		}
		var rl *rateLimitError
		if !errors.As(err, &rl) {
			return err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func (a *Azure) do(ctx context.Context, u string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)
	if a.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", a.region)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
