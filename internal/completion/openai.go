package completion

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAI talks to the OpenAI chat completions API or an Azure OpenAI
// deployment.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a client for api.openai.com or any compatible base URL.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

// NewAzureOpenAI creates a client for an Azure OpenAI resource. The model
// name is used verbatim as the deployment name.
func NewAzureOpenAI(apiKey, endpoint, deployment, apiVersion string) *OpenAI {
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	cfg.AzureModelMapperFunc = func(string) string { return deployment }
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: deployment}
}

func (c *OpenAI) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices: %w", ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}
