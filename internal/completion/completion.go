// Package completion produces short chat completions from a message history.
package completion

import (
	"context"
	"errors"
)

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrUnavailable is returned when a provider answers without any content.
var ErrUnavailable = errors.New("completion unavailable")

// Message is one turn of a chat history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options bound a single completion call.
type Options struct {
	MaxTokens   int
	Temperature float32
}

// Completer returns the assistant continuation of messages.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}
