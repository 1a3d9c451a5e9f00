// Package providers holds the LLM backend collaborators. The agent loop only
// needs plain text chat; tool invocations travel as fenced JSON inside the
// response text, so no provider-side tool wiring is involved.
package providers

import (
	"context"

	"github.com/vaultclaw/vaultclaw/pkg/stream"
)

type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// Provider is the non-streaming chat collaborator.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	DefaultModel() string
}

// StreamOptions tunes one streamed chat.
type StreamOptions struct {
	Model       string
	Temperature float64
}

// Streamer is implemented by providers that support the event-stream chat
// primitive used for single-shot UI chats.
type Streamer interface {
	StreamChat(ctx context.Context, messages []Message, opts StreamOptions, cb stream.Callbacks) (stream.Result, error)
}

// Lister is implemented by providers that can enumerate available models.
type Lister interface {
	ListModels(ctx context.Context) ([]string, error)
	IsConnected(ctx context.Context) bool
}
