package providers

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const claudeMaxTokens = 4096

// Claude backs the agent with the Anthropic Messages API.
type Claude struct {
	client *anthropic.Client
	model  string
}

func NewClaude(apiKey, model string) *Claude {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &Claude{client: &client, model: model}
}

func (p *Claude) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "claude-sonnet-4-5-20250929"
}

func (p *Claude) Chat(ctx context.Context, messages []Message) (string, error) {
	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.DefaultModel()),
		Messages:  turns,
		MaxTokens: claudeMaxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic chat: %w", err)
	}

	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return out, nil
}
