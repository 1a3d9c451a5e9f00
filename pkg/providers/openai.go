package providers

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI backs the agent with any OpenAI-compatible chat completions
// endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: model}
}

func (p *OpenAI) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gpt-4.1"
}

func (p *OpenAI) Chat(ctx context.Context, messages []Message) (string, error) {
	var turns []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			turns = append(turns, openai.SystemMessage(msg.Content))
		case "assistant":
			turns = append(turns, openai.AssistantMessage(msg.Content))
		default:
			turns = append(turns, openai.UserMessage(msg.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    p.DefaultModel(),
		Messages: turns,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels enumerates the models visible to the configured key.
func (p *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	var ids []string
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (p *OpenAI) IsConnected(ctx context.Context) bool {
	_, err := p.ListModels(ctx)
	return err == nil
}
