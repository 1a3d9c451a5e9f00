package providers

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/vaultclaw/vaultclaw/pkg/stream"
)

// Local talks to a local model server (LM Studio style REST API): a plain
// chat endpoint plus an SSE streaming endpoint emitting the stream package's
// event union.
type Local struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewLocal(baseURL, model string) *Local {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:1234"
	}
	return &Local{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 0}, // deadlines come from the caller's context
	}
}

func (p *Local) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "local-model"
}

type localChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type localChatResponse struct {
	Content string `json:"content"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Local) Chat(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(localChatRequest{
		Model:    p.DefaultModel(),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	resp, err := p.post(ctx, "/api/v1/chat", body, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	reader, err := decompressed(resp)
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("local server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out localChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("local server error: %s", out.Error.Message)
	}
	if out.Content != "" {
		return out.Content, nil
	}
	if len(out.Choices) > 0 {
		return out.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("local server returned an empty response")
}

// StreamChat runs a streamed chat against the SSE endpoint. The decoder owns
// all accumulation state; callbacks fire as events arrive.
func (p *Local) StreamChat(ctx context.Context, messages []Message, opts StreamOptions, cb stream.Callbacks) (stream.Result, error) {
	model := opts.Model
	if model == "" {
		model = p.DefaultModel()
	}
	body, err := json.Marshal(localChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return stream.Result{}, fmt.Errorf("encode stream request: %w", err)
	}

	resp, err := p.post(ctx, "/api/v1/chat/stream", body, "application/json")
	if err != nil {
		return stream.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return stream.Result{}, fmt.Errorf("local server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return stream.Consume(ctx, resp.Body, cb)
}

type localModelsResponse struct {
	Models []struct {
		ID string `json:"id"`
	} `json:"models"`
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *Local) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/v1/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "zstd, gzip")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	reader, err := decompressed(resp)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("local server returned %d", resp.StatusCode)
	}

	var out localModelsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	var ids []string
	for _, m := range out.Models {
		ids = append(ids, m.ID)
	}
	for _, m := range out.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (p *Local) IsConnected(ctx context.Context) bool {
	probe, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := p.ListModels(probe)
	return err == nil
}

func (p *Local) post(ctx context.Context, path string, body []byte, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept-Encoding", "zstd, gzip")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local server request failed: %w", err)
	}
	return resp, nil
}

// decompressed unwraps zstd/gzip response bodies. The local server compresses
// larger payloads when the client advertises support.
func decompressed(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("open zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case "gzip":
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		return gr, nil
	default:
		return resp.Body, nil
	}
}
