package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/wagroups/wagroups/internal/config"
	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/registry"
)

func init() {
	registry.RegisterClient("openrouter", func(cfg config.LLMConfig) (core.LLMClient, error) {
		c := NewClient(cfg.APIKey, cfg.Model)
		if cfg.BaseURL != "" {
			c.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		return c, nil
	})
}

const BaseURL = "https://openrouter.ai/api/v1"

// parseContent parses API content that may be string, null, or array of parts (e.g. [{"type":"text","text":"..."}]).
func parseContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []map[string]interface{}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p["text"].(string); ok {
			b.WriteString(t)
		}
	}
	return b.String()
}

// ChatRequest is the request body for chat completions.
type ChatRequest struct {
	Model      string                `json:"model"`
	Messages   []core.Message        `json:"messages"`
	Tools      []core.ToolDefinition `json:"tools,omitempty"`
	ToolChoice interface{}           `json:"tool_choice,omitempty"` // "auto" or object
}

// ChatResponse includes tool_calls in the choice message.
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content   json.RawMessage `json:"content"`
			Role      string          `json:"role"`
			ToolCalls []core.ToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client calls the OpenRouter chat completions API.
type Client struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	return &Client{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: BaseURL,
		HTTP:    http.DefaultClient,
	}
}

// ChatCompletionWithTools sends messages and the tool catalog with automatic
// tool choice; returns content and any tool_calls. A failed request is
// returned as is.
func (c *Client) ChatCompletionWithTools(ctx context.Context, messages []core.Message, tools []core.ToolDefinition) (string, []core.ToolCall, error) {
	if c.APIKey == "" {
		return "", nil, errors.New("openrouter: API key not set")
	}
	if c.Model == "" {
		return "", nil, errors.New("openrouter: model not set")
	}
	body := ChatRequest{Model: c.Model, Messages: messages, Tools: tools}
	if len(tools) > 0 {
		body.ToolChoice = "auto"
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("X-Title", "wagroups")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", nil, errors.Wrap(err, "openrouter: request")
	}
	defer resp.Body.Close()
	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", nil, errors.Errorf("openrouter: HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var out ChatResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return "", nil, errors.Wrap(err, "openrouter: decode")
	}
	if out.Error != nil {
		return "", nil, errors.Errorf("openrouter: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", nil, errors.Errorf("openrouter: no choices in response (body: %s)", string(bodyBytes))
	}
	msg := out.Choices[0].Message
	return parseContent(msg.Content), msg.ToolCalls, nil
}
