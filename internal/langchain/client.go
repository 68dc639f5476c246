// Package langchain provides the "openai" language model provider: any
// OpenAI-compatible chat completions endpoint driven through langchaingo.
package langchain

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/wagroups/wagroups/internal/config"
	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/registry"
)

func init() {
	registry.RegisterClient("openai", func(cfg config.LLMConfig) (core.LLMClient, error) {
		return New(cfg)
	})
}

// Model is the part of llms.Model the client uses.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Client adapts a langchaingo model to core.LLMClient.
type Client struct {
	model Model
}

// New builds an OpenAI client from configuration.
func New(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key not set")
	}
	opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "openai: init")
	}
	return &Client{model: llm}, nil
}

// NewWithModel wraps an existing model.
func NewWithModel(m Model) *Client {
	return &Client{model: m}
}

// ChatCompletionWithTools implements core.LLMClient.
func (c *Client) ChatCompletionWithTools(ctx context.Context, messages []core.Message, tools []core.ToolDefinition) (string, []core.ToolCall, error) {
	opts := []llms.CallOption{}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(toTools(tools)), llms.WithToolChoice("auto"))
	}
	resp, err := c.model.GenerateContent(ctx, toMessages(messages), opts...)
	if err != nil {
		return "", nil, errors.Wrap(err, "openai: generate")
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", nil, errors.New("openai: no choices in response")
	}
	choice := resp.Choices[0]
	var calls []core.ToolCall
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		calls = append(calls, core.ToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: core.FunctionCall{Name: tc.FunctionCall.Name, Arguments: tc.FunctionCall.Arguments},
		})
	}
	return choice.Content, calls, nil
}

func toTools(defs []core.ToolDefinition) []llms.Tool {
	out := make([]llms.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Function.Name,
				Description: d.Function.Description,
				Parameters:  d.Function.Parameters,
			},
		})
	}
	return out
}

func toMessages(msgs []core.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case "user":
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case "assistant":
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:           tc.ID,
					Type:         "function",
					FunctionCall: &llms.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
				})
			}
			out = append(out, mc)
		case "tool":
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				}},
			})
		}
	}
	return out
}
