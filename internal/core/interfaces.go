package core

import (
	"context"
	"encoding/json"
)

// LLMClient abstracts the chat-completion provider (OpenRouter, OpenAI-compatible, etc).
type LLMClient interface {
	ChatCompletionWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, error)
}

// ToolExecutor runs a named tool for a caller. Implementations never return
// an error: every failure is folded into the ToolResult.
type ToolExecutor interface {
	Execute(ctx context.Context, caller Caller, name string, args json.RawMessage) ToolResult
}
