package core

import "encoding/json"

// Message represents a chat message in the model transcript.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"` // tool name on role=tool messages
}

// ToolCall is a single tool invocation request.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the requested function and its raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool available to the model.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec describes the function signature.
type FunctionSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters,omitempty"` // JSON Schema
}

// ToolResult is the normalized envelope every tool invocation resolves to.
type ToolResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// JSON returns the envelope serialized for a role=tool message.
func (r ToolResult) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"unserializable tool result"}`
	}
	return string(b)
}

// Caller identifies who a request acts for: the user and their tenant.
type Caller struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
}

// Valid reports whether both halves of the identity are present.
func (c Caller) Valid() bool {
	return c.UserID != "" && c.OrganizationID != ""
}
