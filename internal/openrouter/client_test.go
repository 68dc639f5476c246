package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wagroups/wagroups/internal/core"
)

func TestChatCompletionWithTools(t *testing.T) {
	var req ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth header: %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":null,
			"tool_calls":[{"id":"c1","type":"function","function":{"name":"list_groups","arguments":"{}"}}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient("k", "m")
	c.BaseURL = srv.URL
	defs := []core.ToolDefinition{{Type: "function", Function: core.FunctionSpec{Name: "list_groups"}}}
	content, calls, err := c.ChatCompletionWithTools(context.Background(), []core.Message{{Role: "user", Content: "hi"}}, defs)
	if err != nil {
		t.Fatal(err)
	}
	if content != "" || len(calls) != 1 || calls[0].Function.Name != "list_groups" {
		t.Errorf("content=%q calls=%+v", content, calls)
	}
	if req.ToolChoice != "auto" || len(req.Tools) != 1 || req.Model != "m" {
		t.Errorf("request: %+v", req)
	}
}

func TestChatCompletionWithTools_HTTPError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("k", "m")
	c.BaseURL = srv.URL
	if _, _, err := c.ChatCompletionWithTools(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestParseContent(t *testing.T) {
	cases := map[string]string{
		`"hello"`: "hello",
		`null`:    "",
		`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`: "ab",
	}
	for in, want := range cases {
		if got := parseContent(json.RawMessage(in)); got != want {
			t.Errorf("parseContent(%s) = %q, want %q", in, got, want)
		}
	}
}
