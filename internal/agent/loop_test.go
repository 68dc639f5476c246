package agent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagroups/wagroups/internal/config"
	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/store"
)

var alice = core.Caller{UserID: "alice", OrganizationID: "org-1"}

// scriptedLLM replays fixed replies and keeps a copy of every transcript it saw.
type scriptedLLM struct {
	replies []reply
	seen    [][]core.Message
}

type reply struct {
	content string
	calls   []core.ToolCall
	err     error
}

func (s *scriptedLLM) ChatCompletionWithTools(ctx context.Context, messages []core.Message, tools []core.ToolDefinition) (string, []core.ToolCall, error) {
	s.seen = append(s.seen, append([]core.Message(nil), messages...))
	if len(s.replies) == 0 {
		return "done", nil, nil
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r.content, r.calls, r.err
}

type execCall struct {
	name string
	args string
}

type recordingExecutor struct {
	calls  []execCall
	result func(name string) core.ToolResult
}

func (e *recordingExecutor) Execute(ctx context.Context, caller core.Caller, name string, args json.RawMessage) core.ToolResult {
	e.calls = append(e.calls, execCall{name: name, args: string(args)})
	if e.result != nil {
		return e.result(name)
	}
	return core.ToolResult{Success: true, Data: json.RawMessage(`{"ok":true}`)}
}

// countingSessions wraps the real store and counts writes.
type countingSessions struct {
	*store.DB
	saves int
}

func (c *countingSessions) SaveChatSession(ctx context.Context, s *store.ChatSession) error {
	c.saves++
	return c.DB.SaveChatSession(ctx, s)
}

func call(id, name, args string) core.ToolCall {
	return core.ToolCall{ID: id, Type: "function", Function: core.FunctionCall{Name: name, Arguments: args}}
}

func newTestLoop(t *testing.T, llm core.LLMClient, exec core.ToolExecutor, maxRounds int) (*Loop, *countingSessions) {
	t.Helper()
	db, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sessions := &countingSessions{DB: db}
	l := NewLoop(sessions, llm, exec, nil, nil, config.AgentConfig{MaxRounds: maxRounds}, nil)
	return l, sessions
}

func TestRunOneTurn_ToolRoundsThenAnswer(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{
		{calls: []core.ToolCall{call("c1", "list_groups", `{}`)}},
		{content: "checking categories", calls: []core.ToolCall{call("c2", "list_categories", `{}`), call("c3", "list_triggers", `{}`)}},
		{content: "You have 3 groups"},
	}}
	exec := &recordingExecutor{}
	l, sessions := newTestLoop(t, llm, exec, 10)

	res, err := l.RunOneTurn(context.Background(), alice, "", "list my groups")
	require.NoError(t, err)

	assert.Equal(t, "You have 3 groups", res.Message)
	assert.NotEmpty(t, res.SessionID)
	require.Len(t, exec.calls, 3)
	assert.Equal(t, []string{"list_groups", "list_categories", "list_triggers"},
		[]string{exec.calls[0].name, exec.calls[1].name, exec.calls[2].name})
	require.Len(t, res.ToolCalls, 3)
	require.Len(t, res.ToolResults, 3)
	assert.Equal(t, 1, sessions.saves)
	require.Len(t, llm.seen, 3)

	// Every call is immediately followed by its own result, in model order.
	last := llm.seen[2]
	require.Len(t, last, 3+6)
	assert.Equal(t, "system", last[0].Role)
	assert.Equal(t, WelcomeMessage, last[1].Content)
	assert.Equal(t, "user", last[2].Role)
	for i, id := range []string{"c1", "c2", "c3"} {
		req, res := last[3+2*i], last[4+2*i]
		assert.Equal(t, "assistant", req.Role)
		require.Len(t, req.ToolCalls, 1)
		assert.Equal(t, id, req.ToolCalls[0].ID)
		assert.Equal(t, "tool", res.Role)
		assert.Equal(t, id, res.ToolCallID)
	}
	assert.Equal(t, "checking categories", last[5].Content)
	assert.Empty(t, last[7].Content)

	saved, err := sessions.GetChatSession(context.Background(), res.SessionID, alice)
	require.NoError(t, err)
	assert.Len(t, saved.ToolCalls, 3)
	assert.Equal(t, "list my groups", saved.Title)
	require.Len(t, saved.Messages, 3)
	final := saved.Messages[2]
	assert.Equal(t, "You have 3 groups", final.Content)
	require.NotNil(t, final.ToolResult)
	assert.Equal(t, "list_triggers", final.ToolResult.ToolName)
}

func TestRunOneTurn_ToolFailureStaysInTranscript(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{
		{calls: []core.ToolCall{call("c1", "list_groups", `{}`)}},
		{content: "The database is unavailable right now."},
	}}
	exec := &recordingExecutor{result: func(string) core.ToolResult {
		return core.ToolResult{Success: false, Error: "db down"}
	}}
	l, _ := newTestLoop(t, llm, exec, 10)

	res, err := l.RunOneTurn(context.Background(), alice, "", "list my groups")
	require.NoError(t, err)
	assert.Equal(t, "The database is unavailable right now.", res.Message)
	require.Len(t, res.ToolResults, 1)
	assert.False(t, res.ToolResults[0].Success)
	assert.Equal(t, "db down", res.ToolResults[0].Error)
	assert.JSONEq(t, `{"success":false,"error":"db down"}`, llm.seen[1][4].Content)
}

func TestRunOneTurn_MalformedArgumentsBecomeEmptyObject(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{
		{calls: []core.ToolCall{call("c1", "list_groups", `{"search": "sal`), call("", "list_categories", `[1,2]`)}},
		{content: "ok"},
	}}
	exec := &recordingExecutor{}
	l, _ := newTestLoop(t, llm, exec, 10)

	res, err := l.RunOneTurn(context.Background(), alice, "", "hi")
	require.NoError(t, err)
	require.Len(t, exec.calls, 2)
	assert.Equal(t, `{}`, exec.calls[0].args)
	assert.Equal(t, `{}`, exec.calls[1].args)
	assert.JSONEq(t, `{}`, string(res.ToolCalls[0].Arguments))
	assert.NotEmpty(t, res.ToolCalls[1].ID)
	assert.Equal(t, `{}`, llm.seen[1][3].ToolCalls[0].Function.Arguments)
}

func TestRunOneTurn_SessionIsReused(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{{content: "first answer"}}}
	l, sessions := newTestLoop(t, llm, &recordingExecutor{}, 10)
	ctx := context.Background()

	first, err := l.RunOneTurn(ctx, alice, "", "hello")
	require.NoError(t, err)
	second, err := l.RunOneTurn(ctx, alice, first.SessionID, "again")
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 2, sessions.saves)
	history := llm.seen[1]
	// system, welcome, hello, first answer, again
	require.Len(t, history, 5)
	assert.Equal(t, "hello", history[2].Content)
	assert.Equal(t, "first answer", history[3].Content)
	assert.Equal(t, "again", history[4].Content)

	list, err := sessions.ListChatSessions(ctx, alice, 20)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRunOneTurn_UnknownSessionStartsFresh(t *testing.T) {
	llm := &scriptedLLM{}
	l, _ := newTestLoop(t, llm, &recordingExecutor{}, 10)
	ctx := context.Background()

	bob := core.Caller{UserID: "bob", OrganizationID: "org-1"}
	owned, err := l.RunOneTurn(ctx, bob, "", "bob's session")
	require.NoError(t, err)

	res, err := l.RunOneTurn(ctx, alice, owned.SessionID, "let me in")
	require.NoError(t, err)
	assert.NotEqual(t, owned.SessionID, res.SessionID)
	// alice sees only the welcome and her own message
	require.Len(t, llm.seen[1], 3)
	assert.Equal(t, "let me in", llm.seen[1][2].Content)
}

func TestRunOneTurn_RoundLimit(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{{calls: []core.ToolCall{call("c", "list_groups", `{}`)}}}}
	exec := &recordingExecutor{}
	l, sessions := newTestLoop(t, llm, exec, 3)

	res, err := l.RunOneTurn(context.Background(), alice, "", "loop forever")
	require.NoError(t, err)
	assert.Equal(t, TurnLimitMessage, res.Message)
	assert.Len(t, exec.calls, 3)
	assert.Len(t, llm.seen, 4)
	assert.Equal(t, 1, sessions.saves)
}

func TestRunOneTurn_EmptyAnswerFallsBack(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{{content: "  "}}}
	l, _ := newTestLoop(t, llm, &recordingExecutor{}, 10)

	res, err := l.RunOneTurn(context.Background(), alice, "", "")
	require.NoError(t, err)
	assert.Equal(t, FallbackMessage, res.Message)
	assert.Empty(t, res.ToolCalls)
}

func TestRunOneTurn_ModelErrorIsNotSaved(t *testing.T) {
	llm := &scriptedLLM{replies: []reply{{err: errors.New("HTTP 503")}}}
	l, sessions := newTestLoop(t, llm, &recordingExecutor{}, 10)

	_, err := l.RunOneTurn(context.Background(), alice, "", "hi")
	require.Error(t, err)
	assert.Equal(t, 0, sessions.saves)
}

func TestRunOneTurn_RequiresCaller(t *testing.T) {
	l, _ := newTestLoop(t, &scriptedLLM{}, &recordingExecutor{}, 10)
	_, err := l.RunOneTurn(context.Background(), core.Caller{UserID: "alice"}, "", "hi")
	assert.Error(t, err)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, DefaultTitle, Title("   "))
	assert.Equal(t, "list my groups", Title("  list   my\ngroups "))
	long := "ááááááááááááááááááááááááááááááááááááááááááááááááááááááááááááááááááá"
	assert.Equal(t, 60, len([]rune(Title(long))))
}
