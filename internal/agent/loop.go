package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/config"
	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/store"
)

const (
	// WelcomeMessage seeds every new session.
	WelcomeMessage = "Hi! I can connect your WhatsApp numbers, organize your groups into categories and automate messages for them. What would you like to do?"
	// FallbackMessage replaces an empty final answer.
	FallbackMessage = "Sorry, I could not process your request."
	// TurnLimitMessage ends a turn that exceeded the tool round cap.
	TurnLimitMessage = "I hit the tool-call limit for this request. Please try a simpler ask, or split it into separate messages."
	// DefaultTitle names a session whose first message is blank.
	DefaultTitle = "New chat"

	titleRunes = 60
)

// SessionStore is the part of the store a turn reads and writes.
type SessionStore interface {
	GetChatSession(ctx context.Context, id string, caller core.Caller) (*store.ChatSession, error)
	SaveChatSession(ctx context.Context, s *store.ChatSession) error
}

// TurnResult is what one completed turn hands back to the chat endpoint.
type TurnResult struct {
	Message     string                 `json:"message"`
	SessionID   string                 `json:"sessionId"`
	ToolCalls   []store.ToolCallRecord `json:"toolCalls,omitempty"`
	ToolResults []store.ToolOutcome    `json:"toolResults,omitempty"`
}

// Loop runs chat turns: system prompt + session history + new user message ->
// model with the tool catalog -> execute tool_calls in order -> repeat until
// no tool_calls -> save the session once and return.
type Loop struct {
	Sessions  SessionStore
	Client    core.LLMClient
	Executor  core.ToolExecutor
	Tools     []core.ToolDefinition
	Prompt    *PromptBuilder
	MaxRounds int

	log *zap.Logger
}

// NewLoop wires a Loop. prompt may be nil, in which case only the default
// identity and static instructions are sent.
func NewLoop(sessions SessionStore, client core.LLMClient, exec core.ToolExecutor, tools []core.ToolDefinition, prompt *PromptBuilder, cfg config.AgentConfig, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		Sessions:  sessions,
		Client:    client,
		Executor:  exec,
		Tools:     tools,
		Prompt:    prompt,
		MaxRounds: cfg.MaxRounds,
		log:       log.Named("agent"),
	}
}

// RunOneTurn handles one user message for caller. sessionID may be empty or
// unknown, in which case a new session is started. Tool failures stay inside
// the transcript; model and store failures are returned.
func (l *Loop) RunOneTurn(ctx context.Context, caller core.Caller, sessionID, text string) (*TurnResult, error) {
	if !caller.Valid() {
		return nil, errors.New("agent: caller identity required")
	}
	session, err := l.resolveSession(ctx, caller, sessionID, text)
	if err != nil {
		return nil, err
	}
	log := l.log.With(
		zap.String("session_id", session.ID),
		zap.String("user_id", caller.UserID),
		zap.String("organization_id", caller.OrganizationID),
	)

	session.Messages = append(session.Messages, store.SessionMessage{
		Role:      "user",
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
	messages := l.transcript(ctx, caller, session.Messages)

	result := &TurnResult{SessionID: session.ID}
	var (
		content string
		calls   []core.ToolCall
		rounds  int
	)

	for {
		content, calls, err = l.Client.ChatCompletionWithTools(ctx, messages, l.Tools)
		if err != nil {
			log.Error("model call failed", zap.Int("round", rounds), zap.Error(err))
			return nil, errors.Wrap(err, "agent: model call")
		}
		log.Debug("model replied", zap.Int("round", rounds), zap.Int("content_len", len(content)), zap.Int("tool_calls", len(calls)))
		if len(calls) == 0 {
			break
		}
		if l.MaxRounds > 0 && rounds >= l.MaxRounds {
			log.Warn("tool round limit reached", zap.Int("max_rounds", l.MaxRounds))
			content = TurnLimitMessage
			break
		}
		rounds++

		for i, tc := range calls {
			args := normalizeArguments(tc.Function.Arguments)
			if tc.ID == "" {
				tc.ID = "call_" + uuid.NewString()
			}
			tc.Type = "function"
			tc.Function.Arguments = string(args)

			res := l.Executor.Execute(ctx, caller, tc.Function.Name, args)

			now := time.Now().UTC()
			record := store.ToolCallRecord{ID: tc.ID, Name: tc.Function.Name, Arguments: args, Timestamp: now}
			outcome := store.ToolOutcome{ToolName: tc.Function.Name, Success: res.Success, Data: res.Data, Error: res.Error}
			session.ToolCalls = append(session.ToolCalls, record)
			result.ToolCalls = append(result.ToolCalls, record)
			result.ToolResults = append(result.ToolResults, outcome)

			// Each call travels in its own assistant message so the matching
			// tool result directly follows it.
			request := core.Message{Role: "assistant", ToolCalls: []core.ToolCall{tc}}
			if i == 0 {
				request.Content = content
			}
			messages = append(messages,
				request,
				core.Message{Role: "tool", ToolCallID: tc.ID, Name: tc.Function.Name, Content: res.JSON()},
			)
		}
	}

	if strings.TrimSpace(content) == "" {
		content = FallbackMessage
	}
	final := store.SessionMessage{Role: "assistant", Content: content, Timestamp: time.Now().UTC()}
	if n := len(result.ToolResults); n > 0 {
		tagged := result.ToolResults[n-1]
		final.ToolResult = &tagged
	}
	session.Messages = append(session.Messages, final)

	if err := l.Sessions.SaveChatSession(ctx, session); err != nil {
		log.Error("save session failed", zap.Error(err))
		return nil, errors.Wrap(err, "agent: save session")
	}
	log.Info("turn complete", zap.Int("rounds", rounds), zap.Int("tool_calls", len(result.ToolCalls)))

	result.Message = content
	return result, nil
}

// resolveSession loads an owned session or starts a new one. An unknown id
// is not reused so a guessed id never lands in someone else's row.
func (l *Loop) resolveSession(ctx context.Context, caller core.Caller, id, firstMessage string) (*store.ChatSession, error) {
	if id != "" {
		s, err := l.Sessions.GetChatSession(ctx, id, caller)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, errors.Wrap(err, "agent: load session")
		}
		l.log.Info("session not found, starting a new one", zap.String("requested_id", id))
	}
	return &store.ChatSession{
		ID:             uuid.NewString(),
		UserID:         caller.UserID,
		OrganizationID: caller.OrganizationID,
		Title:          Title(firstMessage),
		Messages: []store.SessionMessage{{
			Role:      "assistant",
			Content:   WelcomeMessage,
			Timestamp: time.Now().UTC(),
		}},
	}, nil
}

// transcript converts the stored history into model messages behind the system prompt.
func (l *Loop) transcript(ctx context.Context, caller core.Caller, history []store.SessionMessage) []core.Message {
	system := DefaultIdentity + "\n" + strings.TrimSpace(StaticInstructions)
	if l.Prompt != nil {
		system = l.Prompt.Build(ctx, caller)
	}
	out := make([]core.Message, 0, len(history)+1)
	out = append(out, core.Message{Role: "system", Content: system})
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		out = append(out, core.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// normalizeArguments returns args when they are a JSON object and {} otherwise.
func normalizeArguments(raw string) json.RawMessage {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(trimmed)
}

// Title derives a session title from its first user message.
func Title(message string) string {
	s := strings.Join(strings.Fields(message), " ")
	if s == "" {
		return DefaultTitle
	}
	r := []rune(s)
	if len(r) > titleRunes {
		return string(r[:titleRunes])
	}
	return s
}
