package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/wagroups/wagroups/internal/core"
)

// SessionMessage is one entry of a chat session transcript as shown to users.
type SessionMessage struct {
	Role       string       `json:"role"` // user, assistant, system
	Content    string       `json:"content"`
	Timestamp  time.Time    `json:"timestamp"`
	ToolResult *ToolOutcome `json:"tool_result,omitempty"`
}

// ToolOutcome summarizes one tool execution for display and audit.
type ToolOutcome struct {
	ToolName string          `json:"tool_name"`
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ToolCallRecord is the durable audit entry of a model-requested invocation.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Timestamp time.Time       `json:"timestamp"`
}

// ChatSession is a persisted agent conversation owned by one (user, organization) pair.
type ChatSession struct {
	ID             string           `db:"id" json:"id"`
	UserID         string           `db:"user_id" json:"user_id"`
	OrganizationID string           `db:"organization_id" json:"organization_id"`
	Title          string           `db:"title" json:"title"`
	MessagesJSON   string           `db:"messages" json:"-"`
	ToolCallsJSON  string           `db:"tool_calls" json:"-"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
	Messages       []SessionMessage `db:"-" json:"messages,omitempty"`
	ToolCalls      []ToolCallRecord `db:"-" json:"tool_calls,omitempty"`
}

func (s *ChatSession) decode() error {
	s.Messages, s.ToolCalls = nil, nil
	if s.MessagesJSON != "" {
		if err := json.Unmarshal([]byte(s.MessagesJSON), &s.Messages); err != nil {
			return errors.Wrapf(err, "decode messages of session %s", s.ID)
		}
	}
	if s.ToolCallsJSON != "" {
		if err := json.Unmarshal([]byte(s.ToolCallsJSON), &s.ToolCalls); err != nil {
			return errors.Wrapf(err, "decode tool calls of session %s", s.ID)
		}
	}
	return nil
}

// GetChatSession returns the session if it exists and belongs to caller;
// otherwise ErrNotFound.
func (db *DB) GetChatSession(ctx context.Context, id string, caller core.Caller) (*ChatSession, error) {
	var s ChatSession
	err := db.get(ctx, &s,
		`SELECT id, user_id, organization_id, title, messages, tool_calls, created_at, updated_at
		 FROM chat_sessions WHERE id = ? AND user_id = ? AND organization_id = ?`,
		id, caller.UserID, caller.OrganizationID,
	)
	if err != nil {
		return nil, err
	}
	if err := s.decode(); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveChatSession upserts the full message and tool-call arrays. The title is
// only written on insert so renames are not clobbered by a later turn. A row
// owned by someone else is left untouched.
func (db *DB) SaveChatSession(ctx context.Context, s *ChatSession) error {
	if s.Messages == nil {
		s.Messages = []SessionMessage{}
	}
	if s.ToolCalls == nil {
		s.ToolCalls = []ToolCallRecord{}
	}
	msgs, err := json.Marshal(s.Messages)
	if err != nil {
		return errors.Wrap(err, "encode messages")
	}
	calls, err := json.Marshal(s.ToolCalls)
	if err != nil {
		return errors.Wrap(err, "encode tool calls")
	}
	ts := now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = ts
	}
	s.UpdatedAt = ts
	s.MessagesJSON, s.ToolCallsJSON = string(msgs), string(calls)
	_, err = db.exec(ctx,
		`INSERT INTO chat_sessions (id, user_id, organization_id, title, messages, tool_calls, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			messages = excluded.messages,
			tool_calls = excluded.tool_calls,
			updated_at = excluded.updated_at
		 WHERE chat_sessions.user_id = excluded.user_id
		   AND chat_sessions.organization_id = excluded.organization_id`,
		s.ID, s.UserID, s.OrganizationID, s.Title, s.MessagesJSON, s.ToolCallsJSON, s.CreatedAt, s.UpdatedAt,
	)
	return errors.Wrap(err, "save chat session")
}

// ListChatSessions returns the caller's most recently updated sessions without
// their transcripts.
func (db *DB) ListChatSessions(ctx context.Context, caller core.Caller, limit int) ([]ChatSession, error) {
	if limit <= 0 {
		limit = 20
	}
	out := []ChatSession{}
	err := db.selectAll(ctx, &out,
		`SELECT id, user_id, organization_id, title, created_at, updated_at
		 FROM chat_sessions WHERE user_id = ? AND organization_id = ?
		 ORDER BY updated_at DESC LIMIT ?`,
		caller.UserID, caller.OrganizationID, limit,
	)
	return out, err
}

// RenameChatSession changes the title. ErrNotFound when missing or not owned.
func (db *DB) RenameChatSession(ctx context.Context, id string, caller core.Caller, title string) error {
	return affectedOrNotFound(db.exec(ctx,
		`UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ? AND user_id = ? AND organization_id = ?`,
		title, now(), id, caller.UserID, caller.OrganizationID,
	))
}

// DeleteChatSession removes the session. Deleting a missing session is not an error.
func (db *DB) DeleteChatSession(ctx context.Context, id string, caller core.Caller) error {
	_, err := db.exec(ctx,
		`DELETE FROM chat_sessions WHERE id = ? AND user_id = ? AND organization_id = ?`,
		id, caller.UserID, caller.OrganizationID,
	)
	return err
}
