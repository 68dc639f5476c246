package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Command is a chatbot command: a group message "/<keyword>" gets Response.
type Command struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Keyword        string    `db:"keyword" json:"keyword"`
	Response       string    `db:"response" json:"response"`
	Enabled        bool      `db:"enabled" json:"enabled"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NormalizeKeyword lowercases and strips a leading slash.
func NormalizeKeyword(k string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(k), "/"))
}

// CreateCommand inserts an enabled command. ErrConflict when the keyword is taken.
func (db *DB) CreateCommand(ctx context.Context, c *Command) error {
	c.ID = uuid.NewString()
	c.Keyword = NormalizeKeyword(c.Keyword)
	c.Enabled = true
	c.CreatedAt = now()
	_, err := db.exec(ctx,
		`INSERT INTO chatbot_commands (id, organization_id, keyword, response, enabled, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrganizationID, c.Keyword, c.Response, c.Enabled, c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(ErrConflict, "command /%s", c.Keyword)
	}
	return err
}

// ListCommands returns the organization's commands ordered by keyword.
func (db *DB) ListCommands(ctx context.Context, orgID string) ([]Command, error) {
	out := []Command{}
	err := db.selectAll(ctx, &out,
		`SELECT id, organization_id, keyword, response, enabled, created_at FROM chatbot_commands
		 WHERE organization_id = ? ORDER BY keyword ASC`, orgID)
	return out, err
}

// FindCommand returns the enabled command for keyword, or ErrNotFound.
func (db *DB) FindCommand(ctx context.Context, orgID, keyword string) (*Command, error) {
	var c Command
	if err := db.get(ctx, &c,
		`SELECT id, organization_id, keyword, response, enabled, created_at FROM chatbot_commands
		 WHERE organization_id = ? AND keyword = ? AND enabled = ?`, orgID, NormalizeKeyword(keyword), true); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCommand removes a command.
func (db *DB) DeleteCommand(ctx context.Context, orgID, id string) error {
	return affectedOrNotFound(db.exec(ctx, `DELETE FROM chatbot_commands WHERE id = ? AND organization_id = ?`, id, orgID))
}
