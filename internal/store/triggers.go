package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Trigger is an automation rule: when an incoming group message satisfies
// Expression, Response is sent back to that group. A trigger scoped to neither
// a group nor a category applies to every group of the organization.
type Trigger struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	Expression     string    `db:"expression" json:"expression"`
	Response       string    `db:"response" json:"response"`
	GroupID        *string   `db:"group_id" json:"group_id,omitempty"`
	CategoryID     *string   `db:"category_id" json:"category_id,omitempty"`
	Enabled        bool      `db:"enabled" json:"enabled"`
	FireCount      int       `db:"fire_count" json:"fire_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

const triggerColumns = `id, organization_id, name, expression, response, group_id, category_id, enabled, fire_count, created_at, updated_at`

// CreateTrigger inserts an enabled trigger.
func (db *DB) CreateTrigger(ctx context.Context, t *Trigger) error {
	t.ID = uuid.NewString()
	t.Enabled = true
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	_, err := db.exec(ctx,
		`INSERT INTO automation_triggers (`+triggerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		t.ID, t.OrganizationID, t.Name, t.Expression, t.Response, t.GroupID, t.CategoryID, t.Enabled, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// ListTriggers returns the organization's triggers, newest first.
func (db *DB) ListTriggers(ctx context.Context, orgID string) ([]Trigger, error) {
	out := []Trigger{}
	err := db.selectAll(ctx, &out,
		`SELECT `+triggerColumns+` FROM automation_triggers WHERE organization_id = ? ORDER BY created_at DESC`, orgID)
	return out, err
}

// ListActiveTriggers returns enabled triggers that apply to the given group:
// organization-wide ones, ones scoped to the group, and ones scoped to its category.
func (db *DB) ListActiveTriggers(ctx context.Context, g *Group) ([]Trigger, error) {
	categoryID := ""
	if g.CategoryID != nil {
		categoryID = *g.CategoryID
	}
	out := []Trigger{}
	err := db.selectAll(ctx, &out,
		`SELECT `+triggerColumns+` FROM automation_triggers
		 WHERE organization_id = ? AND enabled = ?
		   AND ((group_id IS NULL AND category_id IS NULL) OR group_id = ? OR category_id = ?)
		 ORDER BY created_at ASC`,
		g.OrganizationID, true, g.ID, categoryID)
	return out, err
}

// SetTriggerEnabled toggles a trigger.
func (db *DB) SetTriggerEnabled(ctx context.Context, orgID, id string, enabled bool) error {
	return affectedOrNotFound(db.exec(ctx,
		`UPDATE automation_triggers SET enabled = ?, updated_at = ? WHERE id = ? AND organization_id = ?`,
		enabled, now(), id, orgID,
	))
}

// RecordTriggerFired bumps the fire counter.
func (db *DB) RecordTriggerFired(ctx context.Context, id string) error {
	_, err := db.exec(ctx, `UPDATE automation_triggers SET fire_count = fire_count + 1 WHERE id = ?`, id)
	return err
}

// DeleteTrigger removes a trigger.
func (db *DB) DeleteTrigger(ctx context.Context, orgID, id string) error {
	return affectedOrNotFound(db.exec(ctx, `DELETE FROM automation_triggers WHERE id = ? AND organization_id = ?`, id, orgID))
}
