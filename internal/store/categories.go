package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Category groups WhatsApp groups for bulk targeting.
type Category struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	Color          string    `db:"color" json:"color,omitempty"`
	Description    string    `db:"description" json:"description,omitempty"`
	GroupCount     int       `db:"group_count" json:"group_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// CreateCategory inserts a category. ErrConflict when the name is taken.
func (db *DB) CreateCategory(ctx context.Context, c *Category) error {
	c.ID = uuid.NewString()
	c.CreatedAt = now()
	_, err := db.exec(ctx,
		`INSERT INTO categories (id, organization_id, name, color, description, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrganizationID, c.Name, c.Color, c.Description, c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(ErrConflict, "category %q", c.Name)
	}
	return err
}

// ListCategories returns the organization's categories with their group counts.
func (db *DB) ListCategories(ctx context.Context, orgID string) ([]Category, error) {
	out := []Category{}
	err := db.selectAll(ctx, &out,
		`SELECT c.id, c.organization_id, c.name, c.color, c.description, c.created_at,
			(SELECT COUNT(*) FROM whatsapp_groups g WHERE g.category_id = c.id) AS group_count
		 FROM categories c WHERE c.organization_id = ? ORDER BY c.name ASC`, orgID)
	return out, err
}

// GetCategory returns a category scoped to orgID.
func (db *DB) GetCategory(ctx context.Context, orgID, id string) (*Category, error) {
	var c Category
	if err := db.get(ctx, &c,
		`SELECT id, organization_id, name, color, description, created_at, 0 AS group_count
		 FROM categories WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCategory removes the category; member groups become uncategorized.
func (db *DB) DeleteCategory(ctx context.Context, orgID, id string) error {
	return affectedOrNotFound(db.exec(ctx, `DELETE FROM categories WHERE id = ? AND organization_id = ?`, id, orgID))
}
