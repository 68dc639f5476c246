package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Group is a WhatsApp group visible to one of the organization's instances.
type Group struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	InstanceID     string    `db:"instance_id" json:"instance_id"`
	JID            string    `db:"jid" json:"jid"`
	Name           string    `db:"name" json:"name"`
	Participants   int       `db:"participants" json:"participants"`
	CategoryID     *string   `db:"category_id" json:"category_id,omitempty"`
	SyncedAt       time.Time `db:"synced_at" json:"synced_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// GroupSnapshot is a group as reported by the provider during a sync.
type GroupSnapshot struct {
	JID          string
	Name         string
	Participants int
}

// GroupFilter narrows ListGroups. Empty fields do not filter.
type GroupFilter struct {
	OrganizationID string
	InstanceID     string
	CategoryID     string
	Search         string
	Limit          int
}

const groupColumns = `id, organization_id, instance_id, jid, name, participants, category_id, synced_at, created_at`

// UpsertGroups inserts new groups and refreshes name/participants of known
// ones, keyed by (instance, jid). Category assignments survive re-syncs.
func (db *DB) UpsertGroups(ctx context.Context, orgID, instanceID string, groups []GroupSnapshot) (int, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	ts := now()
	stmt := db.Rebind(`INSERT INTO whatsapp_groups (id, organization_id, instance_id, jid, name, participants, synced_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, jid) DO UPDATE SET
			name = excluded.name,
			participants = excluded.participants,
			synced_at = excluded.synced_at`)
	n := 0
	for _, g := range groups {
		if g.JID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt, uuid.NewString(), orgID, instanceID, g.JID, g.Name, g.Participants, ts, ts); err != nil {
			return 0, errors.Wrapf(err, "upsert group %s", g.JID)
		}
		n++
	}
	return n, tx.Commit()
}

// ListGroups returns groups matching f ordered by name.
func (db *DB) ListGroups(ctx context.Context, f GroupFilter) ([]Group, error) {
	where, args := []string{"organization_id = ?"}, []any{f.OrganizationID}
	if f.InstanceID != "" {
		where, args = append(where, "instance_id = ?"), append(args, f.InstanceID)
	}
	if f.CategoryID != "" {
		where, args = append(where, "category_id = ?"), append(args, f.CategoryID)
	}
	if f.Search != "" {
		where, args = append(where, "LOWER(name) LIKE ?"), append(args, "%"+strings.ToLower(f.Search)+"%")
	}
	query := `SELECT ` + groupColumns + ` FROM whatsapp_groups WHERE ` + strings.Join(where, " AND ") + ` ORDER BY name ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	out := []Group{}
	err := db.selectAll(ctx, &out, query, args...)
	return out, err
}

// GetGroup returns a group scoped to orgID.
func (db *DB) GetGroup(ctx context.Context, orgID, id string) (*Group, error) {
	var g Group
	if err := db.get(ctx, &g, `SELECT `+groupColumns+` FROM whatsapp_groups WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGroupByJID resolves a provider chat id on a given instance.
func (db *DB) GetGroupByJID(ctx context.Context, instanceID, jid string) (*Group, error) {
	var g Group
	if err := db.get(ctx, &g, `SELECT `+groupColumns+` FROM whatsapp_groups WHERE instance_id = ? AND jid = ?`, instanceID, jid); err != nil {
		return nil, err
	}
	return &g, nil
}

// SetGroupCategory assigns the group to categoryID, or clears it when nil.
// Both must belong to orgID.
func (db *DB) SetGroupCategory(ctx context.Context, orgID, groupID string, categoryID *string) error {
	if categoryID != nil {
		if _, err := db.GetCategory(ctx, orgID, *categoryID); err != nil {
			return errors.Wrap(err, "category")
		}
	}
	return affectedOrNotFound(db.exec(ctx,
		`UPDATE whatsapp_groups SET category_id = ? WHERE id = ? AND organization_id = ?`,
		categoryID, groupID, orgID,
	))
}
