package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Scheduled message states.
const (
	ScheduledPending   = "pending"
	ScheduledSending   = "sending"
	ScheduledSent      = "sent"
	ScheduledFailed    = "failed"
	ScheduledCancelled = "cancelled"
)

// ErrNotPending is returned when cancelling a message that already left the queue.
var ErrNotPending = errors.New("scheduled message is no longer pending")

// ScheduledMessage is a text to deliver at SendAt to one group or to every
// group of a category.
type ScheduledMessage struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	GroupID        *string    `db:"group_id" json:"group_id,omitempty"`
	CategoryID     *string    `db:"category_id" json:"category_id,omitempty"`
	Text           string     `db:"text" json:"text"`
	SendAt         time.Time  `db:"send_at" json:"send_at"`
	Status         string     `db:"status" json:"status"`
	Attempts       int        `db:"attempts" json:"attempts"`
	LastError      string     `db:"last_error" json:"last_error,omitempty"`
	SentAt         *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	ClaimedAt      *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
	CreatedBy      string     `db:"created_by" json:"created_by"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

const scheduledColumns = `id, organization_id, group_id, category_id, text, send_at, status, attempts, last_error, sent_at, claimed_at, created_by, created_at`

// CreateScheduledMessage queues a message as pending.
func (db *DB) CreateScheduledMessage(ctx context.Context, m *ScheduledMessage) error {
	if (m.GroupID == nil) == (m.CategoryID == nil) {
		return errors.New("exactly one of group or category is required")
	}
	m.ID = uuid.NewString()
	m.Status = ScheduledPending
	m.SendAt = m.SendAt.UTC()
	m.CreatedAt = now()
	_, err := db.exec(ctx,
		`INSERT INTO scheduled_messages (id, organization_id, group_id, category_id, text, send_at, status, attempts, last_error, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)`,
		m.ID, m.OrganizationID, m.GroupID, m.CategoryID, m.Text, m.SendAt, m.Status, m.CreatedBy, m.CreatedAt,
	)
	return err
}

// ListScheduledMessages returns the organization's messages ordered by send
// time, optionally filtered by status.
func (db *DB) ListScheduledMessages(ctx context.Context, orgID, status string) ([]ScheduledMessage, error) {
	query := `SELECT ` + scheduledColumns + ` FROM scheduled_messages WHERE organization_id = ?`
	args := []any{orgID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY send_at ASC`
	out := []ScheduledMessage{}
	err := db.selectAll(ctx, &out, query, args...)
	return out, err
}

// GetScheduledMessage returns a message scoped to orgID.
func (db *DB) GetScheduledMessage(ctx context.Context, orgID, id string) (*ScheduledMessage, error) {
	var m ScheduledMessage
	if err := db.get(ctx, &m, `SELECT `+scheduledColumns+` FROM scheduled_messages WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, err
	}
	return &m, nil
}

// CancelScheduledMessage cancels a pending message.
func (db *DB) CancelScheduledMessage(ctx context.Context, orgID, id string) error {
	m, err := db.GetScheduledMessage(ctx, orgID, id)
	if err != nil {
		return err
	}
	if m.Status != ScheduledPending {
		return ErrNotPending
	}
	err = affectedOrNotFound(db.exec(ctx,
		`UPDATE scheduled_messages SET status = ? WHERE id = ? AND organization_id = ? AND status = ?`,
		ScheduledCancelled, id, orgID, ScheduledPending,
	))
	if errors.Is(err, ErrNotFound) {
		return ErrNotPending
	}
	return err
}

// ClaimDueMessages moves up to limit pending messages whose send time has
// passed into "sending" and returns them. The conditional UPDATE makes a row
// claimable by exactly one runner.
func (db *DB) ClaimDueMessages(ctx context.Context, at time.Time, limit int) ([]ScheduledMessage, error) {
	var due []ScheduledMessage
	if err := db.selectAll(ctx, &due,
		`SELECT `+scheduledColumns+` FROM scheduled_messages WHERE status = ? AND send_at <= ? ORDER BY send_at ASC LIMIT ?`,
		ScheduledPending, at.UTC(), limit); err != nil {
		return nil, err
	}
	claimed := due[:0]
	claimedAt := now()
	for _, m := range due {
		res, err := db.exec(ctx,
			`UPDATE scheduled_messages SET status = ?, attempts = attempts + 1, claimed_at = ? WHERE id = ? AND status = ?`,
			ScheduledSending, claimedAt, m.ID, ScheduledPending)
		if err != nil {
			return claimed, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			m.Status = ScheduledSending
			m.Attempts++
			m.ClaimedAt = &claimedAt
			claimed = append(claimed, m)
		}
	}
	return claimed, nil
}

// MarkScheduledSent records a successful delivery.
func (db *DB) MarkScheduledSent(ctx context.Context, id string) error {
	_, err := db.exec(ctx, `UPDATE scheduled_messages SET status = ?, sent_at = ?, last_error = '' WHERE id = ?`,
		ScheduledSent, now(), id)
	return err
}

// MarkScheduledFailed records a failed delivery.
func (db *DB) MarkScheduledFailed(ctx context.Context, id, reason string) error {
	_, err := db.exec(ctx, `UPDATE scheduled_messages SET status = ?, last_error = ? WHERE id = ?`,
		ScheduledFailed, reason, id)
	return err
}

// InterruptedReason is recorded on messages whose delivery was claimed but never
// confirmed, e.g. because the process stopped mid-send.
const InterruptedReason = "interrupted before delivery was confirmed"

// FailStaleClaims fails messages left in "sending" by a claim older than
// before and returns how many were moved.
func (db *DB) FailStaleClaims(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.exec(ctx,
		`UPDATE scheduled_messages SET status = ?, last_error = ? WHERE status = ? AND claimed_at < ?`,
		ScheduledFailed, InterruptedReason, ScheduledSending, before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "fail stale claims")
	}
	return res.RowsAffected()
}
