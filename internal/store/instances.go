package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// Instance is a WhatsApp number connected through UAZAPI.
type Instance struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	ProviderToken  string    `db:"provider_token" json:"-"`
	WebhookSecret  string    `db:"webhook_secret" json:"-"`
	Status         string    `db:"status" json:"status"`
	Phone          string    `db:"phone" json:"phone,omitempty"`
	QRCode         string    `db:"qr_code" json:"qr_code,omitempty"`
	PairCode       string    `db:"pair_code" json:"pair_code,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Connection is the provider-reported state of an instance.
type Connection struct {
	Status   string
	Phone    string
	QRCode   string
	PairCode string
}

const instanceColumns = `id, organization_id, name, provider_token, webhook_secret, status, phone, qr_code, pair_code, created_at, updated_at`

// CreateInstance stores a provisioned instance. ID and WebhookSecret are
// filled when empty.
func (db *DB) CreateInstance(ctx context.Context, inst *Instance) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.WebhookSecret == "" {
		inst.WebhookSecret = shortuuid.New()
	}
	if inst.Status == "" {
		inst.Status = "created"
	}
	inst.CreatedAt = now()
	inst.UpdatedAt = inst.CreatedAt
	_, err := db.exec(ctx,
		`INSERT INTO whatsapp_instances (`+instanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.OrganizationID, inst.Name, inst.ProviderToken, inst.WebhookSecret, inst.Status,
		inst.Phone, inst.QRCode, inst.PairCode, inst.CreatedAt, inst.UpdatedAt,
	)
	return err
}

// ListInstances returns the organization's instances, newest first.
func (db *DB) ListInstances(ctx context.Context, orgID string) ([]Instance, error) {
	out := []Instance{}
	err := db.selectAll(ctx, &out,
		`SELECT `+instanceColumns+` FROM whatsapp_instances WHERE organization_id = ? ORDER BY created_at DESC`, orgID)
	return out, err
}

// GetInstance returns an instance scoped to orgID.
func (db *DB) GetInstance(ctx context.Context, orgID, id string) (*Instance, error) {
	var inst Instance
	if err := db.get(ctx, &inst,
		`SELECT `+instanceColumns+` FROM whatsapp_instances WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetInstanceByID looks an instance up without tenant scoping. Only for
// provider webhooks, which authenticate with the instance's webhook secret.
func (db *DB) GetInstanceByID(ctx context.Context, id string) (*Instance, error) {
	var inst Instance
	if err := db.get(ctx, &inst, `SELECT `+instanceColumns+` FROM whatsapp_instances WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &inst, nil
}

// UpdateInstanceConnection records the latest provider-reported state.
func (db *DB) UpdateInstanceConnection(ctx context.Context, id string, c Connection) error {
	return affectedOrNotFound(db.exec(ctx,
		`UPDATE whatsapp_instances SET status = ?, phone = ?, qr_code = ?, pair_code = ?, updated_at = ? WHERE id = ?`,
		c.Status, c.Phone, c.QRCode, c.PairCode, now(), id,
	))
}
