package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/wagroups/wagroups/internal/core"
)

// ErrInvalidCredentials is returned when an API key does not verify.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Organization is a tenant.
type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// APIKey is an external credential bound to one user within one organization.
type APIKey struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	UserID         string     `db:"user_id" json:"user_id"`
	Name           string     `db:"name" json:"name"`
	SecretHash     string     `db:"secret_hash" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt     *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}

// CreateOrganization inserts the organization and its owner membership.
func (db *DB) CreateOrganization(ctx context.Context, name, ownerUserID string) (*Organization, error) {
	org := &Organization{ID: uuid.NewString(), Name: name, CreatedAt: now()}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, db.Rebind(`INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)`),
		org.ID, org.Name, org.CreatedAt); err != nil {
		return nil, errors.Wrap(err, "insert organization")
	}
	if _, err := tx.ExecContext(ctx, db.Rebind(`INSERT INTO organization_members (organization_id, user_id, role, created_at) VALUES (?, ?, 'owner', ?)`),
		org.ID, ownerUserID, org.CreatedAt); err != nil {
		return nil, errors.Wrap(err, "insert owner membership")
	}
	return org, tx.Commit()
}

// AddMember adds userID to the organization; re-adding updates the role.
func (db *DB) AddMember(ctx context.Context, orgID, userID, role string) error {
	_, err := db.exec(ctx,
		`INSERT INTO organization_members (organization_id, user_id, role, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (organization_id, user_id) DO UPDATE SET role = excluded.role`,
		orgID, userID, role, now(),
	)
	return err
}

// IsMember reports whether userID belongs to orgID.
func (db *DB) IsMember(ctx context.Context, orgID, userID string) (bool, error) {
	var n int
	err := db.get(ctx, &n, `SELECT COUNT(*) FROM organization_members WHERE organization_id = ? AND user_id = ?`, orgID, userID)
	return n > 0, err
}

// CreateAPIKey mints a key for userID in orgID. The returned plaintext is
// "<id>.<secret>" and is not recoverable afterwards.
func (db *DB) CreateAPIKey(ctx context.Context, orgID, userID, name string) (string, *APIKey, error) {
	ok, err := db.IsMember(ctx, orgID, userID)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, errors.Wrapf(ErrNotFound, "user %s in organization %s", userID, orgID)
	}
	secret := shortuuid.New() + shortuuid.New()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, errors.Wrap(err, "hash api key")
	}
	key := &APIKey{
		ID:             "wgk_" + shortuuid.New(),
		OrganizationID: orgID,
		UserID:         userID,
		Name:           name,
		SecretHash:     string(hash),
		CreatedAt:      now(),
	}
	_, err = db.exec(ctx,
		`INSERT INTO api_keys (id, organization_id, user_id, name, secret_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		key.ID, key.OrganizationID, key.UserID, key.Name, key.SecretHash, key.CreatedAt,
	)
	if err != nil {
		return "", nil, errors.Wrap(err, "insert api key")
	}
	return key.ID + "." + secret, key, nil
}

// AuthenticateAPIKey verifies a presented "<id>.<secret>" key and returns the
// identity it is bound to.
func (db *DB) AuthenticateAPIKey(ctx context.Context, presented string) (core.Caller, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(presented), ".")
	if !ok || id == "" || secret == "" {
		return core.Caller{}, ErrInvalidCredentials
	}
	var key APIKey
	if err := db.get(ctx, &key,
		`SELECT id, organization_id, user_id, name, secret_hash, created_at, last_used_at FROM api_keys WHERE id = ?`, id,
	); err != nil {
		if errors.Is(err, ErrNotFound) {
			return core.Caller{}, ErrInvalidCredentials
		}
		return core.Caller{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)) != nil {
		return core.Caller{}, ErrInvalidCredentials
	}
	// The key is valid; a failed bookkeeping write does not reject it.
	if _, err := db.exec(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now(), key.ID); err != nil {
		zap.L().Warn("record api key use", zap.String("key_id", key.ID), zap.Error(err))
	}
	return core.Caller{UserID: key.UserID, OrganizationID: key.OrganizationID}, nil
}
