package repositories

import (
	"database/sql"
	"encoding/json"

	"compass/internal/platform/models"
)

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, user_id, name, description, key_prefix, key_hash, permissions,
	requests_per_minute, requests_per_day, is_active, usage_count,
	last_used_at, last_used_ip, expires_at, created_at, revoked_at, revoked_reason`

func (r *APIKeyRepository) Create(key *models.APIKey) error {
	permsJSON, err := json.Marshal(key.Permissions)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO api_keys (id, user_id, name, description, key_prefix, key_hash, permissions,
			requests_per_minute, requests_per_day, is_active, usage_count, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, key.ID, key.UserID, key.Name, key.Description, key.KeyPrefix, key.KeyHash, string(permsJSON),
		key.RateLimit.RequestsPerMinute, key.RateLimit.RequestsPerDay, key.IsActive, key.CreatedAt, key.ExpiresAt)
	return err
}

func (r *APIKeyRepository) scanKey(scan func(dest ...interface{}) error) (*models.APIKey, error) {
	var k models.APIKey
	var permsStr string
	var lastUsedAt, expiresAt, revokedAt sql.NullInt64
	var lastUsedIP, revokedReason sql.NullString

	err := scan(&k.ID, &k.UserID, &k.Name, &k.Description, &k.KeyPrefix, &k.KeyHash, &permsStr,
		&k.RateLimit.RequestsPerMinute, &k.RateLimit.RequestsPerDay, &k.IsActive, &k.UsageCount,
		&lastUsedAt, &lastUsedIP, &expiresAt, &k.CreatedAt, &revokedAt, &revokedReason)
	if err != nil {
		return nil, err
	}

	if lastUsedAt.Valid {
		k.LastUsedAt = &lastUsedAt.Int64
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Int64
	}
	if revokedAt.Valid {
		k.RevokedAt = &revokedAt.Int64
	}
	k.LastUsedIP = lastUsedIP.String
	k.RevokedReason = revokedReason.String

	json.Unmarshal([]byte(permsStr), &k.Permissions)

	return &k, nil
}

func (r *APIKeyRepository) GetByID(id string) (*models.APIKey, error) {
	row := r.db.QueryRow(`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`, id)
	key, err := r.scanKey(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return key, nil
}

// ListByPrefix returns candidate records sharing a displayable prefix.
// The caller verifies the full secret against each candidate's hash.
func (r *APIKeyRepository) ListByPrefix(prefix string) ([]*models.APIKey, error) {
	rows, err := r.db.Query(`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = ?`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		key, err := r.scanKey(rows.Scan)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) ListByUser(userID string) ([]*models.APIKey, error) {
	rows, err := r.db.Query(`SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		key, err := r.scanKey(rows.Scan)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Revoke marks a key terminal. The WHERE clause guards the first writer:
// a second revoke matches zero rows and the original timestamp and reason
// survive.
func (r *APIKeyRepository) Revoke(id, reason string, at int64) error {
	_, err := r.db.Exec(`
		UPDATE api_keys SET revoked_at = ?, revoked_reason = ?, is_active = 0
		WHERE id = ? AND revoked_at IS NULL
	`, at, reason, id)
	return err
}

// RecordUsage bumps the usage counter and stamps last-used metadata in a
// single statement, so concurrent validations never lose an increment.
func (r *APIKeyRepository) RecordUsage(id, sourceIP string, at int64) error {
	_, err := r.db.Exec(`
		UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = ?, last_used_ip = ?
		WHERE id = ?
	`, at, sourceIP, id)
	return err
}
