package models

// RateLimit is the per-key quota over the two fixed windows.
type RateLimit struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	RequestsPerDay    int `json:"requests_per_day"`
}

// APIKey is the stored credential record. KeyHash is the argon2id digest
// of the full secret; the plaintext exists only transiently at creation
// and is never persisted. Records are soft-lifecycle only: revocation is
// terminal, nothing is ever deleted.
type APIKey struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	KeyPrefix     string    `json:"key_prefix"`
	KeyHash       string    `json:"-"`
	Permissions   []string  `json:"permissions"` // JSON array in DB
	RateLimit     RateLimit `json:"rate_limit"`
	IsActive      bool      `json:"is_active"`
	UsageCount    int64     `json:"usage_count"`
	LastUsedAt    *int64    `json:"last_used_at,omitempty"`
	LastUsedIP    string    `json:"last_used_ip,omitempty"`
	ExpiresAt     *int64    `json:"expires_at,omitempty"`
	CreatedAt     int64     `json:"created_at"`
	RevokedAt     *int64    `json:"revoked_at,omitempty"`
	RevokedReason string    `json:"revoked_reason,omitempty"`
}

// Usable reports whether the key may authenticate requests at the given
// wall-clock instant (unix seconds). Expiry is evaluated here, never
// cached as stored state.
func (k *APIKey) Usable(now int64) bool {
	if !k.IsActive || k.RevokedAt != nil {
		return false
	}
	if k.ExpiresAt != nil && now >= *k.ExpiresAt {
		return false
	}
	return true
}
