package keys

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"compass/internal/pkg/errors"
	"compass/internal/platform/audit"
	"compass/internal/platform/config"
	"compass/internal/platform/models"
	"compass/internal/platform/repositories"
)

const (
	defaultExpiryDays = 365
	defaultPerMinute  = 60
	defaultPerDay     = 10000
)

// Issuer owns the API-key lifecycle: creation with the one-time secret
// reveal, and terminal revocation.
type Issuer struct {
	repo  *repositories.APIKeyRepository
	audit *audit.Logger
	cfg   config.APIKeysConfig
	clock clockwork.Clock
}

func NewIssuer(repo *repositories.APIKeyRepository, auditLog *audit.Logger, cfg config.APIKeysConfig) *Issuer {
	return NewIssuerWithClock(repo, auditLog, cfg, clockwork.NewRealClock())
}

func NewIssuerWithClock(repo *repositories.APIKeyRepository, auditLog *audit.Logger, cfg config.APIKeysConfig, clock clockwork.Clock) *Issuer {
	// Unset config values fall back to the stock defaults.
	if cfg.DefaultExpiryDays == 0 {
		cfg.DefaultExpiryDays = defaultExpiryDays
	}
	if cfg.DefaultPerMinute == 0 {
		cfg.DefaultPerMinute = defaultPerMinute
	}
	if cfg.DefaultPerDay == 0 {
		cfg.DefaultPerDay = defaultPerDay
	}
	return &Issuer{repo: repo, audit: auditLog, cfg: cfg, clock: clock}
}

type CreateParams struct {
	Name        string
	Description string
	Permissions []string
	// ExpiresInDays: nil defaults to 365; a non-nil zero means the key
	// never expires.
	ExpiresInDays *int
	RateLimit     *models.RateLimit
}

// CreatedKey pairs the stored record with the plaintext secret. This is
// the only moment the plaintext exists outside the caller's hands; the
// record keeps just the prefix and the digest.
type CreatedKey struct {
	Key         *models.APIKey `json:"key"`
	PlainSecret string         `json:"plain_secret"`
}

func (i *Issuer) Create(ctx context.Context, userID string, params CreateParams) (*CreatedKey, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, errors.NewValidationError("name", "must not be empty")
	}

	plaintext, prefix, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	hash, err := HashSecret(plaintext)
	if err != nil {
		return nil, err
	}

	now := i.clock.Now().Unix()

	rateLimit := models.RateLimit{RequestsPerMinute: i.cfg.DefaultPerMinute, RequestsPerDay: i.cfg.DefaultPerDay}
	if params.RateLimit != nil {
		rateLimit = *params.RateLimit
	}

	expiryDays := i.cfg.DefaultExpiryDays
	if params.ExpiresInDays != nil {
		expiryDays = *params.ExpiresInDays
	}
	var expiresAt *int64
	if expiryDays > 0 {
		exp := now + int64(expiryDays)*86400
		expiresAt = &exp
	}

	permissions := params.Permissions
	if permissions == nil {
		permissions = []string{}
	}

	key := &models.APIKey{
		ID:          "key_" + uuid.New().String(),
		UserID:      userID,
		Name:        params.Name,
		Description: params.Description,
		KeyPrefix:   prefix,
		KeyHash:     hash,
		Permissions: permissions,
		RateLimit:   rateLimit,
		IsActive:    true,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}

	if err := i.repo.Create(key); err != nil {
		return nil, err
	}

	i.audit.Record(ctx, audit.Event{
		Action:       audit.ActionKeyCreated,
		PerformedBy:  userID,
		Severity:     audit.SeverityInfo,
		ResourceType: "api_key",
		ResourceID:   key.ID,
		Description:  "API key created: " + key.Name,
		Metadata:     map[string]interface{}{"key_prefix": key.KeyPrefix},
	})

	return &CreatedKey{Key: key, PlainSecret: plaintext}, nil
}

func (i *Issuer) Get(keyID string) (*models.APIKey, error) {
	key, err := i.repo.GetByID(keyID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, errors.ErrNotFound
	}
	return key, nil
}

// Revoke is idempotent: revoking an already-revoked key returns the
// existing terminal record, original timestamp and reason intact.
func (i *Issuer) Revoke(ctx context.Context, keyID, actorID, reason string) (*models.APIKey, error) {
	key, err := i.repo.GetByID(keyID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, errors.ErrNotFound
	}
	if key.RevokedAt != nil {
		return key, nil
	}

	if err := i.repo.Revoke(keyID, reason, i.clock.Now().Unix()); err != nil {
		return nil, err
	}

	key, err = i.repo.GetByID(keyID)
	if err != nil {
		return nil, err
	}

	i.audit.Record(ctx, audit.Event{
		Action:       audit.ActionKeyRevoked,
		PerformedBy:  actorID,
		TargetUserID: key.UserID,
		Severity:     audit.SeverityWarn,
		ResourceType: "api_key",
		ResourceID:   key.ID,
		Description:  "API key revoked: " + key.Name,
		Metadata:     map[string]interface{}{"reason": reason},
	})

	return key, nil
}

func (i *Issuer) List(userID string) ([]*models.APIKey, error) {
	keys, err := i.repo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	return keys, nil
}
