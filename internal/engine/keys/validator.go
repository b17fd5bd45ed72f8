package keys

import (
	"context"

	"github.com/jonboulle/clockwork"

	"compass/internal/engine/ratelimit"
	"compass/internal/pkg/errors"
	"compass/internal/platform/repositories"
)

// Claims is what a successfully authenticated credential grants.
type Claims struct {
	UserID      string   `json:"user_id"`
	KeyID       string   `json:"key_id"`
	Permissions []string `json:"permissions"`
}

// Validator is the full authentication contract for programmatic
// requests: prefix lookup, constant-time verify, usability check, quota
// admit, usage bump.
type Validator struct {
	repo    *repositories.APIKeyRepository
	limiter *ratelimit.Limiter
	clock   clockwork.Clock
}

func NewValidator(repo *repositories.APIKeyRepository, limiter *ratelimit.Limiter) *Validator {
	return &Validator{repo: repo, limiter: limiter, clock: clockwork.NewRealClock()}
}

func NewValidatorWithClock(repo *repositories.APIKeyRepository, limiter *ratelimit.Limiter, clock clockwork.Clock) *Validator {
	return &Validator{repo: repo, limiter: limiter, clock: clock}
}

func (v *Validator) Validate(ctx context.Context, presentedSecret, sourceIP string) (*Claims, error) {
	candidates, err := v.repo.ListByPrefix(Prefix(presentedSecret))
	if err != nil {
		return nil, err
	}

	for _, key := range candidates {
		match, err := VerifySecret(presentedSecret, key.KeyHash)
		if err != nil || !match {
			continue
		}

		// Expiry is checked against wall-clock time now, not a cached
		// state transition.
		if !key.Usable(v.clock.Now().Unix()) {
			return nil, errors.ErrUnauthorized
		}

		decision, err := v.limiter.Admit(ctx, key.ID, ratelimit.Limits{
			PerMinute: key.RateLimit.RequestsPerMinute,
			PerDay:    key.RateLimit.RequestsPerDay,
		})
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			// Denied requests leave usage fields untouched.
			return nil, &errors.RateLimitError{RetryAfter: decision.RetryAfter}
		}

		if err := v.repo.RecordUsage(key.ID, sourceIP, v.clock.Now().Unix()); err != nil {
			return nil, err
		}

		return &Claims{UserID: key.UserID, KeyID: key.ID, Permissions: key.Permissions}, nil
	}

	return nil, errors.ErrUnauthorized
}
