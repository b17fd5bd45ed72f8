package access

import (
	"context"

	"github.com/rs/zerolog/log"

	apiContext "compass/internal/api/context"
	"compass/internal/pkg/errors"
	"compass/internal/platform/auth"
	"compass/internal/platform/config"
	"compass/internal/platform/directory"
)

// Guard resolves the calling principal and gates privileged operations.
// Identity always comes from verified session claims plus the user
// directory; client-supplied headers are never consulted.
type Guard struct {
	directory *directory.Directory
	identity  directory.IdentityProvider
	cfg       config.AccessConfig
}

func NewGuard(dir *directory.Directory, identity directory.IdentityProvider, cfg config.AccessConfig) *Guard {
	return &Guard{directory: dir, identity: identity, cfg: cfg}
}

// RequireAdmin resolves the principal from the request context and fails
// unless it is an admin. Callers short-circuit on error so the guarded
// operation never runs.
func (g *Guard) RequireAdmin(ctx context.Context) (*directory.Principal, error) {
	principal, err := g.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if principal == nil || !principal.IsAdmin {
		return nil, errors.ErrForbidden
	}

	if g.cfg.RequireTwoFactor {
		status, err := g.identity.TwoFactorStatus(ctx, principal.ExternalID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", principal.ID).Msg("2fa status lookup failed")
			return nil, errors.ErrForbidden
		}
		if !status.Enabled {
			return nil, errors.ErrForbidden
		}
	}

	return principal, nil
}

// CheckIsAdmin is the non-throwing variant for UI gating, e.g. whether
// to render an admin nav link. It must never be the sole guard for a
// privileged write.
func (g *Guard) CheckIsAdmin(ctx context.Context) *directory.Principal {
	principal, err := g.resolve(ctx)
	if err != nil || principal == nil || !principal.IsAdmin {
		return nil
	}
	return principal
}

// TwoFactorStatus exposes the identity provider's second-factor state.
// By default this is advisory: admins without 2FA get a warning banner,
// not a denial. access.require_two_factor flips that policy.
func (g *Guard) TwoFactorStatus(ctx context.Context, externalID string) (*directory.TwoFactorStatus, error) {
	return g.identity.TwoFactorStatus(ctx, externalID)
}

func (g *Guard) resolve(ctx context.Context) (*directory.Principal, error) {
	claims, ok := ctx.Value(apiContext.Claims).(*auth.Claims)
	if !ok || claims == nil {
		return nil, errors.ErrUnauthorized
	}

	principal, err := g.directory.Resolve(claims.UserID)
	if err != nil {
		return nil, err
	}
	return principal, nil
}
