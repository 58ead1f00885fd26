package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/logger"
)

// DefaultRefreshMargin is how long before expiry a token is considered stale.
const DefaultRefreshMargin = 60 * time.Second

// TokenRefresher keeps an account's access token usable.
// It is not locked itself; callers hold the per-account lock around EnsureValid
// so two refreshes for one account never interleave.
type TokenRefresher struct {
	credentials out.CredentialRepository
	endpoint    out.TokenEndpoint
	margin      time.Duration
	now         func() time.Time
}

func NewTokenRefresher(credentials out.CredentialRepository, endpoint out.TokenEndpoint, margin time.Duration) *TokenRefresher {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &TokenRefresher{
		credentials: credentials,
		endpoint:    endpoint,
		margin:      margin,
		now:         time.Now,
	}
}

// SetClock overrides the time source (for tests).
func (r *TokenRefresher) SetClock(now func() time.Time) {
	r.now = now
}

// EnsureValid returns a usable access token, refreshing and persisting the credential
// in place when the stored token expires within the margin.
//
// Errors match domain.ErrCredentialInvalid when the grant is unusable and
// domain.ErrProviderUnavailable on transient failures.
func (r *TokenRefresher) EnsureValid(ctx context.Context, cred *domain.Credential) (string, error) {
	if cred == nil {
		return "", fmt.Errorf("no credential: %w", domain.ErrCredentialInvalid)
	}
	if cred.ValidFor(r.now(), r.margin) {
		return cred.AccessToken, nil
	}
	if cred.RefreshToken == "" {
		return "", fmt.Errorf("account %d has no refresh token: %w", cred.AccountID, domain.ErrCredentialInvalid)
	}

	grant, err := r.endpoint.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialInvalid) {
			logger.WithField("account_id", cred.AccountID).WithError(err).
				Warn("[TokenRefresher] refresh token rejected, account needs reconnection")
			return "", err
		}
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
		}
		return "", err
	}
	if grant == nil || grant.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token: %w", domain.ErrProviderUnavailable)
	}

	expiry := grant.Expiry
	if expiry.IsZero() {
		// Google always sends expires_in; treat a missing one as a short-lived token.
		expiry = r.now().Add(r.margin * 2)
	}
	cred.ApplyGrant(grant.AccessToken, grant.RefreshToken, grant.TokenType, grant.Scope, expiry)

	if err := r.credentials.Rotate(ctx, cred); err != nil {
		return "", fmt.Errorf("persist refreshed credential for account %d: %w", cred.AccountID, err)
	}

	logger.WithFields(map[string]any{
		"account_id":      cred.AccountID,
		"expires_at":      cred.ExpiresAt,
		"refresh_rotated": grant.RefreshToken != "",
	}).Info("[TokenRefresher] access token refreshed")

	return cred.AccessToken, nil
}
