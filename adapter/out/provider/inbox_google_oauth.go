package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const providerGoogleOAuth = "google-oauth"

// GoogleOAuthConfig holds the OAuth client registration.
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// GoogleOAuth is the token endpoint and the connect flow for Google accounts.
type GoogleOAuth struct {
	config  *oauth2.Config
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	opts    []option.ClientOption
}

// NewGoogleOAuth creates the adapter against accounts.google.com.
func NewGoogleOAuth(cfg GoogleOAuthConfig) *GoogleOAuth {
	return newGoogleOAuth(cfg, google.Endpoint)
}

func newGoogleOAuth(cfg GoogleOAuthConfig, endpoint oauth2.Endpoint, opts ...option.ClientOption) *GoogleOAuth {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				gmail.GmailReadonlyScope,
				"openid",
				oauth2api.UserinfoEmailScope,
				oauth2api.UserinfoProfileScope,
			},
			Endpoint: endpoint,
		},
		timeout: timeout,
		cb:      newBreaker("google-oauth"),
		opts:    opts,
	}
}

var (
	_ out.TokenEndpoint = (*GoogleOAuth)(nil)
	_ out.OAuthProvider = (*GoogleOAuth)(nil)
)

// AuthCodeURL returns the consent URL. Consent is forced so Google issues a refresh token.
func (g *GoogleOAuth) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a grant.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*out.TokenGrant, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	tok, err := execute(g.cb, func() (*oauth2.Token, error) {
		return g.config.Exchange(ctx, code)
	})
	if err != nil {
		return nil, wrapTokenError(err, "failed to exchange code")
	}
	return toGrant(tok, ""), nil
}

// Refresh exchanges a refresh token for a new access token.
func (g *GoogleOAuth) Refresh(ctx context.Context, refreshToken string) (*out.TokenGrant, error) {
	if refreshToken == "" {
		return nil, out.NewProviderError(providerGoogleOAuth, out.ProviderErrTokenRevoked, 0,
			"no refresh token", nil, domain.ErrCredentialInvalid)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	tok, err := execute(g.cb, func() (*oauth2.Token, error) {
		src := g.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		return src.Token()
	})
	if err != nil {
		return nil, wrapTokenError(err, "failed to refresh token")
	}
	return toGrant(tok, refreshToken), nil
}

// UserInfo resolves the Google profile behind an access token.
func (g *GoogleOAuth) UserInfo(ctx context.Context, accessToken string) (*out.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	svc, err := oauth2api.NewService(ctx, append([]option.ClientOption{option.WithTokenSource(src)}, g.opts...)...)
	if err != nil {
		return nil, out.NewProviderError(providerGoogleOAuth, out.ProviderErrInvalidInput, 0, "failed to create client", err, nil)
	}

	info, err := execute(g.cb, func() (*oauth2api.Userinfo, error) {
		return svc.Userinfo.Get().Context(ctx).Do()
	})
	if err != nil {
		return nil, wrapError(err, "failed to get userinfo")
	}
	if info.Id == "" || info.Email == "" {
		return nil, out.NewProviderError(providerGoogleOAuth, out.ProviderErrInvalidInput, 0, "incomplete userinfo", nil, nil)
	}
	return &out.Identity{Subject: info.Id, Email: info.Email, Name: info.Name}, nil
}

// toGrant drops a refresh token equal to the one sent, since the oauth2
// package copies the old one forward when the response omits it.
func toGrant(tok *oauth2.Token, sent string) *out.TokenGrant {
	grant := &out.TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if grant.RefreshToken == sent {
		grant.RefreshToken = ""
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		grant.Scope = scope
	}
	return grant
}

// wrapTokenError separates a rejected grant from a transient failure.
func wrapTokenError(err error, defaultMsg string) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}
		switch {
		case rErr.ErrorCode == "invalid_grant", rErr.ErrorCode == "invalid_client",
			rErr.ErrorCode == "unauthorized_client",
			status == http.StatusBadRequest, status == http.StatusUnauthorized:
			return out.NewProviderError(providerGoogleOAuth, out.ProviderErrTokenRevoked, status,
				"refresh token rejected", err, domain.ErrCredentialInvalid)
		}
		return out.NewProviderError(providerGoogleOAuth, out.ProviderErrServer, status, defaultMsg, err, nil)
	}

	perr := wrapError(err, defaultMsg)
	var pe *out.ProviderError
	if errors.As(perr, &pe) {
		pe.Provider = providerGoogleOAuth
	}
	return perr
}
