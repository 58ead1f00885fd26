package out

import (
	"context"
	"time"

	"inbox_server/core/domain"
)

// MessageRef identifies a message returned by a listing.
type MessageRef struct {
	ID       string
	ThreadID string
}

// Header is one message header.
type Header struct {
	Name  string
	Value string
}

// RawMessage is a provider payload before normalization.
type RawMessage struct {
	ID           string
	ThreadID     string
	InternalDate int64 // ms since epoch, 0 when absent
	LabelIDs     []string
	Snippet      string
	Headers      []Header
}

// MessageFetcher reads messages from the mail provider. Implementations do not retry.
type MessageFetcher interface {
	ListRecent(ctx context.Context, accessToken string, max int) ([]MessageRef, error)
	GetFull(ctx context.Context, accessToken string, ref MessageRef) (*RawMessage, error)
}

// TokenGrant is the result of a refresh-token exchange.
// RefreshToken is empty when the provider did not rotate it.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	Expiry       time.Time
}

// TokenEndpoint exchanges a refresh token for a new access token.
type TokenEndpoint interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error)
}

// Identity is the provider profile of a connecting user.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// OAuthProvider runs the authorization-code flow.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*TokenGrant, error)
	UserInfo(ctx context.Context, accessToken string) (*Identity, error)
}

// OAuthStateStore holds one-time CSRF states for the connect flow.
type OAuthStateStore interface {
	Store(ctx context.Context, state string, ttl time.Duration) error
	// Consume reports whether the state existed and removes it.
	Consume(ctx context.Context, state string) (bool, error)
}

// MailWatcher registers push notifications for a mailbox.
type MailWatcher interface {
	Watch(ctx context.Context, accessToken, topic string, labelIDs []string) (*domain.WatchResult, error)
}

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenRevoked ProviderErrorCode = "token_revoked"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrTimeout      ProviderErrorCode = "timeout"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrCircuitOpen  ProviderErrorCode = "circuit_open"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
)

// ProviderError is a failure from a remote provider.
// Kind is the taxonomy sentinel it maps to, so errors.Is works against both Err and Kind.
type ProviderError struct {
	Provider   string
	Code       ProviderErrorCode
	StatusCode int
	Message    string
	Err        error
	Kind       error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	return errs
}

// NewProviderError creates a provider error. A nil kind means ErrProviderUnavailable.
func NewProviderError(provider string, code ProviderErrorCode, status int, message string, err, kind error) *ProviderError {
	if kind == nil {
		kind = domain.ErrProviderUnavailable
	}
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		StatusCode: status,
		Message:    message,
		Err:        err,
		Kind:       kind,
	}
}
