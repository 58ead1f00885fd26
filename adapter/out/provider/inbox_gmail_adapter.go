package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	providerGmail       = "gmail"
	DefaultFetchTimeout = 30 * time.Second
)

// GmailAdapter reads messages and registers watches. It never retries.
type GmailAdapter struct {
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	opts    []option.ClientOption
}

// GmailOption customizes the adapter.
type GmailOption func(*GmailAdapter)

// WithEndpoint points the client at another base URL.
func WithEndpoint(url string) GmailOption {
	return func(a *GmailAdapter) {
		a.opts = append(a.opts, option.WithEndpoint(url))
	}
}

// WithHTTPClient sets the underlying transport client.
func WithHTTPClient(c *http.Client) GmailOption {
	return func(a *GmailAdapter) {
		a.opts = append(a.opts, option.WithHTTPClient(c))
	}
}

// NewGmailAdapter creates a Gmail adapter with a per-call timeout.
func NewGmailAdapter(timeout time.Duration, opts ...GmailOption) *GmailAdapter {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	a := &GmailAdapter{
		timeout: timeout,
		cb:      newBreaker("gmail-api"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var (
	_ out.MessageFetcher = (*GmailAdapter)(nil)
	_ out.MailWatcher    = (*GmailAdapter)(nil)
)

func (a *GmailAdapter) service(ctx context.Context, accessToken string) (*gmail.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := append([]option.ClientOption{option.WithTokenSource(src)}, a.opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, out.NewProviderError(providerGmail, out.ProviderErrInvalidInput, 0, "failed to create client", err, nil)
	}
	return svc, nil
}

// ListRecent lists up to max message ids, newest first.
func (a *GmailAdapter) ListRecent(ctx context.Context, accessToken string, max int) ([]out.MessageRef, error) {
	if max <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	svc, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := execute(a.cb, func() (*gmail.ListMessagesResponse, error) {
		return svc.Users.Messages.List("me").MaxResults(int64(max)).Context(ctx).Do()
	})
	if err != nil {
		return nil, wrapError(err, "failed to list messages")
	}

	refs := make([]out.MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.Id == "" {
			continue
		}
		refs = append(refs, out.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
		if len(refs) == max {
			break
		}
	}
	return refs, nil
}

// GetFull fetches one message in full format.
func (a *GmailAdapter) GetFull(ctx context.Context, accessToken string, ref out.MessageRef) (*out.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	svc, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	msg, err := execute(a.cb, func() (*gmail.Message, error) {
		return svc.Users.Messages.Get("me", ref.ID).Format("full").Context(ctx).Do()
	})
	if err != nil {
		return nil, wrapError(err, "failed to get message")
	}
	return convertMessage(msg, ref), nil
}

// Watch registers push notifications to topic for the given labels.
func (a *GmailAdapter) Watch(ctx context.Context, accessToken, topic string, labelIDs []string) (*domain.WatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	svc, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	req := &gmail.WatchRequest{TopicName: topic, LabelIds: labelIDs}
	resp, err := execute(a.cb, func() (*gmail.WatchResponse, error) {
		return svc.Users.Watch("me", req).Context(ctx).Do()
	})
	if err != nil {
		return nil, wrapError(err, "failed to setup watch")
	}

	return &domain.WatchResult{
		HistoryID:  resp.HistoryId,
		Expiration: time.UnixMilli(resp.Expiration).UTC(),
	}, nil
}

// State reports the breaker state for health output.
func (a *GmailAdapter) State() string {
	return a.cb.State().String()
}

func convertMessage(msg *gmail.Message, ref out.MessageRef) *out.RawMessage {
	raw := &out.RawMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		InternalDate: msg.InternalDate,
		LabelIDs:     msg.LabelIds,
		Snippet:      msg.Snippet,
	}
	if raw.ID == "" {
		raw.ID = ref.ID
	}
	if raw.ThreadID == "" {
		raw.ThreadID = ref.ThreadID
	}
	if msg.Payload != nil {
		raw.Headers = make([]out.Header, 0, len(msg.Payload.Headers))
		for _, h := range msg.Payload.Headers {
			if h == nil {
				continue
			}
			raw.Headers = append(raw.Headers, out.Header{Name: h.Name, Value: h.Value})
		}
	}
	return raw
}

// wrapError maps every failure to a ProviderError of kind ProviderUnavailable.
func wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return out.NewProviderError(providerGmail, out.ProviderErrCircuitOpen, 0, "circuit open", err, nil)
	case errors.Is(err, context.DeadlineExceeded):
		return out.NewProviderError(providerGmail, out.ProviderErrTimeout, 0, "request timed out", err, nil)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		code := out.ProviderErrServer
		msg := defaultMsg
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			code, msg = out.ProviderErrAuth, "access token rejected"
		case apiErr.Code == http.StatusForbidden:
			code, msg = out.ProviderErrAuth, "access denied"
		case apiErr.Code == http.StatusNotFound:
			code, msg = out.ProviderErrNotFound, "not found"
		case apiErr.Code == http.StatusTooManyRequests:
			code, msg = out.ProviderErrRateLimit, "too many requests"
		case apiErr.Code >= 400 && apiErr.Code < 500:
			code = out.ProviderErrInvalidInput
		}
		return out.NewProviderError(providerGmail, code, apiErr.Code, msg, err, nil)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return out.NewProviderError(providerGmail, out.ProviderErrTimeout, 0, "request timed out", err, nil)
	}
	return out.NewProviderError(providerGmail, out.ProviderErrNetwork, 0, defaultMsg, err, nil)
}
