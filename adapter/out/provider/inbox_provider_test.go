package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

func TestWrapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode out.ProviderErrorCode
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, out.ProviderErrAuth},
		{"forbidden", &googleapi.Error{Code: 403}, out.ProviderErrAuth},
		{"not found", &googleapi.Error{Code: 404}, out.ProviderErrNotFound},
		{"rate limit", &googleapi.Error{Code: 429}, out.ProviderErrRateLimit},
		{"bad request", &googleapi.Error{Code: 400}, out.ProviderErrInvalidInput},
		{"server", &googleapi.Error{Code: 503}, out.ProviderErrServer},
		{"timeout", fmt.Errorf("get: %w", context.DeadlineExceeded), out.ProviderErrTimeout},
		{"open breaker", gobreaker.ErrOpenState, out.ProviderErrCircuitOpen},
		{"network", errors.New("connection refused"), out.ProviderErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapError(tt.err, "failed")

			var pe *out.ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if pe.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, pe.Code)
			}
			if !errors.Is(err, domain.ErrProviderUnavailable) {
				t.Error("expected ErrProviderUnavailable")
			}
			if !errors.Is(err, tt.err) {
				t.Error("expected cause to be preserved")
			}
		})
	}
}

func TestWrapTokenError(t *testing.T) {
	retrieve := func(status int, code string) error {
		return &oauth2.RetrieveError{
			Response:  &http.Response{StatusCode: status},
			ErrorCode: code,
		}
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"invalid grant", retrieve(400, "invalid_grant"), domain.ErrCredentialInvalid},
		{"invalid client", retrieve(401, "invalid_client"), domain.ErrCredentialInvalid},
		{"bare 400", retrieve(400, ""), domain.ErrCredentialInvalid},
		{"server error", retrieve(500, ""), domain.ErrProviderUnavailable},
		{"network", errors.New("dial tcp: refused"), domain.ErrProviderUnavailable},
		{"open breaker", gobreaker.ErrOpenState, domain.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapTokenError(tt.err, "failed")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if tt.want == domain.ErrProviderUnavailable && errors.Is(err, domain.ErrCredentialInvalid) {
				t.Error("transient failure must not be CredentialInvalid")
			}
		})
	}
}

func TestIsClientError(t *testing.T) {
	if !isClientError(&googleapi.Error{Code: 404}) {
		t.Error("404 should be a client error")
	}
	if isClientError(&googleapi.Error{Code: 429}) {
		t.Error("429 should count against the breaker")
	}
	if isClientError(&googleapi.Error{Code: 502}) {
		t.Error("502 should count against the breaker")
	}
}

func TestConvertMessage(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m-1",
		InternalDate: 1700000000000,
		LabelIds:     []string{"INBOX", "UNREAD"},
		Snippet:      "hello",
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Hi"},
				nil,
				{Name: "From", Value: "A <a@example.com>"},
			},
		},
	}

	raw := convertMessage(msg, out.MessageRef{ID: "m-1", ThreadID: "t-1"})
	if raw.ThreadID != "t-1" {
		t.Errorf("expected thread from ref, got %q", raw.ThreadID)
	}
	if len(raw.Headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(raw.Headers))
	}
	if raw.Headers[1].Value != "A <a@example.com>" {
		t.Errorf("unexpected header %+v", raw.Headers[1])
	}
	if raw.InternalDate != 1700000000000 {
		t.Errorf("expected internal date, got %d", raw.InternalDate)
	}
}

func TestToGrant(t *testing.T) {
	tok := (&oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer"}).
		WithExtra(map[string]interface{}{"scope": "email"})

	if g := toGrant(tok, "rt"); g.RefreshToken != "" {
		t.Errorf("expected echoed refresh token to be dropped, got %q", g.RefreshToken)
	}
	g := toGrant(tok, "old")
	if g.RefreshToken != "rt" {
		t.Errorf("expected rotated refresh token, got %q", g.RefreshToken)
	}
	if g.Scope != "email" {
		t.Errorf("expected scope %q, got %q", "email", g.Scope)
	}
}

func TestGmailAdapterListAndGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("expected bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			if got := r.URL.Query().Get("maxResults"); got != "2" {
				t.Errorf("expected maxResults 2, got %q", got)
			}
			fmt.Fprint(w, `{"messages":[{"id":"a","threadId":"ta"},{"id":"b","threadId":"tb"}]}`)
		case strings.HasSuffix(r.URL.Path, "/users/me/messages/a"):
			if got := r.URL.Query().Get("format"); got != "full" {
				t.Errorf("expected format full, got %q", got)
			}
			fmt.Fprint(w, `{"id":"a","threadId":"ta","internalDate":"1700000000000","labelIds":["UNREAD"],
				"payload":{"headers":[{"name":"Subject","value":"Hi"}]}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":404,"message":"not found"}}`)
		}
	}))
	defer srv.Close()

	a := NewGmailAdapter(5*time.Second, WithEndpoint(srv.URL+"/"))
	ctx := context.Background()

	refs, err := a.ListRecent(ctx, "token-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(refs) != 2 || refs[0].ID != "a" {
		t.Fatalf("unexpected refs %+v", refs)
	}

	raw, err := a.GetFull(ctx, "token-1", refs[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if raw.Headers[0].Value != "Hi" || raw.InternalDate != 1700000000000 {
		t.Errorf("unexpected raw %+v", raw)
	}

	_, err = a.GetFull(ctx, "token-1", out.MessageRef{ID: "missing"})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("expected ProviderUnavailable, got %v", err)
	}
}

func TestGoogleOAuthRefresh(t *testing.T) {
	status := http.StatusOK
	body := `{"access_token":"new-at","token_type":"Bearer","expires_in":3600}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("refresh_token"); got != "rt-1" {
			t.Errorf("expected refresh_token rt-1, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	g := newGoogleOAuth(GoogleOAuthConfig{ClientID: "id", ClientSecret: "secret"},
		oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams})

	grant, err := g.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if grant.AccessToken != "new-at" {
		t.Errorf("expected %q, got %q", "new-at", grant.AccessToken)
	}
	if grant.RefreshToken != "" {
		t.Errorf("expected no rotated refresh token, got %q", grant.RefreshToken)
	}
	if grant.Expiry.IsZero() {
		t.Error("expected expiry")
	}

	status = http.StatusBadRequest
	body = `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`
	if _, err := g.Refresh(context.Background(), "rt-1"); !errors.Is(err, domain.ErrCredentialInvalid) {
		t.Errorf("expected CredentialInvalid, got %v", err)
	}

	status = http.StatusServiceUnavailable
	body = `{"error":"backend_error"}`
	_, err = g.Refresh(context.Background(), "rt-1")
	if !errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrCredentialInvalid) {
		t.Errorf("expected ProviderUnavailable only, got %v", err)
	}
}

func TestGoogleOAuthRefreshEmpty(t *testing.T) {
	g := NewGoogleOAuth(GoogleOAuthConfig{})
	if _, err := g.Refresh(context.Background(), ""); !errors.Is(err, domain.ErrCredentialInvalid) {
		t.Errorf("expected CredentialInvalid, got %v", err)
	}
}

func TestAuthCodeURL(t *testing.T) {
	g := NewGoogleOAuth(GoogleOAuthConfig{ClientID: "id", RedirectURL: "http://localhost/cb"})
	u := g.AuthCodeURL("state-1")
	for _, want := range []string{"state=state-1", "access_type=offline", "prompt=consent"} {
		if !strings.Contains(u, want) {
			t.Errorf("expected %q in %q", want, u)
		}
	}
}
