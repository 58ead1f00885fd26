package session

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParse(t *testing.T) {
	m := NewManager("secret", time.Hour)

	token, err := m.Issue(42, "a@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id, claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != 42 {
		t.Errorf("expected 42, got %d", id)
	}
	if claims.Email != "a@example.com" {
		t.Errorf("expected email, got %q", claims.Email)
	}
}

func TestParseRejects(t *testing.T) {
	m := NewManager("secret", time.Hour)
	good, _ := m.Issue(1, "")

	expired := NewManager("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue(1, "")

	other, _ := NewManager("other", time.Hour).Issue(1, "")

	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "abc"}).
		SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
	}{
		{"expired", old},
		{"wrong secret", other},
		{"non numeric subject", noSub},
		{"garbage", "not-a-token"},
		{"truncated", good[:len(good)-4]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := m.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestMissingSecret(t *testing.T) {
	m := NewManager("", 0)
	if _, err := m.Issue(1, ""); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("expected ErrMissingSecret, got %v", err)
	}
	if m.ttl != DefaultTTL {
		t.Errorf("expected default ttl, got %v", m.ttl)
	}
}
