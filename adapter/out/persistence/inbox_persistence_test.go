package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"pgx unique", &pgconn.PgError{Code: "23505"}, true},
		{"pgx other", &pgconn.PgError{Code: "23503"}, false},
		{"pq unique", &pq.Error{Code: "23505"}, true},
		{"wrapped pgx", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	if err := notFound(sql.ErrNoRows); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	boom := errors.New("boom")
	if err := notFound(boom); err != boom {
		t.Errorf("expected passthrough, got %v", err)
	}
}

func TestNullTime(t *testing.T) {
	if nt := nullTime(time.Time{}); nt.Valid {
		t.Error("zero time should be NULL")
	}
	now := time.Now()
	if nt := nullTime(now); !nt.Valid || !nt.Time.Equal(now) {
		t.Errorf("expected valid %v, got %+v", now, nt)
	}
}

func TestEmailRowToDomain(t *testing.T) {
	row := emailRow{
		ID:         7,
		AccountID:  1,
		ExternalID: "m-1",
		Labels:     pq.StringArray{"INBOX", "UNREAD"},
	}
	e := row.toDomain()
	if e.CategoryID != nil {
		t.Errorf("expected nil category, got %v", *e.CategoryID)
	}
	if len(e.Labels) != 2 {
		t.Errorf("expected 2 labels, got %d", len(e.Labels))
	}

	row.CategoryID = sql.NullInt64{Int64: 3, Valid: true}
	e = row.toDomain()
	if e.CategoryID == nil || *e.CategoryID != 3 {
		t.Errorf("expected category 3, got %v", e.CategoryID)
	}
}

func TestSyncLockKey(t *testing.T) {
	if got := syncLockKey(42); got != "inbox:synclock:42" {
		t.Errorf("expected %q, got %q", "inbox:synclock:42", got)
	}
}

func TestNewRedisAccountLockerDefaults(t *testing.T) {
	l := NewRedisAccountLocker(nil, 0)
	if l.ttl != SyncLockTTL {
		t.Errorf("expected ttl %v, got %v", SyncLockTTL, l.ttl)
	}
	if l.renew != SyncLockTTL/3 {
		t.Errorf("expected renew every %v, got %v", SyncLockTTL/3, l.renew)
	}
	d := NewRedisDeliveryDeduper(nil, 0)
	if d.ttl != DeliveryDedupTTL {
		t.Errorf("expected ttl %v, got %v", DeliveryDedupTTL, d.ttl)
	}
}

func TestMemoryOAuthStateStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryOAuthStateStore()
	s.now = func() time.Time { return now }

	if err := s.Store(ctx, "", time.Minute); err == nil {
		t.Error("expected error for empty state")
	}
	if err := s.Store(ctx, "abc", time.Minute); err != nil {
		t.Fatalf("store: %v", err)
	}

	ok, err := s.Consume(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("expected state to be valid, got %v %v", ok, err)
	}
	if ok, _ := s.Consume(ctx, "abc"); ok {
		t.Error("state must be single use")
	}

	_ = s.Store(ctx, "late", time.Minute)
	now = now.Add(2 * time.Minute)
	if ok, _ := s.Consume(ctx, "late"); ok {
		t.Error("expired state must be rejected")
	}
}
