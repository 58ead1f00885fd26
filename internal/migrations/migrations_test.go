package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(Migrations, ".")
	if err != nil {
		t.Fatalf("read embedded dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected embedded migrations")
	}

	body, err := fs.ReadFile(Migrations, "00001_init.sql")
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "UNIQUE (external_id)"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("init migration missing %q", want)
		}
	}
}

func TestUpWrapsError(t *testing.T) {
	orig := gooseUp
	defer func() { gooseUp = orig }()

	boom := errors.New("boom")
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		if dir != "." {
			t.Errorf("expected dir %q, got %q", ".", dir)
		}
		return boom
	}

	if err := Up(context.Background(), nil); !errors.Is(err, boom) {
		t.Errorf("expected wrapped boom, got %v", err)
	}
}
