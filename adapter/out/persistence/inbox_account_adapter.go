// Package persistence provides database adapters.
package persistence

import (
	"context"
	"strings"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// AccountAdapter implements out.AccountRepository using PostgreSQL.
type AccountAdapter struct {
	db *sqlx.DB
}

// NewAccountAdapter creates a new AccountAdapter.
func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	return &AccountAdapter{db: db}
}

var _ out.AccountRepository = (*AccountAdapter)(nil)

type accountRow struct {
	ID             int64     `db:"id"`
	Subject        string    `db:"subject"`
	Email          string    `db:"email"`
	Name           string    `db:"name"`
	NeedsReconnect bool      `db:"needs_reconnect"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r *accountRow) toDomain() *domain.Account {
	return &domain.Account{
		ID:             r.ID,
		Subject:        r.Subject,
		Email:          r.Email,
		Name:           r.Name,
		NeedsReconnect: r.NeedsReconnect,
		CreatedAt:      r.CreatedAt,
	}
}

const accountColumns = `id, subject, email, name, needs_reconnect, created_at`

// GetByID returns an account by id.
func (a *AccountAdapter) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	var row accountRow
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

// GetByEmail matches the address case-insensitively.
func (a *AccountAdapter) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var row accountRow
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = $1`
	if err := a.db.GetContext(ctx, &row, query, strings.ToLower(strings.TrimSpace(email))); err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

// Upsert creates or updates the account keyed by its provider subject.
func (a *AccountAdapter) Upsert(ctx context.Context, account *domain.Account) error {
	if account == nil || account.Subject == "" || account.Email == "" {
		return ErrInvalidInput
	}

	query := `
		INSERT INTO accounts (subject, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name
		RETURNING id, needs_reconnect, created_at`

	err := a.db.QueryRowxContext(ctx, query, account.Subject, account.Email, account.Name).
		Scan(&account.ID, &account.NeedsReconnect, &account.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// SetNeedsReconnect flags or clears the reconnect marker.
func (a *AccountAdapter) SetNeedsReconnect(ctx context.Context, id int64, needed bool) error {
	result, err := a.db.ExecContext(ctx, `UPDATE accounts SET needs_reconnect = $2 WHERE id = $1`, id, needed)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
