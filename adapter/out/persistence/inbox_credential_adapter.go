package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/crypto"

	"github.com/jmoiron/sqlx"
)

// CredentialAdapter implements out.CredentialRepository. Tokens are sealed at rest.
type CredentialAdapter struct {
	db     *sqlx.DB
	cipher crypto.TokenCipher
}

// NewCredentialAdapter creates a new CredentialAdapter. A nil cipher stores tokens as-is.
func NewCredentialAdapter(db *sqlx.DB, cipher crypto.TokenCipher) *CredentialAdapter {
	if cipher == nil {
		cipher = crypto.Plain{}
	}
	return &CredentialAdapter{db: db, cipher: cipher}
}

var _ out.CredentialRepository = (*CredentialAdapter)(nil)

type credentialRow struct {
	AccountID    int64        `db:"account_id"`
	AccessToken  string       `db:"access_token"`
	RefreshToken string       `db:"refresh_token"`
	TokenType    string       `db:"token_type"`
	Scope        string       `db:"scope"`
	ExpiresAt    sql.NullTime `db:"expires_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// Get returns the decrypted credential for an account.
func (a *CredentialAdapter) Get(ctx context.Context, accountID int64) (*domain.Credential, error) {
	var row credentialRow
	query := `
		SELECT account_id, access_token, refresh_token, token_type, scope, expires_at, updated_at
		FROM credentials WHERE account_id = $1`
	if err := a.db.GetContext(ctx, &row, query, accountID); err != nil {
		return nil, notFound(err)
	}

	access, err := a.cipher.Open(row.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := a.cipher.Open(row.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}

	cred := &domain.Credential{
		AccountID:    row.AccountID,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    row.TokenType,
		Scope:        row.Scope,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.ExpiresAt.Valid {
		cred.ExpiresAt = row.ExpiresAt.Time
	}
	return cred, nil
}

// Save stores a fresh grant from the initial code exchange and clears the
// account's reconnect flag in the same transaction.
func (a *CredentialAdapter) Save(ctx context.Context, cred *domain.Credential) error {
	if cred == nil || cred.AccountID == 0 {
		return ErrInvalidInput
	}
	access, refresh, err := a.seal(cred)
	if err != nil {
		return err
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO credentials (account_id, access_token, refresh_token, token_type, scope, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), credentials.refresh_token),
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()`
	if _, err := tx.ExecContext(ctx, query,
		cred.AccountID, access, refresh, cred.TokenType, cred.Scope, nullTime(cred.ExpiresAt),
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET needs_reconnect = false WHERE id = $1`, cred.AccountID); err != nil {
		return err
	}
	return tx.Commit()
}

// Rotate writes a refreshed grant. An empty refresh token keeps the stored one.
func (a *CredentialAdapter) Rotate(ctx context.Context, cred *domain.Credential) error {
	if cred == nil || cred.AccountID == 0 {
		return ErrInvalidInput
	}
	access, refresh, err := a.seal(cred)
	if err != nil {
		return err
	}

	query := `
		UPDATE credentials SET
			access_token = $2,
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_type = $4,
			scope = $5,
			expires_at = $6,
			updated_at = NOW()
		WHERE account_id = $1`
	result, err := a.db.ExecContext(ctx, query,
		cred.AccountID, access, refresh, cred.TokenType, cred.Scope, nullTime(cred.ExpiresAt),
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAccountIDs returns every account holding a credential.
func (a *CredentialAdapter) ListAccountIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	query := `
		SELECT c.account_id FROM credentials c
		JOIN accounts a ON a.id = c.account_id
		WHERE c.refresh_token <> ''
		ORDER BY c.account_id`
	if err := a.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, err
	}
	return ids, nil
}

func (a *CredentialAdapter) seal(cred *domain.Credential) (string, string, error) {
	access, err := a.cipher.Seal(cred.AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := a.cipher.Seal(cred.RefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("seal refresh token: %w", err)
	}
	return access, refresh, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
