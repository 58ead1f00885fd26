package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// EmailAdapter implements out.EmailRepository using PostgreSQL.
type EmailAdapter struct {
	db *sqlx.DB
}

// NewEmailAdapter creates a new EmailAdapter.
func NewEmailAdapter(db *sqlx.DB) *EmailAdapter {
	return &EmailAdapter{db: db}
}

var _ out.EmailRepository = (*EmailAdapter)(nil)

type emailRow struct {
	ID          int64          `db:"id"`
	AccountID   int64          `db:"account_id"`
	CategoryID  sql.NullInt64  `db:"category_id"`
	ExternalID  string         `db:"external_id"`
	ThreadID    string         `db:"thread_id"`
	Subject     string         `db:"subject"`
	SenderName  string         `db:"sender_name"`
	SenderEmail string         `db:"sender_email"`
	Recipient   string         `db:"recipient"`
	Preview     string         `db:"preview"`
	ReceivedAt  time.Time      `db:"received_at"`
	Labels      pq.StringArray `db:"labels"`
	IsRead      bool           `db:"is_read"`
	IsImportant bool           `db:"is_important"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *emailRow) toDomain() *domain.Email {
	e := &domain.Email{
		ID:          r.ID,
		AccountID:   r.AccountID,
		ExternalID:  r.ExternalID,
		ThreadID:    r.ThreadID,
		Subject:     r.Subject,
		SenderName:  r.SenderName,
		SenderEmail: r.SenderEmail,
		Recipient:   r.Recipient,
		Preview:     r.Preview,
		ReceivedAt:  r.ReceivedAt,
		Labels:      []string(r.Labels),
		IsRead:      r.IsRead,
		IsImportant: r.IsImportant,
		CreatedAt:   r.CreatedAt,
	}
	if r.CategoryID.Valid {
		id := r.CategoryID.Int64
		e.CategoryID = &id
	}
	return e
}

const emailColumns = `id, account_id, category_id, external_id, thread_id, subject, sender_name,
	sender_email, recipient, preview, received_at, labels, is_read, is_important, created_at`

// ExistingExternalIDs returns which of the given provider ids are already stored.
func (a *EmailAdapter) ExistingExternalIDs(ctx context.Context, externalIDs []string) (map[string]bool, error) {
	found := make(map[string]bool, len(externalIDs))
	if len(externalIDs) == 0 {
		return found, nil
	}

	var ids []string
	query := `SELECT external_id FROM emails WHERE external_id = ANY($1)`
	if err := a.db.SelectContext(ctx, &ids, query, pq.Array(externalIDs)); err != nil {
		return nil, err
	}
	for _, id := range ids {
		found[id] = true
	}
	return found, nil
}

const insertEmailQuery = `
	INSERT INTO emails (
		account_id, external_id, thread_id, subject, sender_name, sender_email,
		recipient, preview, received_at, labels, is_read, is_important
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (external_id) DO NOTHING
	RETURNING id, created_at`

// InsertBatch inserts in one transaction. Rows whose external id already
// exists are skipped and not counted.
func (a *EmailAdapter) InsertBatch(ctx context.Context, emails []*domain.Email) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, e := range emails {
		err := insertEmail(ctx, tx, e)
		if errors.Is(err, domain.ErrDuplicateMessage) {
			continue
		}
		if err != nil {
			return 0, err
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// insertEmail returns domain.ErrDuplicateMessage when the external id is taken.
func insertEmail(ctx context.Context, tx *sqlx.Tx, e *domain.Email) error {
	labels := e.Labels
	if labels == nil {
		labels = []string{}
	}
	err := tx.QueryRowxContext(ctx, insertEmailQuery,
		e.AccountID, e.ExternalID, e.ThreadID, e.Subject, e.SenderName, e.SenderEmail,
		e.Recipient, e.Preview, e.ReceivedAt, pq.Array(labels), e.IsRead, e.IsImportant,
	).Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("email %s: %w", e.ExternalID, domain.ErrDuplicateMessage)
	}
	if err != nil {
		return fmt.Errorf("insert email %s: %w", e.ExternalID, err)
	}
	return nil
}

// ListUncategorized returns the newest uncategorized emails first.
func (a *EmailAdapter) ListUncategorized(ctx context.Context, accountID int64, limit int) ([]*domain.Email, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []emailRow
	query := `SELECT ` + emailColumns + ` FROM emails
		WHERE account_id = $1 AND category_id IS NULL
		ORDER BY id DESC
		LIMIT $2`
	if err := a.db.SelectContext(ctx, &rows, query, accountID, limit); err != nil {
		return nil, err
	}
	return toEmails(rows), nil
}

// AssignCategories applies every assignment or none.
func (a *EmailAdapter) AssignCategories(ctx context.Context, accountID int64, assignments []out.CategoryAssignment) (int, error) {
	if len(assignments) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `
		UPDATE emails SET category_id = $3
		WHERE id = $1 AND account_id = $2
		AND EXISTS (SELECT 1 FROM categories c WHERE c.id = $3 AND c.account_id = $2)`

	updated := 0
	for _, as := range assignments {
		result, err := tx.ExecContext(ctx, query, as.EmailID, accountID, as.CategoryID)
		if err != nil {
			return 0, fmt.Errorf("assign email %d: %w", as.EmailID, err)
		}
		n, _ := result.RowsAffected()
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return updated, nil
}

// UpdateCategory moves one email. A nil category uncategorizes it.
func (a *EmailAdapter) UpdateCategory(ctx context.Context, accountID, emailID int64, categoryID *int64) error {
	var cat sql.NullInt64
	if categoryID != nil {
		cat = sql.NullInt64{Int64: *categoryID, Valid: true}
	}
	result, err := a.db.ExecContext(ctx,
		`UPDATE emails SET category_id = $3 WHERE id = $1 AND account_id = $2`,
		emailID, accountID, cat,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns emails newest first.
func (a *EmailAdapter) List(ctx context.Context, filter domain.EmailFilter) ([]*domain.Email, error) {
	conds := []string{"account_id = $1"}
	args := []any{filter.AccountID}

	switch {
	case filter.Uncategorized:
		conds = append(conds, "category_id IS NULL")
	case filter.CategoryID != nil:
		args = append(args, *filter.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM emails WHERE %s ORDER BY received_at DESC, id DESC LIMIT $%d`,
		emailColumns, strings.Join(conds, " AND "), len(args))

	var rows []emailRow
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return toEmails(rows), nil
}

func toEmails(rows []emailRow) []*domain.Email {
	emails := make([]*domain.Email, 0, len(rows))
	for i := range rows {
		emails = append(emails, rows[i].toDomain())
	}
	return emails
}
