package persistence

import (
	"context"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// CategoryAdapter implements out.CategoryRepository using PostgreSQL.
type CategoryAdapter struct {
	db *sqlx.DB
}

// NewCategoryAdapter creates a new CategoryAdapter.
func NewCategoryAdapter(db *sqlx.DB) *CategoryAdapter {
	return &CategoryAdapter{db: db}
}

var _ out.CategoryRepository = (*CategoryAdapter)(nil)

type categoryRow struct {
	ID          int64     `db:"id"`
	AccountID   int64     `db:"account_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	EmailCount  int       `db:"email_count"`
}

func (r *categoryRow) toDomain() *domain.Category {
	return &domain.Category{
		ID:          r.ID,
		AccountID:   r.AccountID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

// ListByAccount returns categories in creation order.
func (a *CategoryAdapter) ListByAccount(ctx context.Context, accountID int64) ([]*domain.Category, error) {
	var rows []categoryRow
	query := `
		SELECT id, account_id, name, description, created_at
		FROM categories WHERE account_id = $1
		ORDER BY id ASC`
	if err := a.db.SelectContext(ctx, &rows, query, accountID); err != nil {
		return nil, err
	}

	cats := make([]*domain.Category, 0, len(rows))
	for i := range rows {
		cats = append(cats, rows[i].toDomain())
	}
	return cats, nil
}

// ListWithCounts returns categories with the number of emails in each.
func (a *CategoryAdapter) ListWithCounts(ctx context.Context, accountID int64) ([]*domain.CategoryWithCount, error) {
	var rows []categoryRow
	query := `
		SELECT c.id, c.account_id, c.name, c.description, c.created_at, COUNT(e.id) AS email_count
		FROM categories c
		LEFT JOIN emails e ON e.category_id = c.id
		WHERE c.account_id = $1
		GROUP BY c.id
		ORDER BY c.id ASC`
	if err := a.db.SelectContext(ctx, &rows, query, accountID); err != nil {
		return nil, err
	}

	cats := make([]*domain.CategoryWithCount, 0, len(rows))
	for i := range rows {
		cats = append(cats, &domain.CategoryWithCount{
			Category:   *rows[i].toDomain(),
			EmailCount: rows[i].EmailCount,
		})
	}
	return cats, nil
}

// Get returns a category owned by the account.
func (a *CategoryAdapter) Get(ctx context.Context, accountID, categoryID int64) (*domain.Category, error) {
	var row categoryRow
	query := `
		SELECT id, account_id, name, description, created_at
		FROM categories WHERE id = $1 AND account_id = $2`
	if err := a.db.GetContext(ctx, &row, query, categoryID, accountID); err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

// Create inserts a category and fills its id.
func (a *CategoryAdapter) Create(ctx context.Context, category *domain.Category) error {
	if category == nil || category.AccountID == 0 || category.Name == "" {
		return ErrInvalidInput
	}
	query := `
		INSERT INTO categories (account_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	return a.db.QueryRowxContext(ctx, query, category.AccountID, category.Name, category.Description).
		Scan(&category.ID, &category.CreatedAt)
}

// DeleteDetaching uncategorizes the category's emails and deletes it.
func (a *CategoryAdapter) DeleteDetaching(ctx context.Context, accountID, categoryID int64) (int, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE emails SET category_id = NULL WHERE category_id = $1 AND account_id = $2`,
		categoryID, accountID,
	)
	if err != nil {
		return 0, err
	}
	detached, _ := result.RowsAffected()

	result, err = tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1 AND account_id = $2`, categoryID, accountID)
	if err != nil {
		return 0, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(detached), nil
}
