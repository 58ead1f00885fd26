package out

import (
	"context"

	"inbox_server/core/domain"
)

// AccountRepository stores mailbox owners.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Upsert(ctx context.Context, account *domain.Account) error
	SetNeedsReconnect(ctx context.Context, id int64, needed bool) error
}

// CredentialRepository is the credential store. Rotate never blanks a stored refresh token.
type CredentialRepository interface {
	Get(ctx context.Context, accountID int64) (*domain.Credential, error)
	Save(ctx context.Context, cred *domain.Credential) error
	Rotate(ctx context.Context, cred *domain.Credential) error
	ListAccountIDs(ctx context.Context) ([]int64, error)
}

// CategoryAssignment sets one email's category.
type CategoryAssignment struct {
	EmailID    int64
	CategoryID int64
}

// EmailRepository stores ingested emails. ExternalID uniqueness is enforced here.
type EmailRepository interface {
	// ExistingExternalIDs returns the subset of ids already stored.
	ExistingExternalIDs(ctx context.Context, externalIDs []string) (map[string]bool, error)
	// InsertBatch creates the emails that are absent in one transaction
	// and returns how many rows were inserted. Duplicates are skipped.
	InsertBatch(ctx context.Context, emails []*domain.Email) (int, error)
	ListUncategorized(ctx context.Context, accountID int64, limit int) ([]*domain.Email, error)
	// AssignCategories commits all assignments atomically.
	AssignCategories(ctx context.Context, accountID int64, assignments []CategoryAssignment) (int, error)
	UpdateCategory(ctx context.Context, accountID, emailID int64, categoryID *int64) error
	List(ctx context.Context, filter domain.EmailFilter) ([]*domain.Email, error)
}

// CategoryRepository stores categories.
type CategoryRepository interface {
	ListByAccount(ctx context.Context, accountID int64) ([]*domain.Category, error)
	ListWithCounts(ctx context.Context, accountID int64) ([]*domain.CategoryWithCount, error)
	Get(ctx context.Context, accountID, categoryID int64) (*domain.Category, error)
	Create(ctx context.Context, category *domain.Category) error
	// DeleteDetaching nulls category_id on attached emails, then deletes the category,
	// in one transaction. It returns the number of detached emails.
	DeleteDetaching(ctx context.Context, accountID, categoryID int64) (int, error)
}
