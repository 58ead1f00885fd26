package category

import (
	"context"
	"errors"
	"strings"

	"inbox_server/adapter/out/persistence"
	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
)

const (
	maxNameLength  = 255
	maxListLimit   = 200
	defaultListCap = 50
)

type Service struct {
	categories out.CategoryRepository
	emails     out.EmailRepository
}

func NewService(categories out.CategoryRepository, emails out.EmailRepository) *Service {
	return &Service{categories: categories, emails: emails}
}

// SeedDefaults creates the default category set when the account has none.
func (s *Service) SeedDefaults(ctx context.Context, accountID int64) (int, error) {
	existing, err := s.categories.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, apperr.DatabaseError("list categories", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	created := 0
	for _, def := range domain.DefaultCategories {
		cat := def
		cat.AccountID = accountID
		if err := s.categories.Create(ctx, &cat); err != nil {
			return created, apperr.DatabaseError("seed categories", err)
		}
		created++
	}
	logger.WithField("account_id", accountID).Info("[CategoryService] seeded %d default categories", created)
	return created, nil
}

func (s *Service) Create(ctx context.Context, accountID int64, name, description string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.MissingField("name")
	}
	if len(name) > maxNameLength {
		return nil, apperr.InvalidInput("name", "too long")
	}

	cat := &domain.Category{
		AccountID:   accountID,
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if err := s.categories.Create(ctx, cat); err != nil {
		return nil, apperr.DatabaseError("create category", err)
	}
	return cat, nil
}

func (s *Service) List(ctx context.Context, accountID int64) ([]*domain.CategoryWithCount, error) {
	cats, err := s.categories.ListWithCounts(ctx, accountID)
	if err != nil {
		return nil, apperr.DatabaseError("list categories", err)
	}
	return cats, nil
}

// Delete detaches every email filed under the category, then removes it.
// Emails are never deleted. It returns the number of detached emails.
func (s *Service) Delete(ctx context.Context, accountID, categoryID int64) (int, error) {
	detached, err := s.categories.DeleteDetaching(ctx, accountID, categoryID)
	if errors.Is(err, persistence.ErrNotFound) {
		return 0, apperr.NotFound("category")
	}
	if err != nil {
		return 0, apperr.DatabaseError("delete category", err)
	}
	logger.WithFields(map[string]any{
		"account_id":  accountID,
		"category_id": categoryID,
		"detached":    detached,
	}).Info("[CategoryService] category deleted")
	return detached, nil
}

// MoveEmail files an email under a category, or clears it when categoryID is nil.
func (s *Service) MoveEmail(ctx context.Context, accountID, emailID int64, categoryID *int64) error {
	if categoryID != nil {
		if _, err := s.categories.Get(ctx, accountID, *categoryID); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return apperr.NotFound("category")
			}
			return apperr.DatabaseError("get category", err)
		}
	}
	err := s.emails.UpdateCategory(ctx, accountID, emailID, categoryID)
	if errors.Is(err, persistence.ErrNotFound) {
		return apperr.NotFound("email")
	}
	if err != nil {
		return apperr.DatabaseError("update email category", err)
	}
	return nil
}

func (s *Service) ListEmails(ctx context.Context, filter domain.EmailFilter) ([]*domain.Email, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListCap
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	emails, err := s.emails.List(ctx, filter)
	if err != nil {
		return nil, apperr.DatabaseError("list emails", err)
	}
	return emails, nil
}

var _ in.CategoryUseCase = (*Service)(nil)
