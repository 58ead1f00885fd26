package auth

import (
	"context"
	"errors"

	"inbox_server/adapter/out/persistence"
	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
)

// AccountService exposes account state to its owner.
type AccountService struct {
	accounts out.AccountRepository
}

func NewAccountService(accounts out.AccountRepository) *AccountService {
	return &AccountService{accounts: accounts}
}

func (s *AccountService) Get(ctx context.Context, accountID int64) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, apperr.NotFound("account")
	}
	if err != nil {
		return nil, apperr.DatabaseError("get account", err)
	}
	return account, nil
}
