package notification

import (
	"context"
	"errors"

	"inbox_server/adapter/out/persistence"
	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
)

type tokenValidator interface {
	EnsureValid(ctx context.Context, cred *domain.Credential) (string, error)
}

// WatchService registers Gmail push notifications on the configured Pub/Sub topic.
type WatchService struct {
	credentials out.CredentialRepository
	accounts    out.AccountRepository
	tokens      tokenValidator
	watcher     out.MailWatcher
	locker      out.AccountLocker
	topic       string
}

func NewWatchService(
	credentials out.CredentialRepository,
	accounts out.AccountRepository,
	tokens tokenValidator,
	watcher out.MailWatcher,
	locker out.AccountLocker,
	topic string,
) *WatchService {
	return &WatchService{
		credentials: credentials,
		accounts:    accounts,
		tokens:      tokens,
		watcher:     watcher,
		locker:      locker,
		topic:       topic,
	}
}

func (s *WatchService) Enabled() bool {
	return s.topic != "" && s.watcher != nil
}

// Register starts or renews the watch on the account's INBOX.
// It holds the account lock because it may rotate the credential.
func (s *WatchService) Register(ctx context.Context, accountID int64) (*domain.WatchResult, error) {
	if !s.Enabled() {
		return nil, apperr.BadRequest("push notifications are not configured")
	}

	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return nil, apperr.Internal("acquire account lock", err)
	}
	defer unlock()

	cred, err := s.credentials.Get(ctx, accountID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, apperr.NotFound("credential")
	}
	if err != nil {
		return nil, apperr.DatabaseError("get credential", err)
	}

	token, err := s.tokens.EnsureValid(ctx, cred)
	if errors.Is(err, domain.ErrCredentialInvalid) {
		if markErr := s.accounts.SetNeedsReconnect(ctx, accountID, true); markErr != nil {
			logger.WithError(markErr).Error("[WatchService] failed to flag account %d", accountID)
		}
		return nil, apperr.ReconnectRequired(err)
	}
	if err != nil {
		return nil, apperr.ProviderUnavailable("google", err)
	}

	result, err := s.watcher.Watch(ctx, token, s.topic, []string{domain.LabelInbox})
	if err != nil {
		return nil, apperr.ProviderUnavailable("gmail", err)
	}

	logger.WithFields(map[string]any{
		"account_id": accountID,
		"history_id": result.HistoryID,
		"expiration": result.Expiration,
	}).Info("[WatchService] push notifications registered")
	return result, nil
}

// RenewAll re-registers every account holding a credential.
// Per-account failures are logged and skipped.
func (s *WatchService) RenewAll(ctx context.Context) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	ids, err := s.credentials.ListAccountIDs(ctx)
	if err != nil {
		return 0, err
	}

	renewed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Register(ctx, id); err != nil {
			logger.WithField("account_id", id).WithError(err).Warn("[WatchService] watch renewal failed")
			continue
		}
		renewed++
	}
	return renewed, nil
}

var _ in.WatchUseCase = (*WatchService)(nil)
