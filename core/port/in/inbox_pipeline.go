package in

import (
	"context"

	"inbox_server/core/domain"
)

// SyncUseCase pulls new messages for an account.
type SyncUseCase interface {
	Sync(ctx context.Context, accountID int64, maxMessages int) (int, error)
}

// CategorizeUseCase classifies uncategorized emails for an account.
type CategorizeUseCase interface {
	Categorize(ctx context.Context, accountID int64, limit int) (int, error)
}

// CategoryUseCase manages categories and manual filing.
type CategoryUseCase interface {
	SeedDefaults(ctx context.Context, accountID int64) (int, error)
	Create(ctx context.Context, accountID int64, name, description string) (*domain.Category, error)
	List(ctx context.Context, accountID int64) ([]*domain.CategoryWithCount, error)
	Delete(ctx context.Context, accountID, categoryID int64) (int, error)
	MoveEmail(ctx context.Context, accountID, emailID int64, categoryID *int64) error
	ListEmails(ctx context.Context, filter domain.EmailFilter) ([]*domain.Email, error)
}

// PushNotification is a decoded Gmail push body.
type PushNotification struct {
	EmailAddress string
	HistoryID    uint64
	MessageID    string
}

// PushUseCase handles inbound push notifications and the webhook debug log.
type PushUseCase interface {
	HandlePush(ctx context.Context, n PushNotification) domain.WebhookOutcome
	RecordDelivery(entry domain.WebhookLogEntry)
	RecentDeliveries(limit int) []domain.WebhookLogEntry
}

// WatchUseCase registers Gmail push notifications.
type WatchUseCase interface {
	Register(ctx context.Context, accountID int64) (*domain.WatchResult, error)
	RenewAll(ctx context.Context) (renewed int, err error)
}

// AccountUseCase exposes account state to the session owner.
type AccountUseCase interface {
	Get(ctx context.Context, accountID int64) (*domain.Account, error)
}

// ConnectResult is a completed account connection.
type ConnectResult struct {
	Token   string          `json:"token"`
	Account *domain.Account `json:"account"`
}

// ConnectUseCase runs the Google OAuth connect flow.
type ConnectUseCase interface {
	Begin(ctx context.Context) (authURL string, err error)
	Complete(ctx context.Context, code, state string) (*ConnectResult, error)
}
