package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"inbox_server/adapter/out/persistence"
	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/core/service/mail"
	"inbox_server/pkg/logger"
	"inbox_server/pkg/metrics"
	"inbox_server/pkg/ringbuf"
)

const (
	DefaultWebhookMaxMessages = 5
	DefaultLogCapacity        = 50
	defaultRecentLimit        = 10
	pushSyncTimeout           = 5 * time.Minute
)

// PushService turns Gmail push notifications into syncs.
type PushService struct {
	accounts    out.AccountRepository
	sync        in.SyncUseCase
	deduper     out.DeliveryDeduper
	deliveries  *ringbuf.Buffer[domain.WebhookLogEntry]
	maxMessages int

	wg sync.WaitGroup
}

func NewPushService(accounts out.AccountRepository, syncer in.SyncUseCase, maxMessages, logCapacity int) *PushService {
	if maxMessages <= 0 {
		maxMessages = DefaultWebhookMaxMessages
	}
	if logCapacity <= 0 {
		logCapacity = DefaultLogCapacity
	}
	return &PushService{
		accounts:    accounts,
		sync:        syncer,
		deliveries:  ringbuf.New[domain.WebhookLogEntry](logCapacity),
		maxMessages: maxMessages,
	}
}

// SetDeduper drops repeated deliveries of the same history id.
func (s *PushService) SetDeduper(d out.DeliveryDeduper) {
	s.deduper = d
}

// HandlePush resolves the mailbox and starts a sync in the background.
// It never fails: every problem is logged and reported as an outcome.
func (s *PushService) HandlePush(ctx context.Context, n in.PushNotification) domain.WebhookOutcome {
	entry := domain.WebhookLogEntry{
		EmailAddress: n.EmailAddress,
		HistoryID:    n.HistoryID,
		MessageID:    n.MessageID,
	}

	address := strings.ToLower(strings.TrimSpace(n.EmailAddress))
	if address == "" {
		entry.Outcome, entry.Detail = domain.WebhookIgnored, "no email address"
		s.RecordDelivery(entry)
		return entry.Outcome
	}

	account, err := s.accounts.GetByEmail(ctx, address)
	if err != nil {
		entry.Outcome = domain.WebhookIgnored
		if errors.Is(err, persistence.ErrNotFound) {
			entry.Detail = "unknown mailbox"
		} else {
			entry.Detail = "account lookup failed"
			logger.WithError(err).Warn("[PushService] account lookup failed for %s", address)
		}
		s.RecordDelivery(entry)
		return entry.Outcome
	}
	entry.AccountID = account.ID

	if s.deduper != nil && n.HistoryID > 0 {
		first, err := s.deduper.FirstSeen(ctx, fmt.Sprintf("%s:%d", address, n.HistoryID))
		if err != nil {
			logger.WithError(err).Warn("[PushService] dedup check failed, processing anyway")
		} else if !first {
			entry.Outcome = domain.WebhookDuplicate
			s.RecordDelivery(entry)
			return entry.Outcome
		}
	}

	s.wg.Add(1)
	go s.runSync(account.ID, n.HistoryID)

	entry.Outcome = domain.WebhookAccepted
	s.RecordDelivery(entry)
	return entry.Outcome
}

func (s *PushService) runSync(accountID int64, historyID uint64) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(mail.WithTrigger(context.Background(), mail.TriggerWebhook), pushSyncTimeout)
	defer cancel()

	log := logger.WithFields(map[string]any{"account_id": accountID, "history_id": historyID})
	stored, err := s.sync.Sync(ctx, accountID, s.maxMessages)
	if err != nil {
		log.WithError(err).Warn("[PushService] push-triggered sync failed")
		return
	}
	log.Info("[PushService] push-triggered sync stored %d email(s)", stored)
}

// RecordDelivery appends to the webhook debug log.
func (s *PushService) RecordDelivery(entry domain.WebhookLogEntry) {
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	s.deliveries.Push(entry)
	metrics.RecordWebhook(string(entry.Outcome))
}

// RecentDeliveries returns the newest entries first.
func (s *PushService) RecentDeliveries(limit int) []domain.WebhookLogEntry {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return s.deliveries.Last(limit)
}

// Wait blocks until background syncs started by HandlePush have finished.
func (s *PushService) Wait() {
	s.wg.Wait()
}

var _ in.PushUseCase = (*PushService)(nil)
