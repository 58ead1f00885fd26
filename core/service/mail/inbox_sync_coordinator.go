package mail

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"inbox_server/adapter/out/persistence"
	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/logger"
	"inbox_server/pkg/metrics"
)

const (
	DefaultMaxMessages       = 5
	DefaultFetchTimeout      = 30 * time.Second
	DefaultCategorizeCap     = 4
	DefaultCategorizeTimeout = 2 * time.Minute
)

// TokenValidator returns a usable access token for a credential.
type TokenValidator interface {
	EnsureValid(ctx context.Context, cred *domain.Credential) (string, error)
}

// SyncConfig tunes the coordinator.
type SyncConfig struct {
	FetchTimeout      time.Duration // per provider call; also sizes the whole pass
	CategorizeCap     int
	CategorizeTimeout time.Duration
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.CategorizeCap <= 0 {
		c.CategorizeCap = DefaultCategorizeCap
	}
	if c.CategorizeTimeout <= 0 {
		c.CategorizeTimeout = DefaultCategorizeTimeout
	}
	return c
}

// SyncCoordinator pulls new messages for one account at a time.
//
// Concurrent Sync calls for the same account in this process are coalesced: the
// later caller waits for the in-flight run and gets its count. The AccountLocker
// additionally guarantees that at most one run per account holds the mailbox at
// once, across processes when it is backed by Redis.
type SyncCoordinator struct {
	credentials out.CredentialRepository
	accounts    out.AccountRepository
	emails      out.EmailRepository
	tokens      TokenValidator
	fetcher     out.MessageFetcher
	normalizer  *Normalizer
	locker      out.AccountLocker
	categorizer in.CategorizeUseCase
	archive     out.FailureArchive
	cfg         SyncConfig

	group singleflight.Group
}

func NewSyncCoordinator(
	credentials out.CredentialRepository,
	accounts out.AccountRepository,
	emails out.EmailRepository,
	tokens TokenValidator,
	fetcher out.MessageFetcher,
	normalizer *Normalizer,
	locker out.AccountLocker,
	cfg SyncConfig,
) *SyncCoordinator {
	if normalizer == nil {
		normalizer = NewNormalizer()
	}
	return &SyncCoordinator{
		credentials: credentials,
		accounts:    accounts,
		emails:      emails,
		tokens:      tokens,
		fetcher:     fetcher,
		normalizer:  normalizer,
		locker:      locker,
		cfg:         cfg.withDefaults(),
	}
}

// SetCategorizer enables categorization after new emails are stored.
func (c *SyncCoordinator) SetCategorizer(categorizer in.CategorizeUseCase) {
	c.categorizer = categorizer
}

// SetFailureArchive keeps unparsable payloads for later inspection.
func (c *SyncCoordinator) SetFailureArchive(archive out.FailureArchive) {
	c.archive = archive
}

type syncResult struct {
	stored  int
	outcome string
}

// Sync fetches up to maxMessages recent messages and stores the new ones.
// It returns the number of rows actually persisted. A missing or revoked
// credential is not an error: the result is 0.
func (c *SyncCoordinator) Sync(ctx context.Context, accountID int64, maxMessages int) (int, error) {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	trigger := TriggerFrom(ctx)

	v, err, shared := c.group.Do(strconv.FormatInt(accountID, 10), func() (any, error) {
		// Joined callers share this run; it is detached from the first caller's cancellation.
		base := context.WithoutCancel(ctx)
		start := time.Now()

		res, err := c.ingest(base, accountID, maxMessages)
		if err != nil && res.outcome == "" {
			res.outcome = "error"
		}
		metrics.RecordSync(string(trigger), res.outcome, time.Since(start))

		if res.stored > 0 {
			c.categorizeNew(base, accountID, res.stored)
		}
		return res.stored, err
	})
	if shared {
		logger.WithFields(map[string]any{
			"account_id": accountID,
			"trigger":    trigger,
		}).Debug("[SyncCoordinator] joined in-flight sync")
	}

	stored, _ := v.(int)
	return stored, err
}

// ingest runs under the account lock and releases it before returning.
func (c *SyncCoordinator) ingest(ctx context.Context, accountID int64, maxMessages int) (syncResult, error) {
	// list + one get per message, plus one call of headroom for the lock and the token refresh
	ctx, cancel := context.WithTimeout(ctx, time.Duration(maxMessages+2)*c.cfg.FetchTimeout)
	defer cancel()

	log := logger.WithContext(logger.ContextWithAccountID(ctx, accountID)).WithField("trigger", TriggerFrom(ctx))

	unlock, err := c.locker.Lock(ctx, accountID)
	if err != nil {
		return syncResult{}, fmt.Errorf("acquire sync lock for account %d: %w", accountID, err)
	}
	defer unlock()

	cred, err := c.credentials.Get(ctx, accountID)
	if errors.Is(err, persistence.ErrNotFound) {
		log.Debug("[SyncCoordinator] no credential, skipping")
		return syncResult{outcome: "no_credential"}, nil
	}
	if err != nil {
		return syncResult{}, fmt.Errorf("load credential for account %d: %w", accountID, err)
	}

	token, err := c.tokens.EnsureValid(ctx, cred)
	if errors.Is(err, domain.ErrCredentialInvalid) {
		if markErr := c.accounts.SetNeedsReconnect(ctx, accountID, true); markErr != nil {
			log.WithError(markErr).Error("[SyncCoordinator] failed to flag account for reconnection")
		}
		log.WithError(err).Warn("[SyncCoordinator] credential invalid, account needs reconnection")
		return syncResult{outcome: "reconnect"}, nil
	}
	if err != nil {
		return syncResult{outcome: "provider_error"}, fmt.Errorf("refresh token for account %d: %w", accountID, err)
	}

	refs, err := c.fetcher.ListRecent(ctx, token, maxMessages)
	if err != nil {
		return syncResult{outcome: "provider_error"}, fmt.Errorf("list messages for account %d: %w", accountID, err)
	}
	if len(refs) == 0 {
		return syncResult{outcome: "ok"}, nil
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.ID != "" {
			ids = append(ids, ref.ID)
		}
	}
	existing, err := c.emails.ExistingExternalIDs(ctx, ids)
	if err != nil {
		return syncResult{}, fmt.Errorf("check existing messages for account %d: %w", accountID, err)
	}

	staged := make([]*domain.Email, 0, len(refs))
	queued := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if existing[ref.ID] || queued[ref.ID] {
			metrics.RecordSkipped("existing")
			continue
		}
		if ref.ID != "" {
			queued[ref.ID] = true
		}

		email, err := c.fetchOne(ctx, accountID, token, ref)
		if err != nil {
			log.WithField("external_id", ref.ID).WithError(err).Warn("[SyncCoordinator] skipping message")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		staged = append(staged, email)
	}

	if len(staged) == 0 {
		return syncResult{outcome: "ok"}, nil
	}

	stored, err := c.emails.InsertBatch(ctx, staged)
	if err != nil {
		return syncResult{}, fmt.Errorf("persist %d emails for account %d: %w", len(staged), accountID, err)
	}
	if dup := len(staged) - stored; dup > 0 {
		for i := 0; i < dup; i++ {
			metrics.RecordSkipped("duplicate")
		}
		log.Info("[SyncCoordinator] %d message(s) were already stored by a concurrent run", dup)
	}
	metrics.EmailsIngested.Add(float64(stored))

	log.WithFields(map[string]any{
		"listed": len(refs),
		"staged": len(staged),
		"stored": stored,
	}).Info("[SyncCoordinator] sync complete")

	return syncResult{stored: stored, outcome: "ok"}, nil
}

// fetchOne gets and normalizes a single message. Errors only affect this message.
func (c *SyncCoordinator) fetchOne(ctx context.Context, accountID int64, token string, ref out.MessageRef) (*domain.Email, error) {
	if ref.ID == "" {
		metrics.RecordSkipped("parse_failure")
		return nil, &domain.ParseFailure{ExternalID: ref.ThreadID, Reason: "listing returned a message without id"}
	}

	raw, err := c.fetcher.GetFull(ctx, token, ref)
	if err != nil {
		metrics.RecordSkipped("fetch_error")
		return nil, err
	}

	email, err := c.normalizer.Normalize(raw, accountID)
	if err != nil {
		metrics.RecordSkipped("parse_failure")
		c.archiveFailure(ctx, accountID, ref.ID, raw, err)
		return nil, err
	}
	return email, nil
}

func (c *SyncCoordinator) archiveFailure(ctx context.Context, accountID int64, externalID string, raw *out.RawMessage, cause error) {
	if c.archive == nil {
		return
	}
	rec := out.ParseFailureRecord{
		AccountID:  accountID,
		ExternalID: externalID,
		Reason:     cause.Error(),
		Payload:    raw,
		FailedAt:   time.Now().UTC(),
	}
	if err := c.archive.RecordParseFailure(ctx, rec); err != nil {
		logger.WithField("external_id", externalID).WithError(err).Warn("[SyncCoordinator] failed to archive parse failure")
	}
}

// categorizeNew classifies a bounded batch; failures are logged, never returned.
func (c *SyncCoordinator) categorizeNew(ctx context.Context, accountID int64, stored int) {
	if c.categorizer == nil {
		return
	}
	limit := min(stored, c.cfg.CategorizeCap)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CategorizeTimeout)
	defer cancel()

	n, err := c.categorizer.Categorize(ctx, accountID, limit)
	log := logger.WithFields(map[string]any{"account_id": accountID, "limit": limit})
	if err != nil {
		log.WithError(err).Warn("[SyncCoordinator] categorization after sync failed")
		return
	}
	log.Info("[SyncCoordinator] categorized %d new email(s)", n)
}

var _ in.SyncUseCase = (*SyncCoordinator)(nil)
