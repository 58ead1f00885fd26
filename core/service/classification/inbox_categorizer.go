package classification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/logger"
	"inbox_server/pkg/metrics"
)

const (
	// DefaultHardCap bounds classifier calls per batch whatever the caller asks for.
	DefaultHardCap = 4

	commitTimeout = 10 * time.Second
)

// Categorizer assigns uncategorized emails to one of the account's categories.
type Categorizer struct {
	emails     out.EmailRepository
	categories out.CategoryRepository
	classifier out.Classifier
	locker     out.AccountLocker
	hardCap    int
}

func NewCategorizer(
	emails out.EmailRepository,
	categories out.CategoryRepository,
	classifier out.Classifier,
	locker out.AccountLocker,
	hardCap int,
) *Categorizer {
	if hardCap <= 0 {
		hardCap = DefaultHardCap
	}
	return &Categorizer{
		emails:     emails,
		categories: categories,
		classifier: classifier,
		locker:     locker,
		hardCap:    hardCap,
	}
}

// HardCap returns the per-batch ceiling.
func (c *Categorizer) HardCap() int {
	return c.hardCap
}

// Categorize classifies up to min(limit, hard cap) uncategorized emails in insertion
// order and commits all matches in one transaction at the end.
func (c *Categorizer) Categorize(ctx context.Context, accountID int64, limit int) (int, error) {
	if limit > c.hardCap {
		limit = c.hardCap
	}
	if limit <= 0 {
		return 0, nil
	}

	log := logger.WithField("account_id", accountID)

	unlock, err := c.locker.Lock(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("acquire categorize lock for account %d: %w", accountID, err)
	}
	defer unlock()

	categories, err := c.categories.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("load categories for account %d: %w", accountID, err)
	}
	if len(categories) == 0 {
		log.Debug("[Categorizer] account has no categories")
		return 0, nil
	}
	known := make(map[int64]bool, len(categories))
	for _, cat := range categories {
		known[cat.ID] = true
	}

	candidates, err := c.emails.ListUncategorized(ctx, accountID, limit)
	if err != nil {
		return 0, fmt.Errorf("load uncategorized emails for account %d: %w", accountID, err)
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	assignments := make([]out.CategoryAssignment, 0, len(candidates))
	for _, email := range candidates {
		if ctx.Err() != nil {
			break
		}
		categoryID, ok := c.classifyOne(ctx, email, categories, known)
		if ok {
			assignments = append(assignments, out.CategoryAssignment{EmailID: email.ID, CategoryID: categoryID})
		}
	}

	if len(assignments) == 0 {
		return 0, nil
	}

	// Sunk classifier calls are committed even when the caller's deadline has passed.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	n, err := c.emails.AssignCategories(commitCtx, accountID, assignments)
	if err != nil {
		return 0, fmt.Errorf("commit %d category assignments for account %d: %w", len(assignments), accountID, err)
	}

	log.WithFields(map[string]any{
		"candidates": len(candidates),
		"assigned":   n,
	}).Info("[Categorizer] batch committed")
	return n, nil
}

func (c *Categorizer) classifyOne(ctx context.Context, email *domain.Email, categories []*domain.Category, known map[int64]bool) (int64, bool) {
	log := logger.WithFields(map[string]any{"account_id": email.AccountID, "email_id": email.ID})

	req, err := BuildRequest(email, categories)
	if err != nil {
		log.WithError(err).Error("[Categorizer] failed to build prompt")
		metrics.RecordClassification("error")
		return 0, false
	}

	resp, err := c.classifier.Classify(ctx, req)
	if err != nil {
		log.WithError(err).Warn("[Categorizer] classifier call failed")
		metrics.RecordClassification("error")
		return 0, false
	}

	id, err := ParseResponse(resp, known)
	switch {
	case errors.Is(err, domain.ErrClassificationAmbiguous):
		log.WithError(err).Warn("[Categorizer] leaving email uncategorized")
		metrics.RecordClassification("ambiguous")
		return 0, false
	case err != nil:
		metrics.RecordClassification("error")
		return 0, false
	case id == nil:
		metrics.RecordClassification("no_match")
		return 0, false
	}

	metrics.RecordClassification("matched")
	return *id, true
}

var _ in.CategorizeUseCase = (*Categorizer)(nil)
