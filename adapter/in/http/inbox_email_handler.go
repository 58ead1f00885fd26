package http

import (
	"errors"
	"strconv"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/service/mail"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// EmailHandlerConfig holds the manual trigger sizes.
type EmailHandlerConfig struct {
	ManualSyncMax    int
	ManualCategorize int
}

type EmailHandler struct {
	sync       in.SyncUseCase
	categorize in.CategorizeUseCase
	categories in.CategoryUseCase
	accounts   in.AccountUseCase
	cfg        EmailHandlerConfig
}

func NewEmailHandler(
	sync in.SyncUseCase,
	categorize in.CategorizeUseCase,
	categories in.CategoryUseCase,
	accounts in.AccountUseCase,
	cfg EmailHandlerConfig,
) *EmailHandler {
	if cfg.ManualSyncMax <= 0 {
		cfg.ManualSyncMax = 100
	}
	if cfg.ManualCategorize <= 0 {
		cfg.ManualCategorize = 3
	}
	return &EmailHandler{
		sync:       sync,
		categorize: categorize,
		categories: categories,
		accounts:   accounts,
		cfg:        cfg,
	}
}

func (h *EmailHandler) Register(router fiber.Router) {
	emails := router.Group("/emails")
	emails.Get("/", h.List)
	emails.Get("/uncategorized", h.ListUncategorized)
	emails.Post("/sync", h.Sync)
	emails.Post("/categorize", h.Categorize)
	emails.Patch("/:id/category", h.Move)
}

// Sync runs a manual sync for the session's account.
func (h *EmailHandler) Sync(c *fiber.Ctx) error {
	accountID, err := GetAccountID(c)
	if err != nil {
		return err
	}
	if err := h.requireConnected(c, accountID); err != nil {
		return err
	}

	ctx := mail.WithTrigger(c.UserContext(), mail.TriggerManual)
	stored, err := h.sync.Sync(ctx, accountID, h.cfg.ManualSyncMax)
	if err != nil {
		return serviceError(err, "gmail")
	}

	// A revoked grant surfaces as zero stored plus the reconnect flag.
	if stored == 0 {
		if err := h.requireConnected(c, accountID); err != nil {
			return err
		}
	}

	return c.JSON(fiber.Map{
		"status":        "success",
		"emails_synced": stored,
		"message":       "Synced " + strconv.Itoa(stored) + " new emails",
	})
}

func (h *EmailHandler) Categorize(c *fiber.Ctx) error {
	accountID, err := GetAccountID(c)
	if err != nil {
		return err
	}

	n, err := h.categorize.Categorize(c.UserContext(), accountID, h.cfg.ManualCategorize)
	if err != nil {
		return serviceError(err, "openai")
	}

	return c.JSON(fiber.Map{
		"status":             "success",
		"emails_categorized": n,
		"message":            "Categorized " + strconv.Itoa(n) + " emails",
	})
}

func (h *EmailHandler) List(c *fiber.Ctx) error {
	accountID, err := GetAccountID(c)
	if err != nil {
		return err
	}

	filter := domain.EmailFilter{
		AccountID: accountID,
		Limit:     queryLimit(c, defaultListLimit, maxListLimit),
	}
	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return apperr.InvalidInput("category_id", "must be a positive integer")
		}
		filter.CategoryID = &id
	}

	return h.respondList(c, filter)
}

func (h *EmailHandler) ListUncategorized(c *fiber.Ctx) error {
	accountID, err := GetAccountID(c)
	if err != nil {
		return err
	}
	return h.respondList(c, domain.EmailFilter{
		AccountID:     accountID,
		Uncategorized: true,
		Limit:         queryLimit(c, defaultListLimit, maxListLimit),
	})
}

func (h *EmailHandler) respondList(c *fiber.Ctx, filter domain.EmailFilter) error {
	emails, err := h.categories.ListEmails(c.UserContext(), filter)
	if err != nil {
		return err
	}
	if emails == nil {
		emails = []*domain.Email{}
	}
	return c.JSON(fiber.Map{
		"emails": emails,
		"count":  len(emails),
	})
}

type moveRequest struct {
	CategoryID *int64 `json:"category_id"`
}

// Move files the email under category_id, or clears it when category_id is null.
func (h *EmailHandler) Move(c *fiber.Ctx) error {
	accountID, err := GetAccountID(c)
	if err != nil {
		return err
	}
	emailID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req moveRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	if err := h.categories.MoveEmail(c.UserContext(), accountID, emailID, req.CategoryID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status":      "success",
		"email_id":    emailID,
		"category_id": req.CategoryID,
	})
}

func (h *EmailHandler) requireConnected(c *fiber.Ctx, accountID int64) error {
	account, err := h.accounts.Get(c.UserContext(), accountID)
	if err != nil {
		return err
	}
	if account.NeedsReconnect {
		logger.WithField("account_id", accountID).Info("[EmailHandler] sync refused, account needs reconnect")
		return apperr.ReconnectRequired(domain.ErrCredentialInvalid)
	}
	return nil
}

// serviceError maps pipeline sentinels onto API errors.
func serviceError(err error, provider string) error {
	if apperr.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrCredentialInvalid):
		return apperr.ReconnectRequired(err)
	case errors.Is(err, domain.ErrProviderUnavailable):
		return apperr.ProviderUnavailable(provider, err)
	default:
		return apperr.Internal("", err)
	}
}
