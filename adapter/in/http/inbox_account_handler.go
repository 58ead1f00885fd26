package http

import (
	"inbox_server/core/port/in"

	"github.com/gofiber/fiber/v2"
)

type AccountHandler struct {
	accounts in.AccountUseCase
}

func NewAccountHandler(accounts in.AccountUseCase) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

func (h *AccountHandler) Register(router fiber.Router) {
	router.Get("/account", h.Get)
}

func (h *AccountHandler) Get(c *fiber.Ctx) error {
	accountID, err := GetAccountID(c)
	if err != nil {
		return err
	}
	account, err := h.accounts.Get(c.UserContext(), accountID)
	if err != nil {
		return err
	}
	return c.JSON(account)
}
