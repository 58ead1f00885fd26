package http

import (
	"inbox_server/core/port/in"
	"inbox_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

type NotificationHandler struct {
	watch in.WatchUseCase
}

func NewNotificationHandler(watch in.WatchUseCase) *NotificationHandler {
	return &NotificationHandler{watch: watch}
}

func (h *NotificationHandler) Register(router fiber.Router) {
	router.Post("/notifications/setup", h.Setup)
}

// Setup registers a Gmail watch for the session's mailbox.
func (h *NotificationHandler) Setup(c *fiber.Ctx) error {
	accountID, err := GetAccountID(c)
	if err != nil {
		return err
	}

	res, err := h.watch.Register(c.UserContext(), accountID)
	if err != nil {
		return serviceError(err, "gmail")
	}

	logger.WithField("account_id", accountID).Info("[NotificationHandler] watch registered until %s", res.Expiration)
	return c.JSON(fiber.Map{
		"status":     "success",
		"historyId":  res.HistoryID,
		"expiration": res.Expiration,
	})
}
