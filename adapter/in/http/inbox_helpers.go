package http

import (
	"strconv"

	"inbox_server/infra/middleware"
	"inbox_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// GetAccountID returns the account id stored by the session middleware.
func GetAccountID(c *fiber.Ctx) (int64, error) {
	id, ok := c.Locals(middleware.LocalAccountID).(int64)
	if !ok || id <= 0 {
		return 0, apperr.Unauthorized("missing session")
	}
	return id, nil
}

func parseIDParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput(name, "must be a positive integer")
	}
	return id, nil
}

// queryLimit reads ?limit=, falling back to def and clamping to max.
func queryLimit(c *fiber.Ctx, def, max int) int {
	limit := c.QueryInt("limit", def)
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
