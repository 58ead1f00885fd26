package middleware

import (
	"strings"

	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
	"inbox_server/pkg/session"

	"github.com/gofiber/fiber/v2"
)

// LocalAccountID is the c.Locals key holding the session's account id.
const LocalAccountID = "account_id"

// SessionAuth validates the HS256 session token and stores the account id.
// Webhook paths and CORS preflights pass through.
func SessionAuth(sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}
		path := c.Path()
		if strings.HasPrefix(path, "/webhook/") || path == "/webhook" {
			return c.Next()
		}

		token := bearerToken(c)
		if token == "" {
			return apperr.Unauthorized("missing authorization")
		}

		accountID, claims, err := sessions.Parse(token)
		if err != nil {
			logger.WithError(err).Debug("[SessionAuth] token rejected")
			return apperr.InvalidToken("invalid session token")
		}

		c.Locals(LocalAccountID, accountID)
		c.Locals("account_email", claims.Email)
		c.SetUserContext(logger.ContextWithAccountID(c.UserContext(), accountID))
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Cookies("jwt_session")
}
