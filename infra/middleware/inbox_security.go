package middleware

import (
	"strings"

	"inbox_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// apiHeaders suit a JSON-only API: nothing may be framed, sniffed or rendered as a page.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
}

// noStorePrefixes return session tokens or mailbox content and must not be cached.
var noStorePrefixes = []string{"/auth/", "/api/"}

// SecurityHeaders sets the API response headers. OAuth and API responses are marked no-store.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, h := range apiHeaders {
			c.Set(h[0], h[1])
		}
		path := c.Path()
		for _, prefix := range noStorePrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Set(fiber.HeaderCacheControl, "no-store")
				break
			}
		}
		return c.Next()
	}
}

// MaxBodySize rejects bodies over maxBytes with PAYLOAD_TOO_LARGE.
// Webhook routes are mounted outside it since they must always answer 200.
func MaxBodySize(maxBytes int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(c.Body()) > maxBytes {
			return apperr.PayloadTooLarge(maxBytes)
		}
		return c.Next()
	}
}
