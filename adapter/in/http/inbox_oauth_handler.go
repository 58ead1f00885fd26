package http

import (
	"net/url"
	"strconv"
	"strings"

	"inbox_server/core/port/in"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// OAuthHandler runs the Google connect flow.
type OAuthHandler struct {
	connect     in.ConnectUseCase
	frontendURL string
}

// NewOAuthHandler answers the callback with JSON when frontendURL is empty.
func NewOAuthHandler(connect in.ConnectUseCase, frontendURL string) *OAuthHandler {
	return &OAuthHandler{
		connect:     connect,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Register mounts the flow under router, which is expected at /auth.
func (h *OAuthHandler) Register(router fiber.Router) {
	g := router.Group("/google")
	g.Get("/login", h.Login)
	g.Get("/callback", h.Callback)
}

func (h *OAuthHandler) Login(c *fiber.Ctx) error {
	authURL, err := h.connect.Begin(c.UserContext())
	if err != nil {
		return err
	}
	return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
}

func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("[OAuthHandler] consent denied: %s", errParam)
		return apperr.BadRequest("authorization denied: " + errParam)
	}

	res, err := h.connect.Complete(c.UserContext(), c.Query("code"), c.Query("state"))
	if err != nil {
		return err
	}

	if h.frontendURL == "" {
		return c.JSON(res)
	}

	q := url.Values{}
	q.Set("token", res.Token)
	q.Set("user_id", strconv.FormatInt(res.Account.ID, 10))
	return c.Redirect(h.frontendURL+"/auth-callback?"+q.Encode(), fiber.StatusFound)
}
