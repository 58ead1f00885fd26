package http

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

const defaultLogLimit = 10

var errEmptyPayload = errors.New("empty payload")

// pubsubEnvelope is the Pub/Sub push body.
type pubsubEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// gmailPayload is the decoded envelope data.
type gmailPayload struct {
	EmailAddress string   `json:"emailAddress"`
	HistoryID    flexUint `json:"historyId"`
}

// flexUint accepts a JSON number or a numeric string.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return err
	}
	*f = flexUint(v)
	return nil
}

type WebhookHandler struct {
	push in.PushUseCase
}

func NewWebhookHandler(push in.PushUseCase) *WebhookHandler {
	return &WebhookHandler{push: push}
}

// Register mounts the public webhook routes. They sit outside session auth.
func (h *WebhookHandler) Register(app fiber.Router) {
	app.Post("/webhook/gmail", h.GmailWebhook)
	app.Get("/webhook/gmail/test", h.Test)
	app.Get("/webhook/logs", h.ListLogs)
	app.Post("/webhook/logs", h.AppendLog)
}

// GmailWebhook always answers 200 so Pub/Sub does not redeliver.
func (h *WebhookHandler) GmailWebhook(c *fiber.Ctx) error {
	n, err := decodePush(c.Body())
	if err != nil {
		logger.WithError(err).Warn("[WebhookHandler] malformed push body")
		h.push.RecordDelivery(domain.WebhookLogEntry{
			Outcome: domain.WebhookMalformed,
			Detail:  err.Error(),
		})
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	outcome := h.push.HandlePush(c.UserContext(), n)
	return c.JSON(fiber.Map{"status": string(outcome)})
}

func (h *WebhookHandler) Test(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "webhook_reachable",
		"message": "Gmail webhook endpoint is working",
	})
}

func (h *WebhookHandler) ListLogs(c *fiber.Ctx) error {
	entries := h.push.RecentDeliveries(queryLimit(c, defaultLogLimit, maxListLimit))
	return c.JSON(fiber.Map{
		"count": len(entries),
		"logs":  entries,
	})
}

type manualLogRequest struct {
	EmailAddress string `json:"email_address"`
	HistoryID    uint64 `json:"history_id"`
	Detail       string `json:"detail"`
}

// AppendLog stores a hand-written entry for debugging.
func (h *WebhookHandler) AppendLog(c *fiber.Ctx) error {
	var req manualLogRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	h.push.RecordDelivery(domain.WebhookLogEntry{
		EmailAddress: req.EmailAddress,
		HistoryID:    req.HistoryID,
		Outcome:      domain.WebhookManual,
		Detail:       req.Detail,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "recorded"})
}

func decodePush(body []byte) (in.PushNotification, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return in.PushNotification{}, errEmptyPayload
	}

	var env pubsubEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return in.PushNotification{}, err
	}
	if env.Message.Data == "" {
		return in.PushNotification{}, errEmptyPayload
	}

	raw, err := decodeBase64(env.Message.Data)
	if err != nil {
		return in.PushNotification{}, err
	}

	var payload gmailPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return in.PushNotification{}, err
	}

	return in.PushNotification{
		EmailAddress: strings.TrimSpace(payload.EmailAddress),
		HistoryID:    uint64(payload.HistoryID),
		MessageID:    env.Message.MessageID,
	}, nil
}

// decodeBase64 tries padded std, URL-safe, then the raw variants.
func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
