package domain

import "time"

// WebhookOutcome describes what happened to one push delivery.
type WebhookOutcome string

const (
	WebhookAccepted  WebhookOutcome = "accepted"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookMalformed WebhookOutcome = "malformed"
	WebhookManual    WebhookOutcome = "manual"
)

// WebhookLogEntry is one record in the webhook debug log.
type WebhookLogEntry struct {
	ReceivedAt   time.Time      `json:"received_at"`
	EmailAddress string         `json:"email_address,omitempty"`
	HistoryID    uint64         `json:"history_id,omitempty"`
	MessageID    string         `json:"message_id,omitempty"`
	AccountID    int64          `json:"account_id,omitempty"`
	Outcome      WebhookOutcome `json:"outcome"`
	Detail       string         `json:"detail,omitempty"`
}

// WatchResult is returned by a push registration.
type WatchResult struct {
	HistoryID  uint64    `json:"history_id"`
	Expiration time.Time `json:"expiration"`
}
