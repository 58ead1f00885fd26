package domain

import "time"

// Gmail system labels the normalizer reads.
const (
	LabelUnread    = "UNREAD"
	LabelImportant = "IMPORTANT"
	LabelInbox     = "INBOX"
)

// Email is the canonical record for one ingested message.
// ExternalID is the provider's permanent message id and is unique across the store.
type Email struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	CategoryID  *int64    `json:"category_id"`
	ExternalID  string    `json:"external_id"`
	ThreadID    string    `json:"thread_id"`
	Subject     string    `json:"subject"`
	SenderName  string    `json:"sender"`
	SenderEmail string    `json:"sender_email"`
	Recipient   string    `json:"recipient"`
	Preview     string    `json:"body_preview"`
	ReceivedAt  time.Time `json:"received_at"`
	Labels      []string  `json:"labels"`
	IsRead      bool      `json:"is_read"`
	IsImportant bool      `json:"is_important"`
	CreatedAt   time.Time `json:"created_at"`
}

// EmailFilter narrows an email listing.
type EmailFilter struct {
	AccountID     int64
	CategoryID    *int64
	Uncategorized bool
	Limit         int
}
