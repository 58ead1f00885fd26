package mail

import (
	"strings"
	"time"
	"unicode/utf8"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
)

// maxPreviewRunes bounds the stored snippet.
const maxPreviewRunes = 500

// Normalizer maps Gmail payloads to canonical emails. It does no I/O.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewNormalizerWithClock fixes the fallback receive time (for tests).
func NewNormalizerWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize returns a *domain.ParseFailure when the payload has no id.
func (n *Normalizer) Normalize(raw *out.RawMessage, accountID int64) (*domain.Email, error) {
	if raw == nil {
		return nil, &domain.ParseFailure{Reason: "empty payload"}
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, &domain.ParseFailure{ExternalID: raw.ThreadID, Reason: "message id missing"}
	}

	senderName, senderEmail := ParseSender(header(raw.Headers, "From"))

	receivedAt := n.now().UTC()
	if raw.InternalDate > 0 {
		receivedAt = time.UnixMilli(raw.InternalDate).UTC()
	}

	labels := make([]string, len(raw.LabelIDs))
	copy(labels, raw.LabelIDs)

	return &domain.Email{
		AccountID:   accountID,
		ExternalID:  raw.ID,
		ThreadID:    raw.ThreadID,
		Subject:     header(raw.Headers, "Subject"),
		SenderName:  senderName,
		SenderEmail: senderEmail,
		Recipient:   header(raw.Headers, "To"),
		Preview:     truncateRunes(raw.Snippet, maxPreviewRunes),
		ReceivedAt:  receivedAt,
		Labels:      labels,
		IsRead:      !hasLabel(labels, domain.LabelUnread),
		IsImportant: hasLabel(labels, domain.LabelImportant),
	}, nil
}

// ParseSender splits a From header into display name and address.
//
//	"Jane Doe" <jane@x.com>  -> Jane Doe, jane@x.com
//	jane@x.com               -> jane@x.com, jane@x.com
//	Mailer Daemon            -> Mailer Daemon, ""
//	Jane <jane@x.com         -> Jane <jane@x.com, Jane <jane@x.com
func ParseSender(from string) (name, address string) {
	// Bracket form needs both '<' and '>'; a lone '<' falls through to the bare forms.
	if lt := strings.Index(from, "<"); lt >= 0 && strings.Contains(from, ">") {
		name = strings.TrimSpace(strings.Trim(strings.TrimSpace(from[:lt]), `"'`))
		address = from[lt+1:]
		if gt := strings.Index(address, ">"); gt >= 0 {
			address = address[:gt]
		}
		return name, strings.TrimSpace(address)
	}
	if strings.Contains(from, "@") {
		address = strings.TrimSpace(from)
		return address, address
	}
	return from, ""
}

// header returns the first header with the given name, ignoring case.
func header(headers []out.Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
