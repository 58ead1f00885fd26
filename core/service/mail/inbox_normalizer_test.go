package mail

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleRaw() *out.RawMessage {
	return &out.RawMessage{
		ID:           "18f0a1b2c3d4e5f6",
		ThreadID:     "18f0a1b2c3d4e5f0",
		InternalDate: 1714560000000,
		LabelIDs:     []string{"INBOX", "UNREAD", "IMPORTANT"},
		Snippet:      "Quarterly numbers attached",
		Headers: []out.Header{
			{Name: "From", Value: `"Jane Doe" <jane@x.com>`},
			{Name: "To", Value: "me@example.com"},
			{Name: "Subject", Value: "Q1 report"},
		},
	}
}

func TestParseSender(t *testing.T) {
	tests := []struct {
		name         string
		from         string
		expectedName string
		expectedAddr string
	}{
		{"angle brackets", "Jane Doe <jane@x.com>", "Jane Doe", "jane@x.com"},
		{"quoted name", `"Doe, Jane" <jane@x.com>`, "Doe, Jane", "jane@x.com"},
		{"padded address", "Jane <  jane@x.com >", "Jane", "jane@x.com"},
		{"address only in brackets", "<noreply@x.com>", "", "noreply@x.com"},
		{"bare address", " jane@x.com ", "jane@x.com", "jane@x.com"},
		{"no address", "Mailer Daemon", "Mailer Daemon", ""},
		{"empty", "", "", ""},
		{"unclosed bracket with at", "Jane <jane@x.com", "Jane <jane@x.com", "Jane <jane@x.com"},
		{"unclosed bracket without at", "Jane <jane", "Jane <jane", ""},
		{"stray close before open", "a>b <jane@x.com", "a>b", "jane@x.com"},
		{"empty brackets", "Jane <>", "Jane", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, addr := ParseSender(tt.from)
			if name != tt.expectedName {
				t.Errorf("expected name %q, got %q", tt.expectedName, name)
			}
			if addr != tt.expectedAddr {
				t.Errorf("expected address %q, got %q", tt.expectedAddr, addr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	n := NewNormalizerWithClock(func() time.Time { return testNow })

	email, err := n.Normalize(sampleRaw(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if email.AccountID != 42 {
		t.Errorf("expected account 42, got %d", email.AccountID)
	}
	if email.ExternalID != "18f0a1b2c3d4e5f6" {
		t.Errorf("expected external id, got %q", email.ExternalID)
	}
	if email.SenderName != "Jane Doe" || email.SenderEmail != "jane@x.com" {
		t.Errorf("unexpected sender %q <%q>", email.SenderName, email.SenderEmail)
	}
	if email.Subject != "Q1 report" || email.Recipient != "me@example.com" {
		t.Errorf("unexpected headers: subject=%q to=%q", email.Subject, email.Recipient)
	}
	if !email.ReceivedAt.Equal(time.UnixMilli(1714560000000)) {
		t.Errorf("unexpected received_at %s", email.ReceivedAt)
	}
	if email.IsRead {
		t.Error("expected UNREAD label to give is_read=false")
	}
	if !email.IsImportant {
		t.Error("expected IMPORTANT label to give is_important=true")
	}
	if email.CategoryID != nil {
		t.Error("expected no category on a fresh email")
	}
}

func TestNormalizeReadFlags(t *testing.T) {
	tests := []struct {
		name              string
		labels            []string
		expectedRead      bool
		expectedImportant bool
	}{
		{"unread", []string{"UNREAD"}, false, false},
		{"read", []string{"INBOX"}, true, false},
		{"no labels", nil, true, false},
		{"important read", []string{"IMPORTANT"}, true, true},
	}

	n := NewNormalizerWithClock(func() time.Time { return testNow })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := sampleRaw()
			raw.LabelIDs = tt.labels
			email, err := n.Normalize(raw, 1)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if email.IsRead != tt.expectedRead {
				t.Errorf("expected is_read=%v, got %v", tt.expectedRead, email.IsRead)
			}
			if email.IsImportant != tt.expectedImportant {
				t.Errorf("expected is_important=%v, got %v", tt.expectedImportant, email.IsImportant)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := NewNormalizerWithClock(func() time.Time { return testNow })
	raw := sampleRaw()

	first, err := n.Normalize(raw, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := n.Normalize(raw, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical results:\n%+v\n%+v", first, second)
	}
}

func TestNormalizeMissingInternalDateUsesNow(t *testing.T) {
	n := NewNormalizerWithClock(func() time.Time { return testNow })
	raw := sampleRaw()
	raw.InternalDate = 0

	email, err := n.Normalize(raw, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !email.ReceivedAt.Equal(testNow) {
		t.Errorf("expected fallback %s, got %s", testNow, email.ReceivedAt)
	}
}

func TestNormalizeParseFailure(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name string
		raw  *out.RawMessage
	}{
		{"nil payload", nil},
		{"missing id", &out.RawMessage{ThreadID: "t1"}},
		{"blank id", &out.RawMessage{ID: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, err := n.Normalize(tt.raw, 1)
			if email != nil {
				t.Errorf("expected no email, got %+v", email)
			}
			if !errors.Is(err, domain.ErrParseFailure) {
				t.Errorf("expected ErrParseFailure, got %v", err)
			}
			var pf *domain.ParseFailure
			if !errors.As(err, &pf) {
				t.Errorf("expected *domain.ParseFailure, got %T", err)
			}
		})
	}
}

func TestNormalizeHeaderCaseAndPreviewBound(t *testing.T) {
	n := NewNormalizer()
	raw := sampleRaw()
	raw.Headers = []out.Header{{Name: "subject", Value: "lower"}}
	long := make([]rune, maxPreviewRunes+20)
	for i := range long {
		long[i] = 'é'
	}
	raw.Snippet = string(long)

	email, err := n.Normalize(raw, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.Subject != "lower" {
		t.Errorf("expected case-insensitive header match, got %q", email.Subject)
	}
	if got := len([]rune(email.Preview)); got != maxPreviewRunes {
		t.Errorf("expected preview of %d runes, got %d", maxPreviewRunes, got)
	}
	if email.SenderEmail != "" {
		t.Errorf("expected empty sender for missing From, got %q", email.SenderEmail)
	}
}
