package classification

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
)

// SystemPrompt pins the classifier to a bare id or null.
const SystemPrompt = "You are an email categorization assistant. Return only the category ID number or null."

type promptCategory struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// BuildRequest renders the classification prompt for one email.
func BuildRequest(email *domain.Email, categories []*domain.Category) (out.ClassifyRequest, error) {
	options := make([]promptCategory, 0, len(categories))
	for _, c := range categories {
		options = append(options, promptCategory{ID: c.ID, Name: c.Name, Description: c.Description})
	}
	catJSON, err := json.MarshalIndent(options, "", "  ")
	if err != nil {
		return out.ClassifyRequest{}, fmt.Errorf("marshal categories: %w", err)
	}

	sender := email.SenderName
	if email.SenderEmail != "" && email.SenderEmail != email.SenderName {
		sender = fmt.Sprintf("%s (%s)", email.SenderName, email.SenderEmail)
	}

	var b strings.Builder
	b.WriteString("Categorize this email into one of the available categories.\n\n")
	b.WriteString("Email Details:\n")
	fmt.Fprintf(&b, "- Subject: %s\n", email.Subject)
	fmt.Fprintf(&b, "- From: %s\n", strings.TrimSpace(sender))
	fmt.Fprintf(&b, "- Preview: %s\n\n", email.Preview)
	b.WriteString("Available Categories:\n")
	b.Write(catJSON)
	b.WriteString("\n\nReturn only the category ID number that best fits this email. If none fit well, return null.\n")
	b.WriteString("Response format: Just the category ID number (e.g., 1) or null")

	return out.ClassifyRequest{SystemPrompt: SystemPrompt, Prompt: b.String()}, nil
}

// ParseResponse accepts a known category id or the null sentinel.
// It returns (nil, nil) for no match and an error matching
// domain.ErrClassificationAmbiguous for anything else.
func ParseResponse(resp string, known map[int64]bool) (*int64, error) {
	s := strings.TrimSpace(resp)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "", "null", "none":
		return nil, nil
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: response %q is not an id", domain.ErrClassificationAmbiguous, resp)
	}
	if !known[id] {
		return nil, fmt.Errorf("%w: category %d is not one of the account's", domain.ErrClassificationAmbiguous, id)
	}
	return &id, nil
}
