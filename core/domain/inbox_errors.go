package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialInvalid means the provider rejected the refresh token.
	// The account must be re-authorized; never retry automatically.
	ErrCredentialInvalid = errors.New("credential invalid")

	// ErrProviderUnavailable is a transient failure of the mail provider or classifier.
	ErrProviderUnavailable = errors.New("provider unavailable")

	ErrParseFailure            = errors.New("parse failure")
	ErrDuplicateMessage        = errors.New("duplicate message")
	ErrClassificationAmbiguous = errors.New("classification ambiguous")
)

// ParseFailure is returned when a single provider payload cannot be normalized.
type ParseFailure struct {
	ExternalID string
	Reason     string
}

func (e *ParseFailure) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("parse failure: %s", e.Reason)
	}
	return fmt.Sprintf("parse failure for message %s: %s", e.ExternalID, e.Reason)
}

func (e *ParseFailure) Is(target error) bool {
	return target == ErrParseFailure
}
