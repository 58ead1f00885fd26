package out

import (
	"context"
	"time"
)

// ParseFailureRecord keeps an unparsable payload for later inspection.
type ParseFailureRecord struct {
	AccountID  int64
	ExternalID string
	Reason     string
	Payload    *RawMessage
	FailedAt   time.Time
}

// FailureArchive stores parse failures.
type FailureArchive interface {
	RecordParseFailure(ctx context.Context, rec ParseFailureRecord) error
}
