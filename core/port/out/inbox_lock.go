package out

import "context"

// AccountLocker serializes sync and categorize per account.
// Lock blocks until the lock is held or ctx is done; the returned func releases it.
type AccountLocker interface {
	Lock(ctx context.Context, accountID int64) (unlock func(), err error)
}

// DeliveryDeduper drops repeated push deliveries. FirstSeen is false for repeats.
type DeliveryDeduper interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
}
