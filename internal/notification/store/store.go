// Package store persists notifications. Both implementations enforce a
// unique dedup key and guard status updates with the notification state
// machine.
package store

import (
	"context"
	"errors"
	"time"

	"billing-workers/internal/notification"
)

var (
	ErrNotFound = errors.New("notification not found")
	// ErrDuplicate is returned by Insert when the dedup key is already taken.
	ErrDuplicate = errors.New("duplicate dedup key")
	// ErrStatusConflict is returned when the row exists but its current
	// status does not allow the requested transition.
	ErrStatusConflict = errors.New("status does not allow transition")
)

type Store interface {
	Insert(ctx context.Context, n *notification.Notification) error
	Get(ctx context.Context, id string) (*notification.Notification, error)

	// Claim leases the row for one delivery attempt until the given time. It
	// returns ErrStatusConflict when the row no longer has status from and
	// retryCount, or another attempt holds an unexpired lease. MarkSent and
	// MarkFailed release the lease.
	Claim(ctx context.Context, id string, from notification.Status, retryCount int, now, until time.Time) error
	MarkSent(ctx context.Context, id string, sentAt time.Time, messageID string) error
	// MarkFailed increments retry_count. A nil nextRetryAt takes the row out
	// of the retry sweep.
	MarkFailed(ctx context.Context, id string, failedAt time.Time, reason string, nextRetryAt *time.Time) error
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkRead(ctx context.Context, id string, at time.Time) error

	ExistsByDedupKey(ctx context.Context, key string) (bool, error)
	ListDuePending(ctx context.Context, now time.Time, limit int) ([]*notification.Notification, error)
	ListRetryable(ctx context.Context, now time.Time, maxRetries, limit int) ([]*notification.Notification, error)
	CountByStatus(ctx context.Context) (map[notification.Status]int, error)
	List(ctx context.Context, filter notification.Filter, page notification.Page) ([]*notification.Notification, int, error)
}
