package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"billing-workers/internal/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newPending(id, dedupKey string, createdAt time.Time) *notification.Notification {
	return &notification.Notification{
		ID:          id,
		Type:        notification.TypePaymentReminder,
		Channel:     notification.ChannelWhatsApp,
		Status:      notification.StatusPending,
		RecipientID: "tenant-1",
		Language:    "ar",
		Body:        "body",
		DedupKey:    dedupKey,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestMemory_InsertDedup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Insert(ctx, newPending("n-1", "payment_reminder:p-1:5d", baseTime)))
	assert.ErrorIs(t, m.Insert(ctx, newPending("n-2", "payment_reminder:p-1:5d", baseTime)), ErrDuplicate)

	// notifications without a dedup key never collide
	require.NoError(t, m.Insert(ctx, newPending("n-3", "", baseTime)))
	require.NoError(t, m.Insert(ctx, newPending("n-4", "", baseTime)))

	exists, err := m.ExistsByDedupKey(ctx, "payment_reminder:p-1:5d")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = m.Get(ctx, "n-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_StateMachine(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Insert(ctx, newPending("n-1", "", baseTime)))

	retryAt := baseTime.Add(15 * time.Minute)
	require.NoError(t, m.MarkFailed(ctx, "n-1", baseTime, "timeout", &retryAt))

	n, err := m.Get(ctx, "n-1")
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	assert.Equal(t, retryAt, *n.NextRetryAt)

	require.NoError(t, m.MarkSent(ctx, "n-1", retryAt, "wamid.1"))
	n, _ = m.Get(ctx, "n-1")
	assert.Equal(t, notification.StatusSent, n.Status)
	assert.Nil(t, n.NextRetryAt)
	assert.Equal(t, "wamid.1", n.MessageID)

	assert.ErrorIs(t, m.MarkFailed(ctx, "n-1", retryAt, "late", nil), ErrStatusConflict)

	require.NoError(t, m.MarkDelivered(ctx, "n-1", retryAt.Add(time.Minute)))
	require.NoError(t, m.MarkRead(ctx, "n-1", retryAt.Add(2*time.Minute)))
	assert.ErrorIs(t, m.MarkDelivered(ctx, "n-1", retryAt), ErrStatusConflict)
	assert.ErrorIs(t, m.MarkRead(ctx, "missing", retryAt), ErrNotFound)
}

func TestMemory_ListDuePending(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	future := baseTime.Add(time.Hour)
	scheduled := newPending("later", "", baseTime)
	scheduled.ScheduledFor = &future

	require.NoError(t, m.Insert(ctx, newPending("second", "", baseTime.Add(time.Minute))))
	require.NoError(t, m.Insert(ctx, newPending("first", "", baseTime)))
	require.NoError(t, m.Insert(ctx, scheduled))

	due, err := m.ListDuePending(ctx, baseTime.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "first", due[0].ID)
	assert.Equal(t, "second", due[1].ID)

	due, err = m.ListDuePending(ctx, future, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestMemory_ListRetryable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	past := baseTime.Add(-time.Minute)
	future := baseTime.Add(time.Hour)

	for _, id := range []string{"ready", "waiting", "permanent", "exhausted"} {
		require.NoError(t, m.Insert(ctx, newPending(id, "", baseTime)))
	}
	require.NoError(t, m.MarkFailed(ctx, "ready", past, "boom", &past))
	require.NoError(t, m.MarkFailed(ctx, "waiting", past, "boom", &future))
	require.NoError(t, m.MarkFailed(ctx, "permanent", past, "no token", nil))
	for i := 0; i < 3; i++ {
		require.NoError(t, m.MarkFailed(ctx, "exhausted", past, "boom", &past))
	}

	retryable, err := m.ListRetryable(ctx, baseTime, 3, 10)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, "ready", retryable[0].ID)
}

func TestMemory_ListAndCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 0; i < 25; i++ {
		n := newPending(fmt.Sprintf("n-%02d", i), "", baseTime.Add(time.Duration(i)*time.Minute))
		if i%5 == 0 {
			n.RecipientID = "tenant-2"
		}
		require.NoError(t, m.Insert(ctx, n))
	}
	require.NoError(t, m.MarkSent(ctx, "n-24", baseTime, "id"))

	items, total, err := m.List(ctx, notification.Filter{}, notification.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	require.Len(t, items, 10)
	assert.Equal(t, "n-24", items[0].ID)

	items, total, err = m.List(ctx, notification.Filter{}, notification.Page{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Len(t, items, 5)

	items, total, err = m.List(ctx, notification.Filter{RecipientID: "tenant-2"}, notification.Page{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, items, 5)

	items, _, err = m.List(ctx, notification.Filter{}, notification.Page{Page: 9, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, items)

	counts, err := m.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24, counts[notification.StatusPending])
	assert.Equal(t, 1, counts[notification.StatusSent])
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	n := newPending("n-1", "", baseTime)
	n.Metadata = map[string]interface{}{notification.MetaPaymentID: "p-1"}
	require.NoError(t, m.Insert(ctx, n))

	n.Metadata[notification.MetaPaymentID] = "changed"
	got, _ := m.Get(ctx, "n-1")
	assert.Equal(t, "p-1", got.Metadata[notification.MetaPaymentID])
}

func TestMemory_Claim(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Insert(ctx, newPending("n-1", "", baseTime)))
	lease := baseTime.Add(time.Minute)

	require.NoError(t, m.Claim(ctx, "n-1", notification.StatusPending, 0, baseTime, lease))
	assert.ErrorIs(t, m.Claim(ctx, "n-1", notification.StatusPending, 0, baseTime, lease), ErrStatusConflict, "lease is held")

	// an abandoned lease expires
	require.NoError(t, m.Claim(ctx, "n-1", notification.StatusPending, 0, lease, lease.Add(time.Minute)))

	retryAt := baseTime.Add(15 * time.Minute)
	require.NoError(t, m.MarkFailed(ctx, "n-1", lease, "timeout", &retryAt))

	// a caller holding the pending copy can no longer claim it
	assert.ErrorIs(t, m.Claim(ctx, "n-1", notification.StatusPending, 0, retryAt, retryAt.Add(time.Minute)), ErrStatusConflict)
	assert.ErrorIs(t, m.Claim(ctx, "n-1", notification.StatusFailed, 0, retryAt, retryAt.Add(time.Minute)), ErrStatusConflict)

	// MarkFailed released the lease
	require.NoError(t, m.Claim(ctx, "n-1", notification.StatusFailed, 1, retryAt, retryAt.Add(time.Minute)))
	assert.ErrorIs(t, m.Claim(ctx, "missing", notification.StatusPending, 0, retryAt, retryAt), ErrNotFound)
}
