package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"billing-workers/internal/notification"
)

// Memory is an in-process Store for tests and single-node deployments
// without Postgres.
type Memory struct {
	mu     sync.RWMutex
	rows   map[string]*notification.Notification
	dedup  map[string]string
	leases map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		rows:   make(map[string]*notification.Notification),
		dedup:  make(map[string]string),
		leases: make(map[string]time.Time),
	}
}

func (m *Memory) Insert(_ context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.DedupKey != "" {
		if _, taken := m.dedup[n.DedupKey]; taken {
			return ErrDuplicate
		}
		m.dedup[n.DedupKey] = n.ID
	}
	m.rows[n.ID] = clone(n)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*notification.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(n), nil
}

func (m *Memory) Claim(_ context.Context, id string, from notification.Status, retryCount int, now, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	if n.Status != from || n.RetryCount != retryCount {
		return ErrStatusConflict
	}
	if lease, held := m.leases[id]; held && lease.After(now) {
		return ErrStatusConflict
	}
	m.leases[id] = until
	return nil
}

func (m *Memory) MarkSent(_ context.Context, id string, sentAt time.Time, messageID string) error {
	return m.update(id, notification.StatusSent, sentAt, func(n *notification.Notification) {
		n.SentAt = &sentAt
		n.MessageID = messageID
		n.NextRetryAt = nil
	})
}

func (m *Memory) MarkFailed(_ context.Context, id string, failedAt time.Time, reason string, nextRetryAt *time.Time) error {
	return m.update(id, notification.StatusFailed, failedAt, func(n *notification.Notification) {
		n.FailedAt = &failedAt
		n.FailureReason = reason
		n.RetryCount++
		if nextRetryAt != nil {
			t := *nextRetryAt
			n.NextRetryAt = &t
		} else {
			n.NextRetryAt = nil
		}
	})
}

func (m *Memory) MarkDelivered(_ context.Context, id string, at time.Time) error {
	return m.update(id, notification.StatusDelivered, at, func(n *notification.Notification) {
		n.DeliveredAt = &at
	})
}

func (m *Memory) MarkRead(_ context.Context, id string, at time.Time) error {
	return m.update(id, notification.StatusRead, at, func(n *notification.Notification) {
		n.ReadAt = &at
	})
}

func (m *Memory) update(id string, to notification.Status, at time.Time, apply func(*notification.Notification)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	if !notification.CanTransition(n.Status, to) {
		return ErrStatusConflict
	}
	n.Status = to
	n.UpdatedAt = at
	apply(n)
	delete(m.leases, id)
	return nil
}

func (m *Memory) ExistsByDedupKey(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.dedup[key]
	return ok, nil
}

func (m *Memory) ListDuePending(_ context.Context, now time.Time, limit int) ([]*notification.Notification, error) {
	out := m.collect(func(n *notification.Notification) bool {
		return n.Status == notification.StatusPending && n.Due(now)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func (m *Memory) ListRetryable(_ context.Context, now time.Time, maxRetries, limit int) ([]*notification.Notification, error) {
	out := m.collect(func(n *notification.Notification) bool {
		return n.Status == notification.StatusFailed &&
			n.RetryCount < maxRetries &&
			n.NextRetryAt != nil && !n.NextRetryAt.After(now)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(*out[j].NextRetryAt) })
	return truncate(out, limit), nil
}

func (m *Memory) CountByStatus(_ context.Context) (map[notification.Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[notification.Status]int)
	for _, n := range m.rows {
		counts[n.Status]++
	}
	return counts, nil
}

func (m *Memory) List(_ context.Context, filter notification.Filter, page notification.Page) ([]*notification.Notification, int, error) {
	page = page.Normalize()

	out := m.collect(func(n *notification.Notification) bool {
		return (filter.RecipientID == "" || n.RecipientID == filter.RecipientID) &&
			(filter.Status == "" || n.Status == filter.Status) &&
			(filter.Type == "" || n.Type == filter.Type)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := len(out)
	start := page.Offset()
	if start >= total {
		return []*notification.Notification{}, total, nil
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (m *Memory) collect(match func(*notification.Notification) bool) []*notification.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*notification.Notification
	for _, n := range m.rows {
		if match(n) {
			out = append(out, clone(n))
		}
	}
	return out
}

func truncate(items []*notification.Notification, limit int) []*notification.Notification {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func clone(n *notification.Notification) *notification.Notification {
	c := *n
	c.TemplateData = cloneMap(n.TemplateData)
	c.Metadata = cloneMap(n.Metadata)
	return &c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
