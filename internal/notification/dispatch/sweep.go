package dispatch

import (
	"context"
	"errors"
	"fmt"

	"billing-workers/internal/notification"
)

// Process re-attempts a single stored notification on demand. Pending rows
// must be due; failed rows must have retry budget and must not have failed
// permanently. The retry window is not waited for.
func (e *Engine) Process(ctx context.Context, id string) (*notification.Notification, error) {
	n, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch n.Status {
	case notification.StatusPending:
		if !n.Due(e.clock.Now()) {
			return n, ErrNotRetryable
		}
	case notification.StatusFailed:
		if n.NextRetryAt == nil || n.RetryCount >= e.cfg.MaxRetries {
			return n, ErrNotRetryable
		}
	default:
		return n, ErrNotRetryable
	}

	if err := e.attempt(ctx, n); err != nil {
		if errors.Is(err, errNotClaimed) {
			return e.current(ctx, n), nil
		}
		return n, err
	}
	return n, nil
}

// ProcessPending delivers pending notifications whose scheduled time has
// come. It returns how many were attempted.
func (e *Engine) ProcessPending(ctx context.Context) (int, error) {
	due, err := e.store.ListDuePending(ctx, e.clock.Now(), e.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due pending: %w", err)
	}
	return e.sweep(ctx, "pending", due), nil
}

// RetryFailed re-attempts failed notifications whose retry window opened.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	retryable, err := e.store.ListRetryable(ctx, e.clock.Now(), e.cfg.MaxRetries, e.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list retryable: %w", err)
	}
	return e.sweep(ctx, "retry", retryable), nil
}

func (e *Engine) sweep(ctx context.Context, name string, items []*notification.Notification) int {
	attempted := 0
	for _, n := range items {
		if ctx.Err() != nil {
			break
		}
		if err := e.attempt(ctx, n); err != nil {
			if errors.Is(err, errNotClaimed) {
				continue
			}
			e.logger.Error("sweep attempt failed", map[string]interface{}{
				"sweep":          name,
				"notificationId": n.ID,
				"error":          err.Error(),
			})
			continue
		}
		attempted++
	}
	if attempted > 0 {
		e.logger.Info("sweep finished", map[string]interface{}{
			"sweep":     name,
			"attempted": attempted,
			"selected":  len(items),
		})
	}
	return attempted
}

// MarkDelivered records a channel delivery receipt.
func (e *Engine) MarkDelivered(ctx context.Context, id string) (*notification.Notification, error) {
	return e.receipt(ctx, id, notification.StatusDelivered)
}

// MarkRead records a read receipt.
func (e *Engine) MarkRead(ctx context.Context, id string) (*notification.Notification, error) {
	return e.receipt(ctx, id, notification.StatusRead)
}

func (e *Engine) receipt(ctx context.Context, id string, to notification.Status) (*notification.Notification, error) {
	now := e.clock.Now()

	var err error
	if to == notification.StatusDelivered {
		err = e.store.MarkDelivered(ctx, id, now)
	} else {
		err = e.store.MarkRead(ctx, id, now)
	}
	if err != nil {
		return nil, err
	}

	n, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.notify(ctx, n)
	return n, nil
}

func (e *Engine) Stats(ctx context.Context) (notification.Stats, error) {
	counts, err := e.store.CountByStatus(ctx)
	if err != nil {
		return notification.Stats{}, fmt.Errorf("count by status: %w", err)
	}
	return notification.NewStats(counts), nil
}

// History returns one page of notifications matching filter, newest first.
func (e *Engine) History(ctx context.Context, filter notification.Filter, page notification.Page) (*notification.HistoryPage, error) {
	page = page.Normalize()
	items, total, err := e.store.List(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if items == nil {
		items = []*notification.Notification{}
	}
	return &notification.HistoryPage{
		Items:      items,
		Total:      total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: (total + page.Limit - 1) / page.Limit,
	}, nil
}
