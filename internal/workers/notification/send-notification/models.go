package sendnotification

import (
	"context"
	"time"

	"billing-workers/internal/notification"
	"billing-workers/internal/notification/dispatch"
)

type Input struct {
	Type         string                 `json:"type"`
	Recipient    notification.Recipient `json:"recipient"`
	Channel      string                 `json:"channel,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	DedupKey     string                 `json:"dedupKey,omitempty"`
	ScheduledFor *time.Time             `json:"scheduledFor,omitempty"`
}

type Output struct {
	NotificationID     string `json:"notificationId,omitempty"`
	NotificationStatus string `json:"notificationStatus"`
	Channel            string `json:"channel,omitempty"`
	Suppressed         bool   `json:"suppressed"`
	Duplicate          bool   `json:"duplicate"`
	FailureReason      string `json:"failureReason,omitempty"`
}

// Sender is the dispatch engine's single-send entry point.
type Sender interface {
	Send(ctx context.Context, req dispatch.Request) (*notification.Notification, error)
}
