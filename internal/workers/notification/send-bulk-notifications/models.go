package sendbulknotifications

import (
	"context"

	"billing-workers/internal/notification"
	"billing-workers/internal/notification/dispatch"
)

type Input struct {
	Type       string                   `json:"type"`
	Recipients []notification.Recipient `json:"recipients"`
	Channel    string                   `json:"channel,omitempty"`
	Data       map[string]interface{}   `json:"data,omitempty"`
	Metadata   map[string]interface{}   `json:"metadata,omitempty"`
}

type Output struct {
	Total      int                   `json:"total"`
	Succeeded  int                   `json:"succeeded"`
	Failed     int                   `json:"failed"`
	Suppressed int                   `json:"suppressed"`
	Results    []dispatch.BulkResult `json:"results"`
}

type BulkSender interface {
	SendBulk(ctx context.Context, req dispatch.BulkRequest) []dispatch.BulkResult
}
