package dispatch

import (
	"context"
	"errors"
	"fmt"

	"billing-workers/internal/notification"
	"billing-workers/internal/notification/template"
)

// BulkRequest sends the same type and payload to many recipients.
type BulkRequest struct {
	Type       notification.Type
	Recipients []notification.Recipient
	Channel    notification.Channel
	Payload    template.Payload
	Metadata   map[string]interface{}
}

// BulkResult is the outcome for one recipient. Suppressed results are
// neither successes nor failures.
type BulkResult struct {
	RecipientID    string              `json:"recipientId"`
	NotificationID string              `json:"notificationId,omitempty"`
	Status         notification.Status `json:"status,omitempty"`
	Success        bool                `json:"success"`
	Suppressed     bool                `json:"suppressed,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// SendBulk sends to every recipient in order. One recipient's failure never
// stops the batch and nothing already sent is rolled back.
func (e *Engine) SendBulk(ctx context.Context, req BulkRequest) []BulkResult {
	results := make([]BulkResult, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		results = append(results, e.sendOne(ctx, req, r))
	}
	return results
}

func (e *Engine) sendOne(ctx context.Context, req BulkRequest, r notification.Recipient) (result BulkResult) {
	result.RecipientID = r.ID
	defer func() {
		if p := recover(); p != nil {
			result.Success = false
			result.Error = fmt.Sprintf("panic: %v", p)
		}
	}()

	n, err := e.Send(ctx, Request{
		Type:      req.Type,
		Recipient: r,
		Channel:   req.Channel,
		Payload:   req.Payload,
		Metadata:  copyMetadata(req.Metadata),
	})
	switch {
	case errors.Is(err, ErrDuplicate):
		result.Suppressed = true
	case err != nil:
		result.Error = err.Error()
		if n != nil {
			result.NotificationID = n.ID
			result.Status = n.Status
		}
	case n == nil:
		result.Suppressed = true
	default:
		result.NotificationID = n.ID
		result.Status = n.Status
		result.Success = n.Status != notification.StatusFailed
		if !result.Success {
			result.Error = n.FailureReason
		}
	}
	return result
}

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Failures counts results that are neither successful nor suppressed.
func Failures(results []BulkResult) int {
	n := 0
	for _, r := range results {
		if !r.Success && !r.Suppressed {
			n++
		}
	}
	return n
}
