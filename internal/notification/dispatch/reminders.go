package dispatch

import (
	"context"

	"billing-workers/internal/billing/reminder"
	"billing-workers/internal/notification"
	"billing-workers/internal/notification/template"
)

// PaymentReminder is one (payment, tier) reminder candidate.
type PaymentReminder struct {
	PaymentID  string
	ContractID string
	Tier       reminder.Tier
	Recipient  notification.Recipient
	Data       template.PaymentReminderData
}

// SendPaymentReminder sends at most one reminder per (payment, tier). A
// repeated call returns ErrDuplicate.
func (e *Engine) SendPaymentReminder(ctx context.Context, r PaymentReminder) (*notification.Notification, error) {
	return e.Send(ctx, Request{
		Type:      notification.TypePaymentReminder,
		Recipient: r.Recipient,
		Payload:   r.Data,
		Metadata: map[string]interface{}{
			notification.MetaPaymentID:    r.PaymentID,
			notification.MetaReminderType: string(r.Tier),
			notification.MetaContractID:   r.ContractID,
		},
		DedupKey: notification.DedupKey(notification.TypePaymentReminder, r.PaymentID, string(r.Tier)),
	})
}

// ContractExpiry is a contract-expiry notice candidate.
type ContractExpiry struct {
	ContractID string
	NoticeDays int
	Recipient  notification.Recipient
	Data       template.ContractExpiringData
}

// SendContractExpiryNotice sends at most one notice per (contract, notice
// window).
func (e *Engine) SendContractExpiryNotice(ctx context.Context, c ContractExpiry) (*notification.Notification, error) {
	tier := reminder.NoticeTier(c.NoticeDays)
	return e.Send(ctx, Request{
		Type:      notification.TypeContractExpiring,
		Recipient: c.Recipient,
		Payload:   c.Data,
		Metadata: map[string]interface{}{
			notification.MetaContractID:   c.ContractID,
			notification.MetaReminderType: tier,
		},
		DedupKey: notification.DedupKey(notification.TypeContractExpiring, c.ContractID, tier),
	})
}
