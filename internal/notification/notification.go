// Package notification holds the notification record, its status state
// machine and recipient preferences.
package notification

import (
	"fmt"
	"time"
)

type Type string

const (
	TypePaymentReminder Type = "payment_reminder"
	// TypeMonthlyUnpaidSummary is reserved. Its grouping rules are not defined
	// and nothing in this module produces it.
	TypeMonthlyUnpaidSummary Type = "monthly_unpaid_summary"
	TypeContractExpiring     Type = "contract_expiring"
	TypeMaintenanceUpdate    Type = "maintenance_update"
	TypeAnnouncement         Type = "announcement"
	TypeTest                 Type = "test"
)

type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelInApp    Channel = "in_app"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelEmail, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusSent, StatusFailed},
	StatusFailed:    {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusRead},
	StatusDelivered: {StatusRead},
}

// CanTransition reports whether from -> to is allowed. A failed record is
// re-attempted in place, so failed -> failed and failed -> sent are legal;
// nothing ever returns to pending.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf lists the statuses from which to is reachable.
func SourcesOf(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusFailed, StatusSent, StatusDelivered} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Metadata keys carried by reminder notifications.
const (
	MetaPaymentID    = "paymentId"
	MetaReminderType = "reminderType"
	MetaContractID   = "contractId"
)

// DedupKey builds the unique key guaranteeing at most one notification per
// (type, subject, tier), e.g. "payment_reminder:p-1:5d".
func DedupKey(t Type, subjectID, tier string) string {
	return fmt.Sprintf("%s:%s:%s", t, subjectID, tier)
}

// Recipient identifies who a notification is addressed to.
type Recipient struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Language string `json:"language,omitempty"`
}

type Notification struct {
	ID             string                 `json:"id"`
	Type           Type                   `json:"type"`
	Channel        Channel                `json:"channel"`
	Status         Status                 `json:"status"`
	RecipientID    string                 `json:"recipientId"`
	RecipientName  string                 `json:"recipientName,omitempty"`
	RecipientPhone string                 `json:"recipientPhone,omitempty"`
	RecipientEmail string                 `json:"recipientEmail,omitempty"`
	Language       string                 `json:"language"`
	Subject        string                 `json:"subject,omitempty"`
	Body           string                 `json:"body"`
	TemplateID     string                 `json:"templateId"`
	TemplateData   map[string]interface{} `json:"templateData,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	DedupKey       string                 `json:"dedupKey,omitempty"`
	ScheduledFor   *time.Time             `json:"scheduledFor,omitempty"`
	SentAt         *time.Time             `json:"sentAt,omitempty"`
	DeliveredAt    *time.Time             `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time             `json:"readAt,omitempty"`
	FailedAt       *time.Time             `json:"failedAt,omitempty"`
	NextRetryAt    *time.Time             `json:"nextRetryAt,omitempty"`
	FailureReason  string                 `json:"failureReason,omitempty"`
	RetryCount     int                    `json:"retryCount"`
	MessageID      string                 `json:"messageId,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// Due reports whether a pending notification may be attempted at now.
func (n *Notification) Due(now time.Time) bool {
	return n.ScheduledFor == nil || !n.ScheduledFor.After(now)
}

// Recipient returns the addressing fields of n.
func (n *Notification) Recipient() Recipient {
	return Recipient{
		ID:       n.RecipientID,
		Name:     n.RecipientName,
		Phone:    n.RecipientPhone,
		Email:    n.RecipientEmail,
		Language: n.Language,
	}
}

// Stats counts notifications per status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Read      int `json:"read"`
	Failed    int `json:"failed"`
}

// NewStats folds per-status counts into Stats.
func NewStats(counts map[Status]int) Stats {
	s := Stats{
		Pending:   counts[StatusPending],
		Sent:      counts[StatusSent],
		Delivered: counts[StatusDelivered],
		Read:      counts[StatusRead],
		Failed:    counts[StatusFailed],
	}
	s.Total = s.Pending + s.Sent + s.Delivered + s.Read + s.Failed
	return s
}

// Filter selects history rows. Zero fields match everything.
type Filter struct {
	RecipientID string
	Status      Status
	Type        Type
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the page into range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// HistoryPage is one page of notification history.
type HistoryPage struct {
	Items      []*Notification `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}
