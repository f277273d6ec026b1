// Package payments reads upcoming payment obligations and expiring
// contracts, with the contact and unit context reminders need.
package payments

import (
	"time"

	"billing-workers/internal/billing/schedule"
	"billing-workers/internal/notification"

	"github.com/shopspring/decimal"
)

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusOverdue = "overdue"
)

type Payment struct {
	ID         string          `json:"id"`
	ContractID string          `json:"contractId"`
	DueDate    time.Time       `json:"dueDate"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	PaidDate   *time.Time      `json:"paidDate,omitempty"`
}

// EffectiveStatus derives the view status: a pending payment whose due date
// has passed is overdue. Nothing is stored.
func EffectiveStatus(p Payment, now time.Time) string {
	if p.Status == StatusPending && p.DueDate.Before(now) {
		return StatusOverdue
	}
	return p.Status
}

type Contact struct {
	ID                string `json:"id"`
	FullName          string `json:"fullName"`
	Phone             string `json:"phone"`
	Email             string `json:"email"`
	PreferredLanguage string `json:"preferredLanguage"`
}

func (c Contact) Recipient() notification.Recipient {
	return notification.Recipient{
		ID:       c.ID,
		Name:     c.FullName,
		Phone:    c.Phone,
		Email:    c.Email,
		Language: c.PreferredLanguage,
	}
}

// Upcoming is a payment joined with its contract, contact and unit.
type Upcoming struct {
	Payment
	Frequency  schedule.Frequency `json:"paymentFrequency"`
	Contact    Contact            `json:"contact"`
	UnitNumber string             `json:"unitNumber"`
}

type ExpiringContract struct {
	ContractID string    `json:"contractId"`
	EndDate    time.Time `json:"endDate"`
	Contact    Contact   `json:"contact"`
	UnitNumber string    `json:"unitNumber"`
}
