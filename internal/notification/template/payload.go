package template

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payload is the typed template data of one notification type.
type Payload interface {
	Variables() map[string]interface{}
}

// Variables is a free-form payload for types without a dedicated struct.
type Variables map[string]interface{}

func (v Variables) Variables() map[string]interface{} {
	out := make(map[string]interface{}, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

type PaymentReminderData struct {
	TenantName   string          `json:"tenantName"`
	UnitNumber   string          `json:"unitNumber"`
	Amount       decimal.Decimal `json:"amount"`
	DueDate      time.Time       `json:"dueDate"`
	DaysUntilDue int             `json:"daysUntilDue"`
}

func (d PaymentReminderData) Variables() map[string]interface{} {
	return map[string]interface{}{
		"tenantName":   d.TenantName,
		"unitNumber":   d.UnitNumber,
		"amount":       d.Amount.StringFixed(2),
		"dueDate":      d.DueDate.Format(time.DateOnly),
		"daysUntilDue": d.DaysUntilDue,
	}
}

type ContractExpiringData struct {
	TenantName      string    `json:"tenantName"`
	UnitNumber      string    `json:"unitNumber"`
	EndDate         time.Time `json:"endDate"`
	DaysUntilExpiry int       `json:"daysUntilExpiry"`
}

func (d ContractExpiringData) Variables() map[string]interface{} {
	return map[string]interface{}{
		"tenantName":      d.TenantName,
		"unitNumber":      d.UnitNumber,
		"endDate":         d.EndDate.Format(time.DateOnly),
		"daysUntilExpiry": d.DaysUntilExpiry,
	}
}

type AnnouncementData struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (d AnnouncementData) Variables() map[string]interface{} {
	return map[string]interface{}{
		"title":   d.Title,
		"message": d.Message,
	}
}
