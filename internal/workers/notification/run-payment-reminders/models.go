package runpaymentreminders

import (
	"context"

	"billing-workers/internal/scheduler"
)

type Input struct {
	IncludeExpiry bool `json:"includeExpiry"`
}

type Output struct {
	Reminders scheduler.RunSummary  `json:"reminders"`
	Expiry    *scheduler.RunSummary `json:"expiry,omitempty"`
}

// Runner runs the daily reminder passes on demand.
type Runner interface {
	RunPaymentReminders(ctx context.Context) (scheduler.RunSummary, error)
	CheckExpiringContracts(ctx context.Context) (scheduler.RunSummary, error)
}
