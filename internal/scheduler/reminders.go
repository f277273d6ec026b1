package scheduler

import (
	"context"
	"errors"
	"fmt"

	"billing-workers/internal/billing/payments"
	"billing-workers/internal/billing/reminder"
	"billing-workers/internal/common/metrics"
	"billing-workers/internal/notification"
	"billing-workers/internal/notification/dispatch"
	"billing-workers/internal/notification/template"
)

// RunSummary counts the outcomes of one reminder or expiry pass.
type RunSummary struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
	Suppressed int `json:"suppressed"`
	Errors     int `json:"errors"`
}

func (r *RunSummary) record(n *notification.Notification, err error) {
	switch {
	case errors.Is(err, dispatch.ErrDuplicate):
		r.Duplicates++
	case err != nil:
		r.Errors++
	case n == nil:
		r.Suppressed++
	case n.Status == notification.StatusFailed:
		r.Failed++
	default:
		r.Sent++
	}
}

// RunPaymentReminders evaluates every pending payment due within the
// reminder window and sends the tier the policy assigns. One payment's
// failure is logged and never stops the pass.
func (s *Scheduler) RunPaymentReminders(ctx context.Context) (RunSummary, error) {
	var summary RunSummary
	now := s.clock.Now()
	today := startOfDay(now, s.cfg.Location)
	until := today.AddDate(0, 0, s.cfg.WindowDays+1).Add(-1)

	upcoming, err := s.payments.Upcoming(ctx, today, until)
	if err != nil {
		return summary, fmt.Errorf("load upcoming payments: %w", err)
	}

	for _, u := range upcoming {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		days := reminder.DaysUntil(now, u.DueDate, s.cfg.Location)
		tier := s.cfg.Policy.Tier(days, u.Frequency)

		label := string(tier)
		if tier == reminder.None {
			label = "none"
		}
		metrics.ReminderCandidates.WithLabelValues(label).Inc()
		if tier == reminder.None {
			continue
		}

		summary.Candidates++
		n, err := s.sendReminder(ctx, u, tier, days)
		summary.record(n, err)
		if err != nil && !errors.Is(err, dispatch.ErrDuplicate) {
			s.logger.Error("payment reminder failed", map[string]interface{}{
				"paymentId": u.ID,
				"tier":      string(tier),
				"error":     err.Error(),
			})
		}
	}

	s.logger.Info("payment reminder pass finished", map[string]interface{}{
		"payments":   len(upcoming),
		"candidates": summary.Candidates,
		"sent":       summary.Sent,
		"failed":     summary.Failed,
		"duplicates": summary.Duplicates,
		"suppressed": summary.Suppressed,
		"errors":     summary.Errors,
	})
	return summary, nil
}

func (s *Scheduler) sendReminder(ctx context.Context, u payments.Upcoming, tier reminder.Tier, days int) (n *notification.Notification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return s.engine.SendPaymentReminder(ctx, dispatch.PaymentReminder{
		PaymentID:  u.ID,
		ContractID: u.ContractID,
		Tier:       tier,
		Recipient:  u.Contact.Recipient(),
		Data: template.PaymentReminderData{
			TenantName:   u.Contact.FullName,
			UnitNumber:   u.UnitNumber,
			Amount:       u.Amount,
			DueDate:      u.DueDate,
			DaysUntilDue: days,
		},
	})
}

// CheckExpiringContracts sends the expiry notice for contracts ending
// exactly ExpiryNoticeDays from today. In catch-up mode every contract
// ending within the notice window is considered; dedup keeps it to one
// notice per contract.
func (s *Scheduler) CheckExpiringContracts(ctx context.Context) (RunSummary, error) {
	var summary RunSummary
	now := s.clock.Now()
	today := startOfDay(now, s.cfg.Location)
	target := today.AddDate(0, 0, s.cfg.ExpiryNoticeDays)

	from := target
	if s.cfg.Policy.Mode == reminder.ModeCatchUp {
		from = today
	}

	contracts, err := s.payments.Expiring(ctx, from, target.AddDate(0, 0, 1))
	if err != nil {
		return summary, fmt.Errorf("load expiring contracts: %w", err)
	}

	for _, c := range contracts {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Candidates++
		n, err := s.engine.SendContractExpiryNotice(ctx, dispatch.ContractExpiry{
			ContractID: c.ContractID,
			NoticeDays: s.cfg.ExpiryNoticeDays,
			Recipient:  c.Contact.Recipient(),
			Data: template.ContractExpiringData{
				TenantName:      c.Contact.FullName,
				UnitNumber:      c.UnitNumber,
				EndDate:         c.EndDate,
				DaysUntilExpiry: reminder.DaysUntil(now, c.EndDate, s.cfg.Location),
			},
		})
		summary.record(n, err)
		if err != nil && !errors.Is(err, dispatch.ErrDuplicate) {
			s.logger.Error("contract expiry notice failed", map[string]interface{}{
				"contractId": c.ContractID,
				"error":      err.Error(),
			})
		}
	}
	return summary, nil
}
