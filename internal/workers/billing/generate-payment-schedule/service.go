package generatepaymentschedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-workers/internal/billing/schedule"
	apperrors "billing-workers/internal/common/errors"
	"billing-workers/internal/common/logger"
)

type Service struct {
	config *Config
	writer ScheduleWriter
	logger logger.Logger
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config: config,
		writer: deps.Writer,
		logger: deps.Logger,
	}
}

// Execute generates the schedule and, when configured, stores it. A
// malformed contract fails the job; nothing is persisted in that case.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	contract, err := toContract(input)
	if err != nil {
		return nil, err
	}

	payments, err := schedule.Generate(contract)
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrScheduleOverflow):
			return nil, apperrors.NewScheduleOverflowError(contract.ID, schedule.MaxPayments, err)
		default:
			return nil, apperrors.NewInvalidContractError(err.Error())
		}
	}

	output := &Output{
		ContractID:   contract.ID,
		Frequency:    string(contract.PaymentFrequency.Normalize()),
		PaymentCount: len(payments),
		TotalAmount:  schedule.Total(payments).StringFixed(2),
		Payments:     make([]PaymentOutput, len(payments)),
	}
	for i, p := range payments {
		output.Payments[i] = PaymentOutput{
			DueDate: p.DueDate.Format(time.DateOnly),
			Amount:  p.Amount.StringFixed(2),
			Status:  p.Status,
		}
	}

	if s.config.Persist && s.writer != nil && len(payments) > 0 {
		ids, err := s.writer.InsertSchedule(ctx, payments)
		if err != nil {
			return nil, apperrors.NewDatabaseInsertFailedError(err)
		}
		for i, id := range ids {
			if i < len(output.Payments) {
				output.Payments[i].ID = id
			}
		}
		output.Persisted = true
	}

	s.logger.Info("payment schedule generated", map[string]interface{}{
		"contractId":   contract.ID,
		"paymentCount": output.PaymentCount,
		"totalAmount":  output.TotalAmount,
		"persisted":    output.Persisted,
	})
	return output, nil
}

func toContract(input *Input) (schedule.Contract, error) {
	start, err := parseDate(input.StartDate)
	if err != nil {
		return schedule.Contract{}, apperrors.NewInvalidContractError(fmt.Sprintf("startDate: %v", err))
	}
	end, err := parseDate(input.EndDate)
	if err != nil {
		return schedule.Contract{}, apperrors.NewInvalidContractError(fmt.Sprintf("endDate: %v", err))
	}
	return schedule.Contract{
		ID:               input.ContractID,
		UnitID:           input.UnitID,
		ContactID:        input.ContactID,
		StartDate:        start,
		EndDate:          end,
		RentAmount:       input.RentAmount,
		PaymentFrequency: schedule.Frequency(input.PaymentFrequency),
		SecurityDeposit:  input.SecurityDeposit,
	}, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. Timestamps
// keep only their date part.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", value)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
