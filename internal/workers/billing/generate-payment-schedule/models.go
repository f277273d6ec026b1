package generatepaymentschedule

import (
	"context"

	"billing-workers/internal/billing/schedule"
	"billing-workers/internal/common/logger"

	"github.com/shopspring/decimal"
)

type Input struct {
	ContractID       string          `json:"contractId"`
	UnitID           string          `json:"unitId,omitempty"`
	ContactID        string          `json:"contactId,omitempty"`
	StartDate        string          `json:"startDate"`
	EndDate          string          `json:"endDate"`
	RentAmount       decimal.Decimal `json:"rentAmount"`
	PaymentFrequency string          `json:"paymentFrequency"`
	SecurityDeposit  decimal.Decimal `json:"securityDeposit,omitempty"`
}

type PaymentOutput struct {
	ID      string `json:"id,omitempty"`
	DueDate string `json:"dueDate"`
	Amount  string `json:"amount"`
	Status  string `json:"status"`
}

type Output struct {
	ContractID   string          `json:"contractId"`
	Frequency    string          `json:"paymentFrequency"`
	PaymentCount int             `json:"paymentCount"`
	TotalAmount  string          `json:"totalAmount"`
	Persisted    bool            `json:"persisted"`
	Payments     []PaymentOutput `json:"payments"`
}

// ScheduleWriter stores a generated schedule atomically.
type ScheduleWriter interface {
	InsertSchedule(ctx context.Context, payments []schedule.Payment) ([]string, error)
}

type ServiceDependencies struct {
	Writer ScheduleWriter
	Logger logger.Logger
}
