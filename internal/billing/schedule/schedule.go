// Package schedule turns a lease contract into its sequence of rent payments.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the cadence of a lease's rent obligations.
type Frequency string

const (
	Weekly       Frequency = "weekly"
	Monthly      Frequency = "monthly"
	Quarterly    Frequency = "quarterly"
	SemiAnnually Frequency = "semi-annually"
	Yearly       Frequency = "yearly"
)

// MaxPayments bounds a single schedule. Reaching it means the contract is malformed.
const MaxPayments = 1000

const StatusPending = "pending"

var (
	ErrInvalidContract  = errors.New("INVALID_CONTRACT")
	ErrScheduleOverflow = errors.New("SCHEDULE_OVERFLOW")
)

// Contract is the subset of a lease the generator needs.
type Contract struct {
	ID               string          `json:"id"`
	UnitID           string          `json:"unitId"`
	ContactID        string          `json:"contactId"`
	StartDate        time.Time       `json:"startDate"`
	EndDate          time.Time       `json:"endDate"`
	RentAmount       decimal.Decimal `json:"rentAmount"`
	PaymentFrequency Frequency       `json:"paymentFrequency"`
	SecurityDeposit  decimal.Decimal `json:"securityDeposit"`
}

// Payment is one generated obligation.
type Payment struct {
	ContractID string          `json:"contractId"`
	DueDate    time.Time       `json:"dueDate"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
}

// Normalize maps unknown frequencies to monthly.
func (f Frequency) Normalize() Frequency {
	switch f {
	case Weekly, Monthly, Quarterly, SemiAnnually, Yearly:
		return f
	default:
		return Monthly
	}
}

// PaymentsPerYear returns how many payments one year of the lease produces.
func PaymentsPerYear(f Frequency) int {
	switch f.Normalize() {
	case Weekly:
		return 52
	case Quarterly:
		return 4
	case SemiAnnually:
		return 2
	case Yearly:
		return 1
	default:
		return 12
	}
}

// Advance moves t forward by one period. Month arithmetic follows
// time.AddDate, so Jan 31 advances to Mar 3 (or Mar 2 in leap years).
func Advance(t time.Time, f Frequency) time.Time {
	switch f.Normalize() {
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Quarterly:
		return t.AddDate(0, 3, 0)
	case SemiAnnually:
		return t.AddDate(0, 6, 0)
	case Yearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// Amount is the per-payment installment rounded to two decimal places.
func Amount(annualRent decimal.Decimal, f Frequency) decimal.Decimal {
	return annualRent.Div(decimal.NewFromInt(int64(PaymentsPerYear(f)))).Round(2)
}

// Generate emits one payment at the start date and one per period after it,
// up to and including the end date.
func Generate(c Contract) ([]Payment, error) {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return nil, fmt.Errorf("%w: start and end dates are required", ErrInvalidContract)
	}
	if c.EndDate.Before(c.StartDate) {
		return nil, fmt.Errorf("%w: end date %s is before start date %s",
			ErrInvalidContract, c.EndDate.Format(time.DateOnly), c.StartDate.Format(time.DateOnly))
	}
	if c.RentAmount.IsNegative() {
		return nil, fmt.Errorf("%w: rent amount must not be negative", ErrInvalidContract)
	}

	amount := Amount(c.RentAmount, c.PaymentFrequency)
	payments := make([]Payment, 0, estimate(c))

	for current := c.StartDate; !current.After(c.EndDate); current = Advance(current, c.PaymentFrequency) {
		if len(payments) == MaxPayments {
			return nil, fmt.Errorf("%w: contract %s exceeds %d payments", ErrScheduleOverflow, c.ID, MaxPayments)
		}
		payments = append(payments, Payment{
			ContractID: c.ID,
			DueDate:    current,
			Amount:     amount,
			Status:     StatusPending,
		})
	}

	return payments, nil
}

func estimate(c Contract) int {
	years := c.EndDate.Sub(c.StartDate).Hours() / (24 * 365)
	n := int(years*float64(PaymentsPerYear(c.PaymentFrequency))) + 1
	if n > MaxPayments {
		return MaxPayments
	}
	return n
}

// Total sums the amounts of a schedule.
func Total(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}
