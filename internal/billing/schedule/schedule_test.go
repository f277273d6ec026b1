package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerate_MonthlyYear(t *testing.T) {
	payments, err := Generate(Contract{
		ID:               "c-1",
		StartDate:        date(2025, 1, 1),
		EndDate:          date(2025, 12, 31),
		RentAmount:       decimal.NewFromInt(12000),
		PaymentFrequency: Monthly,
	})
	require.NoError(t, err)
	require.Len(t, payments, 12)

	for i, p := range payments {
		assert.Equal(t, date(2025, time.Month(i+1), 1), p.DueDate)
		assert.True(t, p.Amount.Equal(decimal.NewFromInt(1000)), "amount %s", p.Amount)
		assert.Equal(t, StatusPending, p.Status)
		assert.Equal(t, "c-1", p.ContractID)
	}
}

func TestGenerate_Weekly(t *testing.T) {
	payments, err := Generate(Contract{
		StartDate:        date(2025, 1, 1),
		EndDate:          date(2025, 1, 22),
		RentAmount:       decimal.NewFromInt(52000),
		PaymentFrequency: Weekly,
	})
	require.NoError(t, err)
	require.Len(t, payments, 4)

	want := []time.Time{date(2025, 1, 1), date(2025, 1, 8), date(2025, 1, 15), date(2025, 1, 22)}
	for i, p := range payments {
		assert.Equal(t, want[i], p.DueDate)
		assert.Equal(t, "1000", p.Amount.String())
	}
}

func TestGenerate_SameStartAndEnd(t *testing.T) {
	payments, err := Generate(Contract{
		StartDate:        date(2025, 3, 1),
		EndDate:          date(2025, 3, 1),
		RentAmount:       decimal.NewFromInt(4000),
		PaymentFrequency: Quarterly,
	})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "1000", payments[0].Amount.String())
}

func TestGenerate_UnknownFrequencyIsMonthly(t *testing.T) {
	payments, err := Generate(Contract{
		StartDate:        date(2025, 1, 1),
		EndDate:          date(2025, 6, 30),
		RentAmount:       decimal.NewFromInt(12000),
		PaymentFrequency: Frequency("fortnightly"),
	})
	require.NoError(t, err)
	assert.Len(t, payments, 6)
}

func TestGenerate_Rounding(t *testing.T) {
	payments, err := Generate(Contract{
		StartDate:        date(2025, 1, 1),
		EndDate:          date(2025, 12, 31),
		RentAmount:       decimal.NewFromInt(10000),
		PaymentFrequency: Monthly,
	})
	require.NoError(t, err)
	require.Len(t, payments, 12)
	assert.Equal(t, "833.33", payments[0].Amount.StringFixed(2))

	// drift is bounded by one cent per payment
	drift := Total(payments).Sub(decimal.NewFromInt(10000)).Abs()
	assert.True(t, drift.LessThanOrEqual(decimal.NewFromFloat(0.12)), "drift %s", drift)
}

func TestGenerate_SumWithinTolerance(t *testing.T) {
	freqs := []Frequency{Weekly, Monthly, Quarterly, SemiAnnually, Yearly}
	rent := decimal.RequireFromString("37999.99")

	for _, f := range freqs {
		t.Run(string(f), func(t *testing.T) {
			start := date(2025, 1, 1)
			// one full year's worth of periods
			end := start
			for i := 0; i < PaymentsPerYear(f)-1; i++ {
				end = Advance(end, f)
			}

			payments, err := Generate(Contract{StartDate: start, EndDate: end, RentAmount: rent, PaymentFrequency: f})
			require.NoError(t, err)
			require.Len(t, payments, PaymentsPerYear(f))

			tolerance := decimal.New(int64(PaymentsPerYear(f)), -2)
			drift := Total(payments).Sub(rent).Abs()
			assert.True(t, drift.LessThanOrEqual(tolerance), "drift %s > %s", drift, tolerance)

			for i := 1; i < len(payments); i++ {
				assert.True(t, payments[i].DueDate.After(payments[i-1].DueDate))
				assert.Equal(t, Advance(payments[i-1].DueDate, f), payments[i].DueDate)
			}
		})
	}
}

func TestGenerate_InvalidContract(t *testing.T) {
	_, err := Generate(Contract{
		StartDate:  date(2025, 12, 31),
		EndDate:    date(2025, 1, 1),
		RentAmount: decimal.NewFromInt(1000),
	})
	assert.True(t, errors.Is(err, ErrInvalidContract))

	_, err = Generate(Contract{EndDate: date(2025, 1, 1)})
	assert.True(t, errors.Is(err, ErrInvalidContract))
}

func TestGenerate_Overflow(t *testing.T) {
	_, err := Generate(Contract{
		ID:               "runaway",
		StartDate:        date(2000, 1, 1),
		EndDate:          date(2040, 1, 1),
		RentAmount:       decimal.NewFromInt(52000),
		PaymentFrequency: Weekly,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScheduleOverflow))
	assert.Contains(t, err.Error(), "runaway")
}

func TestPaymentsPerYear(t *testing.T) {
	tests := map[Frequency]int{
		Weekly:       52,
		Monthly:      12,
		Quarterly:    4,
		SemiAnnually: 2,
		Yearly:       1,
		"":           12,
	}
	for f, want := range tests {
		assert.Equal(t, want, PaymentsPerYear(f), string(f))
	}
}
