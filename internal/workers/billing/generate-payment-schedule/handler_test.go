package generatepaymentschedule

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"billing-workers/internal/billing/schedule"
	"billing-workers/internal/common/config"
	"billing-workers/internal/common/errors"
	"billing-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks and helpers
// ==========================

type MockWriter struct {
	InsertScheduleFunc func(ctx context.Context, payments []schedule.Payment) ([]string, error)
	calls              int
}

func (m *MockWriter) InsertSchedule(ctx context.Context, payments []schedule.Payment) ([]string, error) {
	m.calls++
	return m.InsertScheduleFunc(ctx, payments)
}

func sequentialIDs(ctx context.Context, payments []schedule.Payment) ([]string, error) {
	ids := make([]string, len(payments))
	for i := range payments {
		ids[i] = fmt.Sprintf("pay-%02d", i+1)
	}
	return ids, nil
}

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "lease-onboarding",
		ElementId:          "Activity_GenerateSchedule",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

func createTestHandler(t *testing.T, writer ScheduleWriter, persist bool) *Handler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Persist = persist
	h, err := NewHandler(HandlerOptions{CustomConfig: cfg, Writer: writer, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)
	return h
}

func yearlyLease() *Input {
	return &Input{
		ContractID:       "contract-1",
		StartDate:        "2025-01-01",
		EndDate:          "2025-12-31",
		RentAmount:       decimal.RequireFromString("50000"),
		PaymentFrequency: "monthly",
	}
}

// ==========================
// Handler creation
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		h, err := NewHandler(HandlerOptions{})
		require.NoError(t, err)
		assert.True(t, h.config.Persist)
		assert.Equal(t, 30*time.Second, h.config.Timeout)
	})

	t.Run("worker config from app config", func(t *testing.T) {
		h, err := NewHandler(HandlerOptions{AppConfig: &config.Config{Workers: map[string]config.WorkerConfig{
			TaskType: {Enabled: true, MaxJobsActive: 2, Timeout: 5000},
		}}})
		require.NoError(t, err)
		assert.Equal(t, 2, h.config.MaxJobsActive)
		assert.Equal(t, 5*time.Second, h.config.Timeout)
	})

	t.Run("invalid timeout", func(t *testing.T) {
		_, err := NewHandler(HandlerOptions{CustomConfig: &Config{MaxJobsActive: 1, Timeout: -time.Second}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout must be positive")
	})
}

// ==========================
// Input parsing
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h := createTestHandler(t, nil, false)

	tests := []struct {
		name      string
		variables map[string]interface{}
		wantErr   bool
		validate  func(*testing.T, *Input)
	}{
		{
			name: "numeric rent",
			variables: map[string]interface{}{
				"contractId":       "contract-1",
				"startDate":        "2025-01-01",
				"endDate":          "2025-12-31",
				"rentAmount":       50000.5,
				"paymentFrequency": "quarterly",
			},
			validate: func(t *testing.T, in *Input) {
				assert.Equal(t, "contract-1", in.ContractID)
				assert.True(t, decimal.RequireFromString("50000.5").Equal(in.RentAmount))
				assert.Equal(t, "quarterly", in.PaymentFrequency)
			},
		},
		{
			name: "string rent and timestamps",
			variables: map[string]interface{}{
				"contractId":       "contract-2",
				"startDate":        "2025-01-01T00:00:00Z",
				"endDate":          "2026-01-01T00:00:00Z",
				"rentAmount":       "120000.00",
				"paymentFrequency": "yearly",
				"unitId":           "unit-9",
			},
			validate: func(t *testing.T, in *Input) {
				assert.True(t, decimal.RequireFromString("120000").Equal(in.RentAmount))
				assert.Equal(t, "unit-9", in.UnitID)
			},
		},
		{
			name: "missing contract id",
			variables: map[string]interface{}{
				"startDate":        "2025-01-01",
				"endDate":          "2025-12-31",
				"rentAmount":       1000,
				"paymentFrequency": "monthly",
			},
			wantErr: true,
		},
		{
			name: "malformed date",
			variables: map[string]interface{}{
				"contractId":       "contract-1",
				"startDate":        "01/01/2025",
				"endDate":          "2025-12-31",
				"rentAmount":       1000,
				"paymentFrequency": "monthly",
			},
			wantErr: true,
		},
		{
			name: "rent as boolean",
			variables: map[string]interface{}{
				"contractId":       "contract-1",
				"startDate":        "2025-01-01",
				"endDate":          "2025-12-31",
				"rentAmount":       true,
				"paymentFrequency": "monthly",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.parseInput(createMockJob(42, tt.variables))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
				return
			}
			require.NoError(t, err)
			tt.validate(t, input)
		})
	}
}

// ==========================
// Execution
// ==========================

func TestHandler_Execute_PersistsSchedule(t *testing.T) {
	writer := &MockWriter{InsertScheduleFunc: sequentialIDs}
	h := createTestHandler(t, writer, true)

	output, err := h.Execute(context.Background(), yearlyLease())
	require.NoError(t, err)

	assert.Equal(t, 1, writer.calls)
	assert.True(t, output.Persisted)
	assert.Equal(t, "monthly", output.Frequency)
	assert.Equal(t, 12, output.PaymentCount)
	require.Len(t, output.Payments, 12)
	assert.Equal(t, PaymentOutput{ID: "pay-01", DueDate: "2025-01-01", Amount: "4166.67", Status: "pending"}, output.Payments[0])
	assert.Equal(t, "2025-12-01", output.Payments[11].DueDate)
	assert.Equal(t, "pay-12", output.Payments[11].ID)
	assert.Equal(t, "50000.04", output.TotalAmount)
}

func TestHandler_Execute_WithoutPersistence(t *testing.T) {
	writer := &MockWriter{InsertScheduleFunc: sequentialIDs}
	h := createTestHandler(t, writer, false)

	output, err := h.Execute(context.Background(), yearlyLease())
	require.NoError(t, err)
	assert.Equal(t, 0, writer.calls)
	assert.False(t, output.Persisted)
	assert.Empty(t, output.Payments[0].ID)
}

func TestHandler_Execute_UnknownFrequencyFallsBackToMonthly(t *testing.T) {
	h := createTestHandler(t, nil, false)
	input := yearlyLease()
	input.PaymentFrequency = "fortnightly"

	output, err := h.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "monthly", output.Frequency)
	assert.Equal(t, 12, output.PaymentCount)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Input)
		writer    ScheduleWriter
		code      errors.ErrorCode
		retryable bool
	}{
		{
			name:   "end before start",
			mutate: func(in *Input) { in.EndDate = "2024-12-31" },
			code:   errors.ErrCodeInvalidContract,
		},
		{
			name:   "unparseable date",
			mutate: func(in *Input) { in.StartDate = "2025-13-45" },
			code:   errors.ErrCodeInvalidContract,
		},
		{
			name: "runaway schedule",
			mutate: func(in *Input) {
				in.StartDate = "2000-01-01"
				in.EndDate = "2030-01-01"
				in.PaymentFrequency = "weekly"
			},
			code: errors.ErrCodeScheduleOverflow,
		},
		{
			name:   "store failure",
			mutate: func(in *Input) {},
			writer: &MockWriter{InsertScheduleFunc: func(ctx context.Context, payments []schedule.Payment) ([]string, error) {
				return nil, fmt.Errorf("insert payment 3: connection reset")
			}},
			code:      errors.ErrCodeDatabaseInsertFailed,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := tt.writer
			if writer == nil {
				writer = &MockWriter{InsertScheduleFunc: sequentialIDs}
			}
			h := createTestHandler(t, writer, true)
			input := yearlyLease()
			tt.mutate(input)

			output, err := h.Execute(context.Background(), input)
			require.Error(t, err)
			assert.Nil(t, output)

			stdErr, ok := errors.AsStandardError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, stdErr.Code)
			assert.Equal(t, tt.retryable, stdErr.Retryable)
		})
	}
}

func TestHandler_Execute_OverflowPersistsNothing(t *testing.T) {
	writer := &MockWriter{InsertScheduleFunc: sequentialIDs}
	h := createTestHandler(t, writer, true)
	input := yearlyLease()
	input.StartDate, input.EndDate, input.PaymentFrequency = "2000-01-01", "2030-01-01", "weekly"

	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, 0, writer.calls)
}
