package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"billing-workers/internal/billing/payments"
	"billing-workers/internal/billing/reminder"
	"billing-workers/internal/billing/schedule"
	"billing-workers/internal/common/clock"
	"billing-workers/internal/common/config"
	"billing-workers/internal/common/logger"
	"billing-workers/internal/notification"
	"billing-workers/internal/notification/channel"
	"billing-workers/internal/notification/dispatch"
	"billing-workers/internal/notification/lock"
	"billing-workers/internal/notification/preferences"
	"billing-workers/internal/notification/store"
	"billing-workers/internal/notification/template"
	"billing-workers/pkg/registry"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var riyadh = time.FixedZone("AST", 3*60*60)

// 08:00 local
var now = time.Date(2025, 3, 1, 8, 0, 0, 0, riyadh)

type MockEngine struct {
	mu        sync.Mutex
	reminders []dispatch.PaymentReminder
	notices   []dispatch.ContractExpiry

	pending int32
	retries int32

	ReminderFunc func(r dispatch.PaymentReminder) (*notification.Notification, error)
}

func (m *MockEngine) ProcessPending(ctx context.Context) (int, error) {
	atomic.AddInt32(&m.pending, 1)
	return 0, nil
}

func (m *MockEngine) RetryFailed(ctx context.Context) (int, error) {
	atomic.AddInt32(&m.retries, 1)
	return 0, nil
}

func (m *MockEngine) SendPaymentReminder(ctx context.Context, r dispatch.PaymentReminder) (*notification.Notification, error) {
	m.mu.Lock()
	m.reminders = append(m.reminders, r)
	m.mu.Unlock()
	if m.ReminderFunc != nil {
		return m.ReminderFunc(r)
	}
	return &notification.Notification{ID: "n-" + r.PaymentID, Status: notification.StatusSent}, nil
}

func (m *MockEngine) SendContractExpiryNotice(ctx context.Context, c dispatch.ContractExpiry) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, c)
	return &notification.Notification{ID: "n-" + c.ContractID, Status: notification.StatusSent}, nil
}

func (m *MockEngine) Reminders() []dispatch.PaymentReminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dispatch.PaymentReminder(nil), m.reminders...)
}

type MockSource struct {
	UpcomingFunc func(ctx context.Context, from, to time.Time) ([]payments.Upcoming, error)
	ExpiringFunc func(ctx context.Context, from, to time.Time) ([]payments.ExpiringContract, error)
}

func (m *MockSource) Upcoming(ctx context.Context, from, to time.Time) ([]payments.Upcoming, error) {
	if m.UpcomingFunc == nil {
		return nil, nil
	}
	return m.UpcomingFunc(ctx, from, to)
}

func (m *MockSource) Expiring(ctx context.Context, from, to time.Time) ([]payments.ExpiringContract, error) {
	if m.ExpiringFunc == nil {
		return nil, nil
	}
	return m.ExpiringFunc(ctx, from, to)
}

func upcoming(id string, days int, freq schedule.Frequency) payments.Upcoming {
	return payments.Upcoming{
		Payment: payments.Payment{
			ID:         id,
			ContractID: "contract-1",
			DueDate:    time.Date(2025, 3, 1+days, 0, 0, 0, 0, riyadh),
			Amount:     decimal.RequireFromString("12500.00"),
			Status:     payments.StatusPending,
		},
		Frequency:  freq,
		Contact:    payments.Contact{ID: "tenant-1", FullName: "Sara", Phone: "0501234567", PreferredLanguage: "en"},
		UnitNumber: "A-101",
	}
}

func testConfig(mode reminder.Mode) Config {
	return Config{
		PendingInterval:  time.Minute,
		RetryInterval:    15 * time.Minute,
		DailyRunAt:       9 * time.Hour,
		ExpiryCheckAt:    10 * time.Hour,
		Location:         riyadh,
		WindowDays:       31,
		Policy:           reminder.Policy{Mode: mode},
		ExpiryNoticeDays: 30,
		LockTTL:          time.Minute,
	}
}

func newScheduler(t *testing.T, mode reminder.Mode, engine Engine, source payments.Source, opts ...Option) (*Scheduler, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(now)
	opts = append([]Option{WithClock(fc)}, opts...)
	return New(testConfig(mode), engine, source, logger.NewNoOpLogger(), opts...), fc
}

func tiersByPayment(rs []dispatch.PaymentReminder) map[string]reminder.Tier {
	out := make(map[string]reminder.Tier, len(rs))
	for _, r := range rs {
		out[r.PaymentID] = r.Tier
	}
	return out
}

func TestRunPaymentReminders_ExactMode(t *testing.T) {
	var gotFrom, gotTo time.Time
	source := &MockSource{UpcomingFunc: func(ctx context.Context, from, to time.Time) ([]payments.Upcoming, error) {
		gotFrom, gotTo = from, to
		return []payments.Upcoming{
			upcoming("p-quarterly-30", 30, schedule.Quarterly),
			upcoming("p-monthly-30", 30, schedule.Monthly),
			upcoming("p-monthly-5", 5, schedule.Monthly),
			upcoming("p-quarterly-20", 20, schedule.Quarterly),
			upcoming("p-yearly-15", 15, schedule.Yearly),
			upcoming("p-quarterly-12", 12, schedule.Quarterly),
		}, nil
	}}
	engine := &MockEngine{}
	s, _ := newScheduler(t, reminder.ModeExact, engine, source)

	summary, err := s.RunPaymentReminders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, riyadh), gotFrom)
	assert.True(t, gotTo.After(time.Date(2025, 4, 1, 23, 0, 0, 0, riyadh)))
	assert.True(t, gotTo.Before(time.Date(2025, 4, 2, 0, 0, 0, 0, riyadh)))

	assert.Equal(t, map[string]reminder.Tier{
		"p-quarterly-30": reminder.Tier30d,
		"p-monthly-5":    reminder.Tier5d,
		"p-yearly-15":    reminder.Tier15d,
	}, tiersByPayment(engine.Reminders()))
	assert.Equal(t, RunSummary{Candidates: 3, Sent: 3}, summary)

	r := engine.Reminders()[0]
	assert.Equal(t, "contract-1", r.ContractID)
	assert.Equal(t, "tenant-1", r.Recipient.ID)
	assert.Equal(t, "Sara", r.Data.TenantName)
	assert.Equal(t, 30, r.Data.DaysUntilDue)
}

func TestRunPaymentReminders_CatchUpMode(t *testing.T) {
	source := &MockSource{UpcomingFunc: func(ctx context.Context, from, to time.Time) ([]payments.Upcoming, error) {
		return []payments.Upcoming{
			upcoming("p-quarterly-12", 12, schedule.Quarterly),
			upcoming("p-quarterly-29", 29, schedule.Quarterly),
			upcoming("p-monthly-12", 12, schedule.Monthly),
			upcoming("p-monthly-3", 3, schedule.Monthly),
		}, nil
	}}
	engine := &MockEngine{}
	s, _ := newScheduler(t, reminder.ModeCatchUp, engine, source)

	_, err := s.RunPaymentReminders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]reminder.Tier{
		"p-quarterly-12": reminder.Tier15d,
		"p-quarterly-29": reminder.Tier30d,
		"p-monthly-3":    reminder.Tier5d,
	}, tiersByPayment(engine.Reminders()))
}

func TestRunPaymentReminders_ContinuesPastFailures(t *testing.T) {
	source := &MockSource{UpcomingFunc: func(ctx context.Context, from, to time.Time) ([]payments.Upcoming, error) {
		return []payments.Upcoming{
			upcoming("p-error", 5, schedule.Monthly),
			upcoming("p-panic", 5, schedule.Monthly),
			upcoming("p-duplicate", 5, schedule.Monthly),
			upcoming("p-suppressed", 5, schedule.Monthly),
			upcoming("p-failed", 5, schedule.Monthly),
			upcoming("p-ok", 5, schedule.Monthly),
		}, nil
	}}
	engine := &MockEngine{ReminderFunc: func(r dispatch.PaymentReminder) (*notification.Notification, error) {
		switch r.PaymentID {
		case "p-error":
			return nil, errors.New("store unavailable")
		case "p-panic":
			panic("renderer exploded")
		case "p-duplicate":
			return nil, dispatch.ErrDuplicate
		case "p-suppressed":
			return nil, nil
		case "p-failed":
			return &notification.Notification{ID: "n-failed", Status: notification.StatusFailed}, nil
		}
		return &notification.Notification{ID: "n-ok", Status: notification.StatusSent}, nil
	}}
	s, _ := newScheduler(t, reminder.ModeExact, engine, source)

	summary, err := s.RunPaymentReminders(context.Background())
	require.NoError(t, err)

	assert.Len(t, engine.Reminders(), 6)
	assert.Equal(t, RunSummary{Candidates: 6, Sent: 1, Failed: 1, Duplicates: 1, Suppressed: 1, Errors: 2}, summary)
}

func TestRunPaymentReminders_SourceError(t *testing.T) {
	source := &MockSource{UpcomingFunc: func(ctx context.Context, from, to time.Time) ([]payments.Upcoming, error) {
		return nil, errors.New("connection refused")
	}}
	s, _ := newScheduler(t, reminder.ModeExact, &MockEngine{}, source)

	_, err := s.RunPaymentReminders(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

type whatsappStub struct{ calls int32 }

func (w *whatsappStub) Channel() notification.Channel { return notification.ChannelWhatsApp }

func (w *whatsappStub) Deliver(ctx context.Context, msg channel.Message) channel.DeliveryResult {
	atomic.AddInt32(&w.calls, 1)
	return channel.Delivered("wamid-" + msg.NotificationID)
}

func TestRunPaymentReminders_RepeatedRunsSendOnce(t *testing.T) {
	st := store.NewMemory()
	fc := clock.NewFake(now)
	wa := &whatsappStub{}
	engine := dispatch.NewEngine(dispatch.Config{
		MaxRetries:      3,
		SendTimeout:     time.Second,
		BackoffBase:     15 * time.Minute,
		BackoffMax:      2 * time.Hour,
		BatchSize:       100,
		DefaultLanguage: "en",
	}, st, preferences.Static{}, template.NewRenderer(registry.Default(), "en"), channel.NewRegistry(wa), logger.NewNoOpLogger(), dispatch.WithClock(fc))

	source := &MockSource{UpcomingFunc: func(ctx context.Context, from, to time.Time) ([]payments.Upcoming, error) {
		return []payments.Upcoming{
			upcoming("p-1", 5, schedule.Monthly),
			upcoming("p-2", 30, schedule.Yearly),
		}, nil
	}}
	s := New(testConfig(reminder.ModeExact), engine, source, logger.NewNoOpLogger(), WithClock(fc))

	first, err := s.RunPaymentReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Sent)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := s.RunPaymentReminders(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 2, summary.Duplicates)
		}()
	}
	wg.Wait()

	counts, err := st.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[notification.StatusSent])
	assert.Equal(t, int32(2), atomic.LoadInt32(&wa.calls))
}

func TestCheckExpiringContracts(t *testing.T) {
	t.Run("exact mode targets the notice day", func(t *testing.T) {
		var gotFrom, gotTo time.Time
		end := time.Date(2025, 3, 31, 0, 0, 0, 0, riyadh)
		source := &MockSource{ExpiringFunc: func(ctx context.Context, from, to time.Time) ([]payments.ExpiringContract, error) {
			gotFrom, gotTo = from, to
			return []payments.ExpiringContract{{
				ContractID: "contract-9",
				EndDate:    end,
				Contact:    payments.Contact{ID: "tenant-9", FullName: "Omar"},
				UnitNumber: "B-7",
			}}, nil
		}}
		engine := &MockEngine{}
		s, _ := newScheduler(t, reminder.ModeExact, engine, source)

		summary, err := s.CheckExpiringContracts(context.Background())
		require.NoError(t, err)

		assert.Equal(t, end, gotFrom)
		assert.Equal(t, end.AddDate(0, 0, 1), gotTo)
		assert.Equal(t, RunSummary{Candidates: 1, Sent: 1}, summary)
		require.Len(t, engine.notices, 1)
		notice := engine.notices[0]
		assert.Equal(t, "contract-9", notice.ContractID)
		assert.Equal(t, 30, notice.NoticeDays)
		assert.Equal(t, 30, notice.Data.DaysUntilExpiry)
		assert.Equal(t, "B-7", notice.Data.UnitNumber)
	})

	t.Run("catch-up mode covers the whole window", func(t *testing.T) {
		var gotFrom time.Time
		source := &MockSource{ExpiringFunc: func(ctx context.Context, from, to time.Time) ([]payments.ExpiringContract, error) {
			gotFrom = from
			return nil, nil
		}}
		s, _ := newScheduler(t, reminder.ModeCatchUp, &MockEngine{}, source)

		_, err := s.CheckExpiringContracts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, riyadh), gotFrom)
	})
}

func TestScheduler_LoopsFollowTheClock(t *testing.T) {
	var upcomingCalls, expiringCalls int32
	source := &MockSource{
		UpcomingFunc: func(ctx context.Context, from, to time.Time) ([]payments.Upcoming, error) {
			atomic.AddInt32(&upcomingCalls, 1)
			return nil, nil
		},
		ExpiringFunc: func(ctx context.Context, from, to time.Time) ([]payments.ExpiringContract, error) {
			atomic.AddInt32(&expiringCalls, 1)
			return nil, nil
		},
	}
	engine := &MockEngine{}
	s, fc := newScheduler(t, reminder.ModeExact, engine, source)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	require.True(t, fc.BlockUntil(4, time.Second))
	fc.Advance(time.Minute)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&engine.pending) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&engine.retries))

	require.True(t, fc.BlockUntil(4, time.Second))
	fc.Advance(59 * time.Minute) // 09:00 local
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&engine.pending) == 2 &&
			atomic.LoadInt32(&engine.retries) == 1 &&
			atomic.LoadInt32(&upcomingCalls) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&expiringCalls))

	require.True(t, fc.BlockUntil(4, time.Second))
	fc.Advance(time.Hour) // 10:00 local
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&expiringCalls) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&upcomingCalls))
}

func TestScheduler_TriggerReminders(t *testing.T) {
	done := make(chan struct{}, 1)
	source := &MockSource{UpcomingFunc: func(ctx context.Context, from, to time.Time) ([]payments.Upcoming, error) {
		done <- struct{}{}
		return nil, nil
	}}
	s, _ := newScheduler(t, reminder.ModeExact, &MockEngine{}, source)

	s.TriggerReminders()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("manual reminder run did not start")
	}
	s.Stop()
}

func TestRunTask_SkipsOverlappingRun(t *testing.T) {
	s, _ := newScheduler(t, reminder.ModeExact, &MockEngine{}, &MockSource{})

	started := make(chan struct{})
	release := make(chan struct{})
	tk := &task{name: "blocking", run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}

	result := make(chan bool, 1)
	go func() { result <- s.runTask(context.Background(), tk) }()
	<-started

	assert.False(t, s.runTask(context.Background(), tk))
	close(release)
	assert.True(t, <-result)
}

func TestRunTask_RecoversPanic(t *testing.T) {
	s, _ := newScheduler(t, reminder.ModeExact, &MockEngine{}, &MockSource{})
	tk := &task{name: "panicking", run: func(ctx context.Context) error { panic("boom") }}

	assert.NotPanics(t, func() { assert.True(t, s.runTask(context.Background(), tk)) })
	assert.True(t, s.runTask(context.Background(), tk), "lock must be released after a panic")
}

func TestRunTask_DistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locker := lock.NewRedisLocker(client, "billing:scheduler:")

	ctx := context.Background()
	other, err := locker.TryAcquire(ctx, TaskProcessPending, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, other)

	engine := &MockEngine{}
	s, _ := newScheduler(t, reminder.ModeExact, engine, &MockSource{}, WithLocker(locker))

	assert.False(t, s.runTask(ctx, s.tasks[TaskProcessPending]))
	assert.Equal(t, int32(0), atomic.LoadInt32(&engine.pending))

	require.NoError(t, other.Release(ctx))
	assert.True(t, s.runTask(ctx, s.tasks[TaskProcessPending]))
	assert.Equal(t, int32(1), atomic.LoadInt32(&engine.pending))
	assert.False(t, mr.Exists("billing:scheduler:"+TaskProcessPending), "lease released after the run")
}

func TestUntilNext(t *testing.T) {
	s, fc := newScheduler(t, reminder.ModeExact, &MockEngine{}, &MockSource{})

	assert.Equal(t, time.Hour, s.untilNext(9*time.Hour))
	assert.Equal(t, 23*time.Hour, s.untilNext(7*time.Hour))
	assert.Equal(t, 24*time.Hour, s.untilNext(8*time.Hour))

	fc.Advance(15*time.Hour + 30*time.Minute) // 23:30 local
	assert.Equal(t, 9*time.Hour+30*time.Minute, s.untilNext(9*time.Hour))
}

func TestConfigFrom(t *testing.T) {
	cfg, err := ConfigFrom(config.SchedulerConfig{
		PendingInterval:    60000,
		RetryInterval:      900000,
		DailyRunAt:         "09:00",
		ExpiryCheckAt:      "10:30",
		Timezone:           "Asia/Riyadh",
		ReminderWindowDays: 31,
		MatchMode:          "catch_up",
		ExpiryNoticeDays:   30,
		LockTTL:            600000,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.PendingInterval)
	assert.Equal(t, 15*time.Minute, cfg.RetryInterval)
	assert.Equal(t, 9*time.Hour, cfg.DailyRunAt)
	assert.Equal(t, 10*time.Hour+30*time.Minute, cfg.ExpiryCheckAt)
	assert.Equal(t, "Asia/Riyadh", cfg.Location.String())
	assert.Equal(t, reminder.ModeCatchUp, cfg.Policy.Mode)
	assert.Equal(t, 10*time.Minute, cfg.LockTTL)

	_, err = ConfigFrom(config.SchedulerConfig{Timezone: "Mars/Olympus", DailyRunAt: "09:00", ExpiryCheckAt: "10:00"})
	assert.Error(t, err)

	_, err = ConfigFrom(config.SchedulerConfig{Timezone: "UTC", DailyRunAt: "9am", ExpiryCheckAt: "10:00"})
	assert.Error(t, err)
}
