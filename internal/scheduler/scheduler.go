// Package scheduler drives the periodic notification tasks: the pending and
// retry sweeps, the daily payment reminder pass and the contract-expiry
// check.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"billing-workers/internal/billing/payments"
	"billing-workers/internal/billing/reminder"
	"billing-workers/internal/common/clock"
	"billing-workers/internal/common/config"
	"billing-workers/internal/common/logger"
	"billing-workers/internal/common/metrics"
	"billing-workers/internal/notification"
	"billing-workers/internal/notification/dispatch"
	"billing-workers/internal/notification/lock"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	TaskProcessPending   = "process-pending"
	TaskRetryFailed      = "retry-failed"
	TaskPaymentReminders = "payment-reminders"
	TaskContractExpiry   = "contract-expiry"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

// Engine is the part of the dispatch engine the scheduler drives.
type Engine interface {
	ProcessPending(ctx context.Context) (int, error)
	RetryFailed(ctx context.Context) (int, error)
	SendPaymentReminder(ctx context.Context, r dispatch.PaymentReminder) (*notification.Notification, error)
	SendContractExpiryNotice(ctx context.Context, c dispatch.ContractExpiry) (*notification.Notification, error)
}

type Config struct {
	PendingInterval  time.Duration
	RetryInterval    time.Duration
	DailyRunAt       time.Duration // offset from local midnight
	ExpiryCheckAt    time.Duration
	Location         *time.Location
	WindowDays       int
	Policy           reminder.Policy
	ExpiryNoticeDays int
	LockTTL          time.Duration
}

func ConfigFrom(cfg config.SchedulerConfig) (Config, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("load timezone: %w", err)
	}
	daily, err := config.ParseTimeOfDay(cfg.DailyRunAt)
	if err != nil {
		return Config{}, fmt.Errorf("daily_run_at: %w", err)
	}
	expiry, err := config.ParseTimeOfDay(cfg.ExpiryCheckAt)
	if err != nil {
		return Config{}, fmt.Errorf("expiry_check_at: %w", err)
	}
	mode, err := reminder.ParseMode(cfg.MatchMode)
	if err != nil {
		return Config{}, err
	}
	return Config{
		PendingInterval:  config.GetDuration(cfg.PendingInterval),
		RetryInterval:    config.GetDuration(cfg.RetryInterval),
		DailyRunAt:       daily,
		ExpiryCheckAt:    expiry,
		Location:         loc,
		WindowDays:       cfg.ReminderWindowDays,
		Policy:           reminder.Policy{Mode: mode},
		ExpiryNoticeDays: cfg.ExpiryNoticeDays,
		LockTTL:          config.GetDuration(cfg.LockTTL),
	}, nil
}

type task struct {
	name    string
	running sync.Mutex
	run     func(ctx context.Context) error
}

type Scheduler struct {
	cfg      Config
	engine   Engine
	payments payments.Source
	clock    clock.Clock
	locker   lock.Locker
	logger   logger.Logger

	tasks map[string]*task

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLocker makes every task run under a distributed lock, for
// deployments with more than one scheduler instance.
func WithLocker(l lock.Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

func New(cfg Config, engine Engine, source payments.Source, log logger.Logger, opts ...Option) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 31
	}
	if cfg.ExpiryNoticeDays <= 0 {
		cfg.ExpiryNoticeDays = 30
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}

	s := &Scheduler{
		cfg:      cfg,
		engine:   engine,
		payments: source,
		clock:    clock.Real(),
		logger:   log.WithFields(map[string]interface{}{"component": "scheduler"}),
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.tasks = map[string]*task{
		TaskProcessPending: {name: TaskProcessPending, run: func(ctx context.Context) error {
			_, err := s.ProcessPending(ctx)
			return err
		}},
		TaskRetryFailed: {name: TaskRetryFailed, run: func(ctx context.Context) error {
			_, err := s.RetryFailed(ctx)
			return err
		}},
		TaskPaymentReminders: {name: TaskPaymentReminders, run: func(ctx context.Context) error {
			_, err := s.RunPaymentReminders(ctx)
			return err
		}},
		TaskContractExpiry: {name: TaskContractExpiry, run: func(ctx context.Context) error {
			_, err := s.CheckExpiringContracts(ctx)
			return err
		}},
	}
	return s
}

// Start launches the four task loops. They stop when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.baseCtx = ctx
	s.cancel = cancel

	s.goLoop(func() { s.every(ctx, s.cfg.PendingInterval, s.tasks[TaskProcessPending]) })
	s.goLoop(func() { s.every(ctx, s.cfg.RetryInterval, s.tasks[TaskRetryFailed]) })
	s.goLoop(func() { s.daily(ctx, s.cfg.DailyRunAt, s.tasks[TaskPaymentReminders]) })
	s.goLoop(func() { s.daily(ctx, s.cfg.ExpiryCheckAt, s.tasks[TaskContractExpiry]) })

	s.logger.Info("scheduler started", map[string]interface{}{
		"pendingInterval": s.cfg.PendingInterval.String(),
		"retryInterval":   s.cfg.RetryInterval.String(),
		"dailyRunAt":      s.cfg.DailyRunAt.String(),
		"timezone":        s.cfg.Location.String(),
		"matchMode":       string(s.cfg.Policy.Mode),
	})
	return nil
}

// Stop cancels the loops and waits for running tasks, including manual
// triggers, to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped", nil)
}

// TriggerReminders starts a payment reminder pass in the background and
// returns at once. Outcomes are visible through notification history only.
func (s *Scheduler) TriggerReminders() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	s.goLoop(func() {
		s.logger.Info("manual reminder run triggered", nil)
		s.runTask(ctx, s.tasks[TaskPaymentReminders])
	})
}

func (s *Scheduler) goLoop(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, t *task) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
			s.runTask(ctx, t)
		}
	}
}

func (s *Scheduler) daily(ctx context.Context, at time.Duration, t *task) {
	for {
		wait := s.untilNext(at)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
			s.runTask(ctx, t)
		}
	}
}

// untilNext returns the wait until the next local occurrence of the
// time-of-day offset at.
func (s *Scheduler) untilNext(at time.Duration) time.Duration {
	now := s.clock.Now().In(s.cfg.Location)
	next := startOfDay(now, s.cfg.Location).Add(at)
	if !next.After(now) {
		next = startOfDay(now.AddDate(0, 0, 1), s.cfg.Location).Add(at)
	}
	return next.Sub(now)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// runTask runs t unless a previous run of it is still in progress, or,
// with a locker, another instance holds its lock. It reports whether t ran.
func (s *Scheduler) runTask(ctx context.Context, t *task) (ran bool) {
	if !t.running.TryLock() {
		metrics.SchedulerTaskSkipped.WithLabelValues(t.name).Inc()
		s.logger.Debug("task still running, skipping", map[string]interface{}{"task": t.name})
		return false
	}
	defer t.running.Unlock()

	if s.locker != nil {
		lease, err := s.locker.TryAcquire(ctx, t.name, s.cfg.LockTTL)
		if err != nil {
			s.logger.Error("task lock failed", map[string]interface{}{"task": t.name, "error": err.Error()})
			return false
		}
		if lease == nil {
			metrics.SchedulerTaskSkipped.WithLabelValues(t.name).Inc()
			s.logger.Debug("task locked by another instance", map[string]interface{}{"task": t.name})
			return false
		}
		defer func() {
			if err := lease.Release(context.Background()); err != nil {
				s.logger.Warn("task lock release failed", map[string]interface{}{"task": t.name, "error": err.Error()})
			}
		}()
	}

	timer := prometheus.NewTimer(metrics.SchedulerTaskDuration.WithLabelValues(t.name))
	defer timer.ObserveDuration()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", map[string]interface{}{"task": t.name, "panic": fmt.Sprint(r)})
		}
	}()

	ran = true
	if err := t.run(ctx); err != nil {
		s.logger.Error("task failed", map[string]interface{}{"task": t.name, "error": err.Error()})
	}
	return ran
}

func (s *Scheduler) ProcessPending(ctx context.Context) (int, error) {
	return s.engine.ProcessPending(ctx)
}

func (s *Scheduler) RetryFailed(ctx context.Context) (int, error) {
	return s.engine.RetryFailed(ctx)
}
