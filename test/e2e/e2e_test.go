//go:build e2e

// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-workers/internal/billing/payments"
	"billing-workers/internal/billing/reminder"
	"billing-workers/internal/common/clock"
	"billing-workers/internal/common/config"
	"billing-workers/internal/common/database"
	"billing-workers/internal/common/logger"
	"billing-workers/internal/notification"
	"billing-workers/internal/notification/channel"
	"billing-workers/internal/notification/dispatch"
	"billing-workers/internal/notification/preferences"
	"billing-workers/internal/notification/store"
	"billing-workers/internal/notification/template"
	"billing-workers/internal/scheduler"
	"billing-workers/pkg/registry"

	gps "billing-workers/internal/workers/billing/generate-payment-schedule"
)

// Collaborator tables owned by the leasing service, reduced to the columns
// this module reads and writes.
const collaboratorSchema = `
CREATE TABLE IF NOT EXISTS contacts (
	id VARCHAR(100) PRIMARY KEY,
	full_name VARCHAR(255) NOT NULL,
	phone VARCHAR(32),
	email VARCHAR(255),
	preferred_language VARCHAR(5)
);
CREATE TABLE IF NOT EXISTS units (
	id VARCHAR(100) PRIMARY KEY,
	unit_number VARCHAR(50) NOT NULL
);
CREATE TABLE IF NOT EXISTS contracts (
	id VARCHAR(100) PRIMARY KEY,
	contact_id VARCHAR(100) NOT NULL REFERENCES contacts(id),
	unit_id VARCHAR(100) REFERENCES units(id),
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	payment_frequency VARCHAR(20) NOT NULL
);
CREATE TABLE IF NOT EXISTS payments (
	id VARCHAR(100) PRIMARY KEY,
	contract_id VARCHAR(100) NOT NULL REFERENCES contracts(id),
	due_date DATE NOT NULL,
	amount NUMERIC(12, 2) NOT NULL,
	status VARCHAR(20) NOT NULL,
	paid_date DATE
);`

type whatsappStub struct{ calls int32 }

func (w *whatsappStub) Channel() notification.Channel { return notification.ChannelWhatsApp }

func (w *whatsappStub) Deliver(ctx context.Context, msg channel.Message) channel.DeliveryResult {
	atomic.AddInt32(&w.calls, 1)
	return channel.Delivered("wamid-" + msg.NotificationID)
}

func connect(t *testing.T) *sql.DB {
	t.Helper()
	host := os.Getenv("E2E_DB_HOST")
	if host == "" {
		t.Skip("E2E_DB_HOST not set")
	}

	pg, err := database.NewPostgres(config.PostgresConfig{
		Host:     host,
		Port:     5432,
		Database: os.Getenv("E2E_DB_NAME"),
		User:     os.Getenv("E2E_DB_USER"),
		Password: os.Getenv("E2E_DB_PASSWORD"),
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	require.NoError(t, pg.Ping(context.Background()), "PostgreSQL ping failed")
	t.Cleanup(func() { pg.Close() })
	return pg.DB
}

func migrate(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()

	for _, table := range []string{"notifications", "notification_preferences", "payments", "contracts", "units", "contacts"} {
		_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS `+table+` CASCADE`)
		require.NoError(t, err)
	}

	ddl, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_notifications.sql"))
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, string(ddl))
	require.NoError(t, err, "notifications migration failed")

	_, err = db.ExecContext(ctx, collaboratorSchema)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO contacts (id, full_name, phone, preferred_language) VALUES ('contact-1', 'Sara Al-Harbi', '0501234567', 'en');
		INSERT INTO units (id, unit_number) VALUES ('unit-1', 'A-101');
		INSERT INTO contracts (id, contact_id, unit_id, start_date, end_date, payment_frequency)
			VALUES ('contract-1', 'contact-1', 'unit-1', '2025-01-01', '2025-12-31', 'monthly');`)
	require.NoError(t, err)
}

func TestScheduleToReminder(t *testing.T) {
	db := connect(t)
	migrate(t, db)
	ctx := context.Background()
	log := logger.NewTestLogger(t)
	repo := payments.NewRepository(db)

	// 1. generate-payment-schedule persists the monthly schedule
	handler, err := gps.NewHandler(gps.HandlerOptions{CustomConfig: gps.DefaultConfig(), Writer: repo, Logger: log})
	require.NoError(t, err)

	out, err := handler.Execute(ctx, &gps.Input{
		ContractID:       "contract-1",
		StartDate:        "2025-01-01",
		EndDate:          "2025-12-31",
		RentAmount:       decimal.NewFromInt(50000),
		PaymentFrequency: "monthly",
	})
	require.NoError(t, err)
	assert.True(t, out.Persisted)
	assert.Equal(t, 12, out.PaymentCount)

	var stored int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE contract_id = 'contract-1'`).Scan(&stored))
	assert.Equal(t, 12, stored)

	// a re-delivered job returns the stored schedule instead of a second one
	rerun, err := handler.Execute(ctx, &gps.Input{
		ContractID:       "contract-1",
		StartDate:        "2025-01-01",
		EndDate:          "2025-12-31",
		RentAmount:       decimal.NewFromInt(50000),
		PaymentFrequency: "monthly",
	})
	require.NoError(t, err)
	assert.Equal(t, out.Payments[0].ID, rerun.Payments[0].ID)
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE contract_id = 'contract-1'`).Scan(&stored))
	assert.Equal(t, 12, stored)

	// 2. the reminder pass five days before the April payment sends once
	riyadh, err := time.LoadLocation("Asia/Riyadh")
	require.NoError(t, err)
	fc := clock.NewFake(time.Date(2025, 3, 27, 9, 0, 0, 0, riyadh))

	notifications := store.NewPostgres(db)
	wa := &whatsappStub{}
	engine := dispatch.NewEngine(dispatch.Config{
		MaxRetries:      3,
		SendTimeout:     5 * time.Second,
		BackoffBase:     15 * time.Minute,
		BackoffMax:      2 * time.Hour,
		BatchSize:       100,
		DefaultLanguage: "ar",
	}, notifications, preferences.NewPostgresLookup(db), template.NewRenderer(registry.Default(), "ar"),
		channel.NewRegistry(wa, channel.NewInAppAdapter()), log, dispatch.WithClock(fc))

	sched := scheduler.New(scheduler.Config{
		PendingInterval:  time.Minute,
		RetryInterval:    15 * time.Minute,
		DailyRunAt:       9 * time.Hour,
		ExpiryCheckAt:    10 * time.Hour,
		Location:         riyadh,
		WindowDays:       31,
		Policy:           reminder.Policy{Mode: reminder.ModeExact},
		ExpiryNoticeDays: 30,
		LockTTL:          time.Minute,
	}, engine, repo, log, scheduler.WithClock(fc))

	first, err := sched.RunPaymentReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sent)

	second, err := sched.RunPaymentReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 1, second.Duplicates)
	assert.EqualValues(t, 1, atomic.LoadInt32(&wa.calls))

	// 3. history and receipts go through the postgres store
	page, err := engine.History(ctx, notification.Filter{RecipientID: "contact-1"}, notification.Page{Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	sent := page.Items[0]
	assert.Equal(t, notification.TypePaymentReminder, sent.Type)
	assert.Equal(t, notification.StatusSent, sent.Status)
	assert.Equal(t, "en", sent.Language)
	assert.Contains(t, sent.Body, "A-101")
	assert.Contains(t, sent.Body, "4166.67")

	delivered, err := engine.MarkDelivered(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, delivered.Status)

	_, err = engine.MarkDelivered(ctx, sent.ID)
	assert.ErrorIs(t, err, dispatch.ErrInvalidTransition)

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}
