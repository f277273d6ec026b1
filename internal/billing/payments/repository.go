package payments

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"billing-workers/internal/billing/schedule"

	"github.com/google/uuid"
)

// Source is what the reminder scheduler reads.
type Source interface {
	// Upcoming returns pending payments due in [from, to], ordered by due date.
	Upcoming(ctx context.Context, from, to time.Time) ([]Upcoming, error)
	// Expiring returns contracts whose end date falls in [from, to).
	Expiring(ctx context.Context, from, to time.Time) ([]ExpiringContract, error)
}

// Repository reads the collaborator-owned contracts, payments, contacts and
// units tables.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Upcoming(ctx context.Context, from, to time.Time) ([]Upcoming, error) {
	query := `SELECT p.id, p.contract_id, p.due_date, p.amount, p.status, p.paid_date,
			c.payment_frequency, ct.id, ct.full_name, COALESCE(ct.phone, ''), COALESCE(ct.email, ''),
			COALESCE(ct.preferred_language, ''), COALESCE(u.unit_number, '')
		FROM payments p
		JOIN contracts c ON c.id = p.contract_id
		JOIN contacts ct ON ct.id = c.contact_id
		LEFT JOIN units u ON u.id = c.unit_id
		WHERE p.status = 'pending' AND p.due_date >= $1 AND p.due_date <= $2
		ORDER BY p.due_date, p.id`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query upcoming payments: %w", err)
	}
	defer rows.Close()

	var out []Upcoming
	for rows.Next() {
		var (
			u         Upcoming
			paidDate  sql.NullTime
			frequency string
		)
		err := rows.Scan(
			&u.ID, &u.ContractID, &u.DueDate, &u.Amount, &u.Status, &paidDate,
			&frequency, &u.Contact.ID, &u.Contact.FullName, &u.Contact.Phone, &u.Contact.Email,
			&u.Contact.PreferredLanguage, &u.UnitNumber,
		)
		if err != nil {
			return nil, fmt.Errorf("scan upcoming payment: %w", err)
		}
		if paidDate.Valid {
			t := paidDate.Time
			u.PaidDate = &t
		}
		u.Frequency = schedule.Frequency(frequency)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) Expiring(ctx context.Context, from, to time.Time) ([]ExpiringContract, error) {
	query := `SELECT c.id, c.end_date, ct.id, ct.full_name, COALESCE(ct.phone, ''), COALESCE(ct.email, ''),
			COALESCE(ct.preferred_language, ''), COALESCE(u.unit_number, '')
		FROM contracts c
		JOIN contacts ct ON ct.id = c.contact_id
		LEFT JOIN units u ON u.id = c.unit_id
		WHERE c.end_date >= $1 AND c.end_date < $2
		ORDER BY c.end_date, c.id`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query expiring contracts: %w", err)
	}
	defer rows.Close()

	var out []ExpiringContract
	for rows.Next() {
		var c ExpiringContract
		err := rows.Scan(
			&c.ContractID, &c.EndDate, &c.Contact.ID, &c.Contact.FullName, &c.Contact.Phone,
			&c.Contact.Email, &c.Contact.PreferredLanguage, &c.UnitNumber,
		)
		if err != nil {
			return nil, fmt.Errorf("scan expiring contract: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertSchedule stores a generated schedule in one transaction and
// returns the payment ids in schedule order. A contract that already has
// payments keeps them: the existing ids are returned and nothing is inserted,
// so a re-delivered job does not duplicate the schedule.
func (r *Repository) InsertSchedule(ctx context.Context, payments []schedule.Payment) ([]string, error) {
	if len(payments) == 0 {
		return nil, nil
	}
	contractID := payments[0].ContractID

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin schedule insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// serializes concurrent deliveries of the same job until commit
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, contractID); err != nil {
		return nil, fmt.Errorf("lock contract %s: %w", contractID, err)
	}

	existing, err := existingPayments(ctx, tx, contractID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit schedule insert: %w", err)
		}
		return existing, nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO payments (id, contract_id, due_date, amount, status) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return nil, fmt.Errorf("prepare schedule insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(payments))
	for _, p := range payments {
		id := uuid.New().String()
		if _, err := stmt.ExecContext(ctx, id, p.ContractID, p.DueDate, p.Amount, p.Status); err != nil {
			return nil, fmt.Errorf("insert payment due %s: %w", p.DueDate.Format(time.DateOnly), err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit schedule insert: %w", err)
	}
	return ids, nil
}

func existingPayments(ctx context.Context, tx *sql.Tx, contractID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM payments WHERE contract_id = $1 ORDER BY due_date`, contractID)
	if err != nil {
		return nil, fmt.Errorf("query existing payments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan existing payment: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
