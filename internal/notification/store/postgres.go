package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"billing-workers/internal/notification"

	"github.com/lib/pq"
)

const notificationColumns = `id, type, channel, status, recipient_id, recipient_name, recipient_phone,
	recipient_email, language, subject, body, template_id, template_data, metadata, dedup_key,
	scheduled_for, sent_at, delivered_at, read_at, failed_at, next_retry_at, failure_reason,
	retry_count, message_id, created_at, updated_at`

// Postgres is the notifications table repository.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Insert(ctx context.Context, n *notification.Notification) error {
	templateData, err := marshalJSON(n.TemplateData)
	if err != nil {
		return fmt.Errorf("marshal template data: %w", err)
	}
	metadata, err := marshalJSON(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `INSERT INTO notifications (
		id, type, channel, status, recipient_id, recipient_name, recipient_phone, recipient_email,
		language, subject, body, template_id, template_data, metadata, dedup_key, scheduled_for,
		retry_count, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (dedup_key) DO NOTHING
	RETURNING id`

	var id string
	err = s.db.QueryRowContext(ctx, query,
		n.ID, n.Type, n.Channel, n.Status, n.RecipientID, n.RecipientName, n.RecipientPhone, n.RecipientEmail,
		n.Language, n.Subject, n.Body, n.TemplateID, templateData, metadata, nullString(n.DedupKey), n.ScheduledFor,
		n.RetryCount, n.CreatedAt, n.UpdatedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id string) (*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *Postgres) Claim(ctx context.Context, id string, from notification.Status, retryCount int, now, until time.Time) error {
	query := `UPDATE notifications SET claimed_until = $5
		WHERE id = $1 AND status = $2 AND retry_count = $3
			AND (claimed_until IS NULL OR claimed_until <= $4)`

	res, err := s.db.ExecContext(ctx, query, id, from, retryCount, now, until)
	if err != nil {
		return fmt.Errorf("claim notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim notification: %w", err)
	}
	if affected > 0 {
		return nil
	}
	return s.conflictOrMissing(ctx, id, "claim")
}

func (s *Postgres) MarkSent(ctx context.Context, id string, sentAt time.Time, messageID string) error {
	query := `UPDATE notifications
		SET status = $2, sent_at = $3, message_id = $4, next_retry_at = NULL, claimed_until = NULL, updated_at = $3
		WHERE id = $1 AND status = ANY($5)`
	return s.transition(ctx, id, notification.StatusSent, query, sentAt, messageID)
}

func (s *Postgres) MarkFailed(ctx context.Context, id string, failedAt time.Time, reason string, nextRetryAt *time.Time) error {
	query := `UPDATE notifications
		SET status = $2, failed_at = $3, failure_reason = $4, next_retry_at = $5,
			retry_count = retry_count + 1, claimed_until = NULL, updated_at = $3
		WHERE id = $1 AND status = ANY($6)`
	return s.transition(ctx, id, notification.StatusFailed, query, failedAt, reason, nextRetryAt)
}

func (s *Postgres) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE notifications SET status = $2, delivered_at = $3, updated_at = $3
		WHERE id = $1 AND status = ANY($4)`
	return s.transition(ctx, id, notification.StatusDelivered, query, at)
}

func (s *Postgres) MarkRead(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE notifications SET status = $2, read_at = $3, updated_at = $3
		WHERE id = $1 AND status = ANY($4)`
	return s.transition(ctx, id, notification.StatusRead, query, at)
}

// transition runs an UPDATE whose args are (id, to, extra..., allowedFrom).
func (s *Postgres) transition(ctx context.Context, id string, to notification.Status, query string, extra ...interface{}) error {
	from := make([]string, 0, 2)
	for _, st := range notification.SourcesOf(to) {
		from = append(from, string(st))
	}

	args := append([]interface{}{id, to}, extra...)
	args = append(args, pq.Array(from))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark %s: %w", to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark %s: %w", to, err)
	}
	if affected > 0 {
		return nil
	}
	return s.conflictOrMissing(ctx, id, "mark "+string(to))
}

// conflictOrMissing explains an UPDATE that matched no row.
func (s *Postgres) conflictOrMissing(ctx context.Context, id, op string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusConflict
}

func (s *Postgres) ExistsByDedupKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM notifications WHERE dedup_key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check dedup key: %w", err)
	}
	return exists, nil
}

func (s *Postgres) ListDuePending(ctx context.Context, now time.Time, limit int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE status = 'pending' AND (scheduled_for IS NULL OR scheduled_for <= $1)
		ORDER BY created_at
		LIMIT $2`
	return s.query(ctx, query, now, limit)
}

func (s *Postgres) ListRetryable(ctx context.Context, now time.Time, maxRetries, limit int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE status = 'failed' AND retry_count < $1
			AND next_retry_at IS NOT NULL AND next_retry_at <= $2
		ORDER BY next_retry_at
		LIMIT $3`
	return s.query(ctx, query, maxRetries, now, limit)
}

func (s *Postgres) CountByStatus(ctx context.Context) (map[notification.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM notifications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[notification.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[notification.Status(status)] = count
	}
	return counts, rows.Err()
}

func (s *Postgres) List(ctx context.Context, filter notification.Filter, page notification.Page) ([]*notification.Notification, int, error) {
	page = page.Normalize()

	var conds []string
	var args []interface{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.RecipientID != "" {
		add("recipient_id = $%d", filter.RecipientID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, where, len(args)+1, len(args)+2)
	items, err := s.query(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Postgres) query(ctx context.Context, query string, args ...interface{}) ([]*notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row scanner) (*notification.Notification, error) {
	var (
		n                                                   notification.Notification
		typ, channel, status                                string
		name, phone, email, subject, templateID, dedupKey   sql.NullString
		failureReason, messageID                            sql.NullString
		templateData, metadata                              []byte
		scheduledFor, sentAt, deliveredAt, readAt, failedAt sql.NullTime
		nextRetryAt                                         sql.NullTime
	)

	err := row.Scan(
		&n.ID, &typ, &channel, &status, &n.RecipientID, &name, &phone,
		&email, &n.Language, &subject, &n.Body, &templateID, &templateData, &metadata, &dedupKey,
		&scheduledFor, &sentAt, &deliveredAt, &readAt, &failedAt, &nextRetryAt, &failureReason,
		&n.RetryCount, &messageID, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Type = notification.Type(typ)
	n.Channel = notification.Channel(channel)
	n.Status = notification.Status(status)
	n.RecipientName = name.String
	n.RecipientPhone = phone.String
	n.RecipientEmail = email.String
	n.Subject = subject.String
	n.TemplateID = templateID.String
	n.DedupKey = dedupKey.String
	n.FailureReason = failureReason.String
	n.MessageID = messageID.String
	n.ScheduledFor = timePtr(scheduledFor)
	n.SentAt = timePtr(sentAt)
	n.DeliveredAt = timePtr(deliveredAt)
	n.ReadAt = timePtr(readAt)
	n.FailedAt = timePtr(failedAt)
	n.NextRetryAt = timePtr(nextRetryAt)

	if len(templateData) > 0 {
		if err := json.Unmarshal(templateData, &n.TemplateData); err != nil {
			return nil, fmt.Errorf("template_data: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
	}
	return &n, nil
}

func marshalJSON(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
