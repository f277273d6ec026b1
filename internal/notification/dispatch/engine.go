// Package dispatch owns the notification lifecycle: preference checks,
// rendering, persistence, delivery and the retry window.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"billing-workers/internal/common/clock"
	"billing-workers/internal/common/config"
	"billing-workers/internal/common/logger"
	"billing-workers/internal/common/metrics"
	"billing-workers/internal/common/observability"
	"billing-workers/internal/notification"
	"billing-workers/internal/notification/channel"
	"billing-workers/internal/notification/preferences"
	"billing-workers/internal/notification/store"
	"billing-workers/internal/notification/template"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidRequest       = errors.New("invalid notification request")
	ErrDuplicate            = errors.New("notification already exists for dedup key")
	ErrChannelNotConfigured = errors.New("channel not configured")
	ErrNotFound             = store.ErrNotFound
	ErrInvalidTransition    = store.ErrStatusConflict
	// ErrNotRetryable is returned by Process for rows that are sent, not yet
	// due, permanently failed or out of retries.
	ErrNotRetryable = fmt.Errorf("%w: notification is not retryable", store.ErrStatusConflict)

	// errNotClaimed means another attempt holds the row or it already moved
	// past the status the caller saw.
	errNotClaimed = errors.New("notification claimed elsewhere")
)

// Config tunes delivery and the retry window.
type Config struct {
	MaxRetries      int
	SendTimeout     time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	BatchSize       int
	DefaultLanguage string
}

func ConfigFrom(cfg config.NotificationConfig) Config {
	return Config{
		MaxRetries:      cfg.MaxRetries,
		SendTimeout:     config.GetDuration(cfg.SendTimeout),
		BackoffBase:     config.GetDuration(cfg.RetryBackoffBase),
		BackoffMax:      config.GetDuration(cfg.RetryBackoffMax),
		BatchSize:       cfg.BatchSize,
		DefaultLanguage: cfg.DefaultLanguage,
	}
}

// Renderer resolves and renders the template of a notification type.
type Renderer interface {
	Render(t notification.Type, lang string, vars map[string]interface{}) (*template.Rendered, error)
}

// Listener observes every persisted status change.
type Listener interface {
	NotificationChanged(ctx context.Context, n *notification.Notification) error
}

// Request describes one notification to send.
type Request struct {
	Type      notification.Type
	Recipient notification.Recipient
	// Channel overrides the recipient's preferred channel when set.
	Channel      notification.Channel
	Payload      template.Payload
	Metadata     map[string]interface{}
	DedupKey     string
	ScheduledFor *time.Time
}

type Engine struct {
	cfg       Config
	store     store.Store
	prefs     preferences.Lookup
	renderer  Renderer
	channels  *channel.Registry
	clock     clock.Clock
	obs       *observability.Observability
	listeners []Listener
	logger    logger.Logger

	inflight sync.Map
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithObservability(o *observability.Observability) Option {
	return func(e *Engine) { e.obs = o }
}

func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

func NewEngine(cfg Config, st store.Store, prefs preferences.Lookup, renderer Renderer, channels *channel.Registry, log logger.Logger, opts ...Option) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	e := &Engine{
		cfg:      cfg,
		store:    st,
		prefs:    prefs,
		renderer: renderer,
		channels: channels,
		clock:    clock.Real(),
		logger:   log.WithFields(map[string]interface{}{"component": "dispatch"}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Send persists and, when due, delivers one notification. It returns
// (nil, nil) when the recipient has disabled the type, and ErrDuplicate when
// the dedup key was already used. A failed delivery is not an error: the
// returned record carries status failed and the reason.
func (e *Engine) Send(ctx context.Context, req Request) (*notification.Notification, error) {
	if req.Type == "" || req.Recipient.ID == "" {
		return nil, fmt.Errorf("%w: type and recipient id are required", ErrInvalidRequest)
	}

	prefs, err := e.prefs.Get(ctx, req.Recipient.ID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if !prefs.TypeEnabled(req.Type) {
		metrics.NotificationsSuppressed.WithLabelValues(string(req.Type), "preferences").Inc()
		e.logger.Debug("notification suppressed by preferences", map[string]interface{}{
			"type":        req.Type,
			"recipientId": req.Recipient.ID,
		})
		return nil, nil
	}

	ch := prefs.ResolveChannel(req.Channel)
	if _, ok := e.channels.Get(ch); !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotConfigured, ch)
	}

	if req.DedupKey != "" {
		exists, err := e.store.ExistsByDedupKey(ctx, req.DedupKey)
		if err != nil {
			return nil, fmt.Errorf("check dedup key: %w", err)
		}
		if exists {
			metrics.NotificationsSuppressed.WithLabelValues(string(req.Type), "duplicate").Inc()
			return nil, ErrDuplicate
		}
	}

	vars := map[string]interface{}{}
	if req.Payload != nil {
		vars = req.Payload.Variables()
	}
	if _, ok := vars["recipientName"]; !ok && req.Recipient.Name != "" {
		vars["recipientName"] = req.Recipient.Name
	}
	lang := req.Recipient.Language
	if lang == "" {
		lang = e.cfg.DefaultLanguage
	}
	rendered, err := e.renderer.Render(req.Type, lang, vars)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	n := &notification.Notification{
		ID:             uuid.New().String(),
		Type:           req.Type,
		Channel:        ch,
		Status:         notification.StatusPending,
		RecipientID:    req.Recipient.ID,
		RecipientName:  req.Recipient.Name,
		RecipientPhone: req.Recipient.Phone,
		RecipientEmail: req.Recipient.Email,
		Language:       rendered.Language,
		Subject:        rendered.Subject,
		Body:           rendered.Body,
		TemplateID:     rendered.TemplateID,
		TemplateData:   vars,
		Metadata:       req.Metadata,
		DedupKey:       req.DedupKey,
		ScheduledFor:   req.ScheduledFor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.Insert(ctx, n); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			metrics.NotificationsSuppressed.WithLabelValues(string(req.Type), "duplicate").Inc()
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	e.notify(ctx, n)

	if !n.Due(now) {
		return n, nil
	}
	if err := e.attempt(ctx, n); err != nil {
		if errors.Is(err, errNotClaimed) {
			return e.current(ctx, n), nil
		}
		return n, err
	}
	return n, nil
}

// current re-reads n after another attempt took it over.
func (e *Engine) current(ctx context.Context, n *notification.Notification) *notification.Notification {
	if fresh, err := e.store.Get(ctx, n.ID); err == nil {
		return fresh
	}
	return n
}

// attempt claims n in the store, delivers it and records the outcome on n and
// in the store. It returns errNotClaimed when the row is held by another
// attempt or no longer has the status and retry count n carries.
func (e *Engine) attempt(ctx context.Context, n *notification.Notification) error {
	if _, busy := e.inflight.LoadOrStore(n.ID, struct{}{}); busy {
		return errNotClaimed
	}
	defer e.inflight.Delete(n.ID)

	claimedAt := e.clock.Now()
	if err := e.store.Claim(ctx, n.ID, n.Status, n.RetryCount, claimedAt, claimedAt.Add(e.leaseFor())); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return errNotClaimed
		}
		return fmt.Errorf("claim: %w", err)
	}

	log := e.logger.WithFields(map[string]interface{}{
		"notificationId": n.ID,
		"channel":        n.Channel,
		"type":           n.Type,
	})

	ctx, span := e.obs.Tracer().Start(ctx, "notification.deliver", trace.WithAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("notification.channel", string(n.Channel)),
		attribute.String("notification.type", string(n.Type)),
		attribute.Int("notification.retry_count", n.RetryCount),
	))
	defer span.End()

	result := e.deliver(ctx, n)
	e.obs.RecordDelivery(ctx, string(n.Channel), result.Success)
	now := e.clock.Now()

	if result.Success {
		if err := e.store.MarkSent(ctx, n.ID, now, result.MessageID); err != nil {
			span.RecordError(err)
			return fmt.Errorf("mark sent: %w", err)
		}
		n.Status = notification.StatusSent
		n.SentAt = &now
		n.UpdatedAt = now
		n.MessageID = result.MessageID
		n.NextRetryAt = nil
		metrics.NotificationsSent.WithLabelValues(string(n.Channel), string(n.Type)).Inc()
		log.Info("notification sent", map[string]interface{}{"messageId": result.MessageID})
		e.notify(ctx, n)
		return nil
	}

	retryCount := n.RetryCount + 1
	var nextRetry *time.Time
	if !result.Permanent && retryCount < e.cfg.MaxRetries {
		t := now.Add(Backoff(retryCount, e.cfg.BackoffBase, e.cfg.BackoffMax))
		nextRetry = &t
	}

	if err := e.store.MarkFailed(ctx, n.ID, now, result.Error, nextRetry); err != nil {
		span.RecordError(err)
		return fmt.Errorf("mark failed: %w", err)
	}
	n.Status = notification.StatusFailed
	n.FailedAt = &now
	n.UpdatedAt = now
	n.FailureReason = result.Error
	n.RetryCount = retryCount
	n.NextRetryAt = nextRetry

	span.SetStatus(codes.Error, result.Error)
	metrics.NotificationsFailed.WithLabelValues(string(n.Channel), string(n.Type), strconv.FormatBool(result.Permanent)).Inc()
	log.Warn("notification delivery failed", map[string]interface{}{
		"error":      result.Error,
		"permanent":  result.Permanent,
		"retryCount": retryCount,
	})
	e.notify(ctx, n)
	return nil
}

// leaseFor covers the adapter call plus the store write that follows it. A
// lease left by a crashed attempt expires after it.
func (e *Engine) leaseFor() time.Duration {
	return 2*e.cfg.SendTimeout + 5*time.Second
}

// deliver bounds the adapter call by SendTimeout and turns panics into a
// failed result.
func (e *Engine) deliver(ctx context.Context, n *notification.Notification) (result channel.DeliveryResult) {
	adapter, ok := e.channels.Get(n.Channel)
	if !ok {
		return channel.Misconfigured("no adapter for channel %s", n.Channel)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = channel.Failed("adapter panic: %v", r)
		}
	}()

	result = adapter.Deliver(callCtx, channel.Message{
		NotificationID: n.ID,
		Recipient:      n.Recipient(),
		Subject:        n.Subject,
		Body:           n.Body,
	})
	if !result.Success && result.Error == "" {
		result.Error = "delivery failed"
	}
	if !result.Success && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		result.Permanent = false
	}
	return result
}

func (e *Engine) notify(ctx context.Context, n *notification.Notification) {
	for _, l := range e.listeners {
		if err := l.NotificationChanged(ctx, n); err != nil {
			e.logger.Warn("notification listener failed", map[string]interface{}{
				"notificationId": n.ID,
				"status":         n.Status,
				"error":          err.Error(),
			})
		}
	}
}

// Backoff returns base·2^(retryCount-1), capped at max.
func Backoff(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = 15 * time.Minute
	}
	if retryCount < 1 {
		retryCount = 1
	}
	d := base
	for i := 1; i < retryCount; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
