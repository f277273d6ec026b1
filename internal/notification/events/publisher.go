// Package events publishes notification status changes to Kafka so the
// surrounding system can consume delivery results.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"billing-workers/internal/common/logger"
	"billing-workers/internal/notification"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the JSON body of one status change.
type Event struct {
	EventType      string                 `json:"eventType"`
	NotificationID string                 `json:"notificationId"`
	Type           notification.Type      `json:"type"`
	Channel        notification.Channel   `json:"channel"`
	Status         notification.Status    `json:"status"`
	RecipientID    string                 `json:"recipientId"`
	RetryCount     int                    `json:"retryCount"`
	MessageID      string                 `json:"messageId,omitempty"`
	FailureReason  string                 `json:"failureReason,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt     time.Time              `json:"occurredAt"`
}

// EventType names the event for a status, e.g. "notification.sent".
func EventType(s notification.Status) string {
	return "notification." + string(s)
}

func NewEvent(n *notification.Notification) Event {
	return Event{
		EventType:      EventType(n.Status),
		NotificationID: n.ID,
		Type:           n.Type,
		Channel:        n.Channel,
		Status:         n.Status,
		RecipientID:    n.RecipientID,
		RetryCount:     n.RetryCount,
		MessageID:      n.MessageID,
		FailureReason:  n.FailureReason,
		Metadata:       n.Metadata,
		OccurredAt:     n.UpdatedAt,
	}
}

type KafkaPublisher struct {
	writer Writer
	topic  string
	logger logger.Logger
}

// NewKafkaPublisher builds a publisher writing to topic on brokers.
// Messages are keyed by notification id so one notification's events stay
// ordered within a partition.
func NewKafkaPublisher(brokers []string, topic string, log logger.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
	}
	return NewPublisher(w, topic, log)
}

func NewPublisher(w Writer, topic string, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		logger: log.WithFields(map[string]interface{}{"component": "events", "topic": topic}),
	}
}

// NotificationChanged implements dispatch.Listener.
func (p *KafkaPublisher) NotificationChanged(ctx context.Context, n *notification.Notification) error {
	event := NewEvent(n)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(n.ID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.EventType)},
		},
		Time: event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType, err)
	}

	p.logger.Debug("event published", map[string]interface{}{
		"eventType":      event.EventType,
		"notificationId": n.ID,
	})
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
