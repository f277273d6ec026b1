// Package channel delivers rendered notifications over WhatsApp, email, SMS
// and the in-app inbox.
package channel

import (
	"context"
	"fmt"

	"billing-workers/internal/notification"
)

// Message is what an adapter needs to deliver one notification.
type Message struct {
	NotificationID string
	Recipient      notification.Recipient
	Subject        string
	Body           string
}

// DeliveryResult is the outcome of one delivery attempt. Permanent marks
// failures that retrying cannot fix, such as missing credentials or a
// recipient without an address on this channel.
type DeliveryResult struct {
	Success   bool
	MessageID string
	Error     string
	Permanent bool
}

func Delivered(messageID string) DeliveryResult {
	return DeliveryResult{Success: true, MessageID: messageID}
}

func Failed(format string, args ...interface{}) DeliveryResult {
	return DeliveryResult{Error: fmt.Sprintf(format, args...)}
}

func Misconfigured(format string, args ...interface{}) DeliveryResult {
	return DeliveryResult{Error: fmt.Sprintf(format, args...), Permanent: true}
}

// Adapter delivers messages over one channel. Implementations report every
// failure through DeliveryResult and never panic past Deliver.
type Adapter interface {
	Channel() notification.Channel
	Deliver(ctx context.Context, msg Message) DeliveryResult
}

// Registry maps channels to their adapters.
type Registry struct {
	adapters map[notification.Channel]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[notification.Channel]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Channel().
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Channel()] = a
}

func (r *Registry) Get(c notification.Channel) (Adapter, bool) {
	a, ok := r.adapters[c]
	return a, ok
}

// Channels lists the configured channels.
func (r *Registry) Channels() []notification.Channel {
	out := make([]notification.Channel, 0, len(r.adapters))
	for c := range r.adapters {
		out = append(out, c)
	}
	return out
}
