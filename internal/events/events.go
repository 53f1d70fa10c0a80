// Package events publishes operational events to a message broker. The
// ledger audit trail and webhook mismatch alerts flow through here so they
// are observable out-of-band.
package events

import "context"

// Topic names carried on the broker.
const (
	TopicLedgerOperations = "genstudio.ledger.operations"
	TopicWebhookMismatch  = "genstudio.webhooks.mismatch"
)

// Publisher delivers one event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(context.Context, string, any) error {
	return nil
}
