// Package notify delivers best-effort notifications, such as emails to
// offline users, through a durable outbox drained in the background.
package notify

import (
	"context"

	"github.com/matheus3301/relay/internal/store"
)

// Outbox queues notifications for the Dispatcher. It satisfies chat.Notifier.
type Outbox struct {
	db       *store.DB
	observer Observer
}

// NewOutbox creates an outbox over db. observer may be nil.
func NewOutbox(db *store.DB, observer Observer) *Outbox {
	return &Outbox{db: db, observer: observer}
}

func (o *Outbox) NotifyNewMessage(ctx context.Context, toEmail, toName, fromName, preview, conversationID string) error {
	return o.queue(ctx, &store.Notification{
		Kind:           store.NotifyNewMessage,
		ToEmail:        toEmail,
		ToName:         toName,
		FromName:       fromName,
		Preview:        preview,
		ConversationID: conversationID,
	})
}

func (o *Outbox) NotifyConnectionRequest(ctx context.Context, toEmail, toName, fromName string) error {
	return o.queue(ctx, &store.Notification{
		Kind:     store.NotifyConnectionRequest,
		ToEmail:  toEmail,
		ToName:   toName,
		FromName: fromName,
	})
}

func (o *Outbox) queue(ctx context.Context, n *store.Notification) error {
	if _, err := o.db.QueueNotification(ctx, n); err != nil {
		return err
	}
	if o.observer != nil {
		o.observer.NotificationQueued(string(n.Kind))
	}
	return nil
}
