package notify

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/relay/internal/bus"
	"github.com/matheus3301/relay/internal/store"
	"go.uber.org/zap"
)

// Event kinds published by the Dispatcher.
const (
	EventSent    = "notify.sent"
	EventFailed  = "notify.failed"
	EventSkipped = "notify.skipped"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	batchSize           = 50
)

// Observer is told about queued and delivered notifications.
type Observer interface {
	NotificationQueued(kind string)
	NotificationDelivered(kind, outcome string)
}

// Dispatcher drains the notification outbox into a Notifier.
type Dispatcher struct {
	db       *store.DB
	notifier Notifier
	bus      *bus.Bus
	logger   *zap.Logger
	observer Observer
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a dispatcher. b, observer and logger may be nil.
func NewDispatcher(db *store.DB, notifier Notifier, b *bus.Bus, observer Observer, logger *zap.Logger, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		db:       db,
		notifier: notifier,
		bus:      b,
		logger:   logger,
		observer: observer,
		interval: interval,
	}
}

// Start requeues notifications left in sending by a previous run, then
// begins polling the outbox.
func (d *Dispatcher) Start(ctx context.Context) {
	n, err := d.db.ReclaimNotifications(ctx)
	switch {
	case err != nil:
		d.logger.Error("failed to reclaim notifications", zap.Error(err))
	case n > 0:
		d.logger.Info("requeued interrupted notifications", zap.Int64("count", n))
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.loop(ctx)
}

// Stop stops the loop and waits for an in-flight batch to finish.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Drain delivers every queued notification once and returns how many were
// claimed.
func (d *Dispatcher) Drain(ctx context.Context) int {
	pending, err := d.db.PendingNotifications(ctx, batchSize)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("failed to read notification outbox", zap.Error(err))
		}
		return 0
	}

	claimed := 0
	for _, n := range pending {
		ok, err := d.db.MarkNotificationSending(ctx, n.ID)
		if err != nil {
			d.logger.Error("failed to claim notification", zap.Error(err), zap.Int64("id", n.ID))
			continue
		}
		if !ok {
			continue
		}
		claimed++
		d.deliver(ctx, n)
	}
	return claimed
}

func (d *Dispatcher) deliver(ctx context.Context, n store.Notification) {
	err := d.notifier.Deliver(ctx, n)
	kind := string(n.Kind)

	switch {
	case errors.Is(err, ErrSkipped):
		if merr := d.db.MarkNotificationSent(ctx, n.ID); merr != nil {
			d.logger.Error("failed to mark notification sent", zap.Error(merr), zap.Int64("id", n.ID))
		}
		d.logger.Debug("notification skipped", zap.Int64("id", n.ID), zap.String("kind", kind))
		d.publish(EventSkipped, n, "")
		d.observe(kind, "skipped")
	case err != nil:
		d.logger.Warn("notification delivery failed", zap.Error(err), zap.Int64("id", n.ID), zap.String("kind", kind))
		if merr := d.db.MarkNotificationFailed(ctx, n.ID, err.Error()); merr != nil {
			d.logger.Error("failed to mark notification failed", zap.Error(merr), zap.Int64("id", n.ID))
		}
		d.publish(EventFailed, n, err.Error())
		d.observe(kind, "failed")
	default:
		if merr := d.db.MarkNotificationSent(ctx, n.ID); merr != nil {
			d.logger.Error("failed to mark notification sent", zap.Error(merr), zap.Int64("id", n.ID))
		}
		d.logger.Info("notification sent", zap.Int64("id", n.ID), zap.String("kind", kind), zap.String("to", n.ToEmail))
		d.publish(EventSent, n, "")
		d.observe(kind, "sent")
	}
}

func (d *Dispatcher) publish(kind string, n store.Notification, errMsg string) {
	if d.bus == nil {
		return
	}
	payload := map[string]any{"id": n.ID, "kind": string(n.Kind)}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	d.bus.Publish(bus.NewEvent(kind, nil, payload))
}

func (d *Dispatcher) observe(kind, outcome string) {
	if d.observer != nil {
		d.observer.NotificationDelivered(kind, outcome)
	}
}
