package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/matheus3301/relay/internal/bus"
	"go.uber.org/zap"
)

// Observer receives hub activity, typically for metrics.
type Observer interface {
	SubscriptionOpened()
	SubscriptionClosed()
	Evaluated(signature string, took time.Duration, err error)
	Pushed(signature string)
}

type nopObserver struct{}

func (nopObserver) SubscriptionOpened()                    {}
func (nopObserver) SubscriptionClosed()                    {}
func (nopObserver) Evaluated(string, time.Duration, error) {}
func (nopObserver) Pushed(string)                          {}

// Hub re-evaluates subscribed queries when a commit touches their dependency
// set and pushes a snapshot whenever the result changed.
type Hub struct {
	bus      *bus.Bus
	logger   *zap.Logger
	observer Observer

	mu   sync.Mutex
	subs map[uint64]*Subscription
	next uint64

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub fed by commit events on b. observer may be nil.
func NewHub(b *bus.Bus, logger *zap.Logger, observer Observer) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Hub{
		bus:      b,
		logger:   logger,
		observer: observer,
		subs:     make(map[uint64]*Subscription),
		wake:     make(chan struct{}, 1),
	}
}

// Start subscribes to commit events and runs the re-evaluation loop.
func (h *Hub) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	ch, unsub := h.bus.Subscribe(CommitNamespace, 1024)

	go func() {
		defer close(h.done)
		defer unsub()

		timer := time.NewTimer(time.Hour)
		timer.Stop()
		defer timer.Stop()
		lastDropped := h.bus.Dropped()

		for {
			h.arm(timer)
			select {
			case evt := <-ch:
				h.markTopics(evt.Topics)
				for drained := false; !drained; {
					select {
					case more := <-ch:
						h.markTopics(more.Topics)
					default:
						drained = true
					}
				}
			case <-timer.C:
				h.markExpired(time.Now())
			case <-h.wake:
			case <-ctx.Done():
				return
			}
			// A dropped commit could have touched anything.
			if d := h.bus.Dropped(); d != lastDropped {
				lastDropped = d
				h.logger.Warn("commit events dropped, refreshing every subscription")
				h.markAll()
			}
			h.evaluateDirty(ctx)
		}
	}()
}

// Stop ends the loop and closes every subscription.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

// Subscribe registers q, evaluates it once, and returns a subscription whose
// channel always holds the newest snapshot. The subscription closes when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, q Query) *Subscription {
	s := &Subscription{
		hub:     h,
		query:   q,
		ch:      make(chan Snapshot, 1),
		pending: true,
	}
	h.mu.Lock()
	s.id = h.next
	h.next++
	h.subs[s.id] = s
	h.mu.Unlock()
	h.observer.SubscriptionOpened()

	s.stop = context.AfterFunc(ctx, s.Close)
	h.evaluate(ctx, s)
	return s
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) markTopics(topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.pending {
			s.dirty = true
			continue
		}
		for _, t := range topics {
			if _, ok := s.topics[t]; ok {
				s.dirty = true
				break
			}
		}
	}
}

func (h *Hub) markExpired(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if !s.validUntil.IsZero() && !now.Before(s.validUntil) {
			s.dirty = true
		}
	}
}

func (h *Hub) markAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		s.dirty = true
	}
}

// arm points the timer at the earliest validity deadline, if any.
func (h *Hub) arm(timer *time.Timer) {
	h.mu.Lock()
	var next time.Time
	for _, s := range h.subs {
		if s.validUntil.IsZero() {
			continue
		}
		if next.IsZero() || s.validUntil.Before(next) {
			next = s.validUntil
		}
	}
	h.mu.Unlock()

	if next.IsZero() {
		timer.Stop()
		return
	}
	timer.Reset(max(time.Until(next), time.Millisecond))
}

func (h *Hub) evaluateDirty(ctx context.Context) {
	h.mu.Lock()
	var dirty []*Subscription
	for _, s := range h.subs {
		if s.dirty {
			s.dirty = false
			dirty = append(dirty, s)
		}
	}
	h.mu.Unlock()

	for _, s := range dirty {
		if ctx.Err() != nil {
			return
		}
		h.evaluate(ctx, s)
	}
}

func (h *Hub) evaluate(ctx context.Context, s *Subscription) {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	if s.closed {
		return
	}

	sig := s.query.Signature()
	start := time.Now()
	res, err := s.query.Run(ctx)
	h.observer.Evaluated(sig, time.Since(start), err)
	if err != nil && ctx.Err() != nil {
		return
	}

	topics := make(map[string]struct{}, len(res.Topics))
	for _, t := range res.Topics {
		topics[t] = struct{}{}
	}
	h.mu.Lock()
	if err == nil {
		s.topics = topics
		s.pending = false
		s.validUntil = res.ValidUntil
	} else {
		// Keep the previous dependency set so a later commit retries the query.
		s.validUntil = time.Time{}
	}
	h.mu.Unlock()

	sum := digest(res.Value, err)
	if s.version > 0 && sum == s.sum {
		return
	}
	s.sum = sum
	s.version++
	if err != nil {
		h.logger.Warn("live query failed", zap.String("query", sig), zap.Error(err))
	}
	s.deliver(Snapshot{
		Signature: sig,
		Version:   s.version,
		Value:     res.Value,
		Err:       err,
		At:        time.Now(),
	})
	h.observer.Pushed(sig)
}

func (h *Hub) remove(s *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return false
	}
	delete(h.subs, s.id)
	return true
}

func digest(v any, err error) uint64 {
	if err != nil {
		return xxhash.Sum64String("error:" + err.Error())
	}
	data, merr := json.Marshal(v)
	if merr != nil {
		return xxhash.Sum64String("unencodable:" + merr.Error())
	}
	return xxhash.Sum64(data)
}

// Subscription is one viewer's live query.
type Subscription struct {
	id    uint64
	hub   *Hub
	query Query
	ch    chan Snapshot
	stop  func() bool

	// guarded by hub.mu
	topics     map[string]struct{}
	pending    bool
	dirty      bool
	validUntil time.Time

	// guarded by evalMu
	evalMu  sync.Mutex
	closed  bool
	sum     uint64
	version uint64
}

// C delivers snapshots. It is closed when the subscription closes.
func (s *Subscription) C() <-chan Snapshot { return s.ch }

// Signature returns the signature of the subscribed query.
func (s *Subscription) Signature() string { return s.query.Signature() }

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if !s.hub.remove(s) {
		return
	}
	if s.stop != nil {
		s.stop()
	}
	s.evalMu.Lock()
	s.closed = true
	close(s.ch)
	s.evalMu.Unlock()
	s.hub.observer.SubscriptionClosed()
}

// deliver replaces any unread snapshot with snap. Callers hold evalMu.
func (s *Subscription) deliver(snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
