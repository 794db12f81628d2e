package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/relay/internal/bus"
)

// counterQuery returns a value held in memory and counts evaluations.
type counterQuery struct {
	mu         sync.Mutex
	value      int
	err        error
	topics     []string
	validUntil time.Time
	runs       atomic.Int32
}

func (q *counterQuery) Signature() string { return "counter" }

func (q *counterQuery) Run(context.Context) (Result, error) {
	q.runs.Add(1)
	q.mu.Lock()
	defer q.mu.Unlock()
	return Result{Value: q.value, Topics: q.topics, ValidUntil: q.validUntil}, q.err
}

func (q *counterQuery) set(v int) {
	q.mu.Lock()
	q.value = v
	q.mu.Unlock()
}

func startHub(t *testing.T) (*Hub, *bus.Bus) {
	t.Helper()
	b := bus.New()
	h := NewHub(b, nil, nil)
	h.Start(context.Background())
	t.Cleanup(h.Stop)
	return h, b
}

func next(t *testing.T, s *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-s.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
	return Snapshot{}
}

func expectNone(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case snap := <-s.C():
		t.Errorf("unexpected snapshot: %+v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribePushesInitialSnapshot(t *testing.T) {
	h, _ := startHub(t)
	q := &counterQuery{value: 7, topics: []string{"a"}}

	s := h.Subscribe(context.Background(), q)
	snap := next(t, s)
	if snap.Value != 7 || snap.Version != 1 {
		t.Errorf("snapshot = %+v, want value 7 version 1", snap)
	}
	if h.Len() != 1 {
		t.Errorf("Len = %d, want 1", h.Len())
	}
}

func TestCommitOnDependencyPushesChange(t *testing.T) {
	h, b := startHub(t)
	q := &counterQuery{value: 1, topics: []string{MessagesTopic("c1")}}
	s := h.Subscribe(context.Background(), q)
	next(t, s)

	q.set(2)
	b.Publish(bus.NewEvent(CommitNamespace+"message_sent", []string{MessagesTopic("c1")}, nil))

	snap := next(t, s)
	if snap.Value != 2 || snap.Version != 2 {
		t.Errorf("snapshot = %+v, want value 2 version 2", snap)
	}
}

func TestUnrelatedCommitIsIgnored(t *testing.T) {
	h, b := startHub(t)
	q := &counterQuery{value: 1, topics: []string{MessagesTopic("c1")}}
	s := h.Subscribe(context.Background(), q)
	next(t, s)
	before := q.runs.Load()

	q.set(2)
	b.Publish(bus.NewEvent(CommitNamespace+"message_sent", []string{MessagesTopic("c2")}, nil))

	expectNone(t, s)
	if q.runs.Load() != before {
		t.Errorf("query re-ran for an unrelated topic")
	}
}

func TestUnchangedResultIsNotPushed(t *testing.T) {
	h, b := startHub(t)
	q := &counterQuery{value: 1, topics: []string{"t"}}
	s := h.Subscribe(context.Background(), q)
	next(t, s)

	b.Publish(bus.NewEvent(CommitNamespace+"x", []string{"t"}, nil))

	expectNone(t, s)
	if q.runs.Load() < 2 {
		t.Error("query was not re-evaluated")
	}
}

func TestValidUntilTriggersReevaluation(t *testing.T) {
	h, _ := startHub(t)
	q := &counterQuery{value: 1, topics: []string{"t"}, validUntil: time.Now().Add(100 * time.Millisecond)}
	s := h.Subscribe(context.Background(), q)
	next(t, s)

	q.mu.Lock()
	q.value = 0
	q.validUntil = time.Time{}
	q.mu.Unlock()

	snap := next(t, s)
	if snap.Value != 0 {
		t.Errorf("value = %v, want 0 after deadline", snap.Value)
	}
}

func TestErrorsArePushedAndRetried(t *testing.T) {
	h, b := startHub(t)
	q := &counterQuery{err: errors.New("store down")}
	s := h.Subscribe(context.Background(), q)
	if snap := next(t, s); snap.Err == nil {
		t.Fatal("expected error snapshot")
	}

	q.mu.Lock()
	q.err = nil
	q.value = 5
	q.mu.Unlock()
	// A failed first evaluation has no dependency set, so any commit retries it.
	b.Publish(bus.NewEvent(CommitNamespace+"x", []string{"anything"}, nil))

	snap := next(t, s)
	if snap.Err != nil || snap.Value != 5 {
		t.Errorf("snapshot = %+v, want value 5", snap)
	}
}

func TestSlowReaderGetsLatest(t *testing.T) {
	h, b := startHub(t)
	q := &counterQuery{value: 0, topics: []string{"t"}}
	s := h.Subscribe(context.Background(), q)

	for i := 1; i <= 5; i++ {
		q.set(i)
		b.Publish(bus.NewEvent(CommitNamespace+"x", []string{"t"}, nil))
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	snap := next(t, s)
	if snap.Value != 5 {
		t.Errorf("value = %v, want latest 5", snap.Value)
	}
}

func TestContextCancelClosesSubscription(t *testing.T) {
	h, _ := startHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := h.Subscribe(ctx, &counterQuery{value: 1})
	next(t, s)

	cancel()
	select {
	case _, ok := <-s.C():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
	s.Close()
}
