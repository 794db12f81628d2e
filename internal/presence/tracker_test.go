package presence

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/relay/internal/domain"
	"go.uber.org/zap"
)

type memoryBeats struct {
	mu     sync.Mutex
	now    func() time.Time
	expiry map[string]time.Time
}

func (m *memoryBeats) Beat(_ context.Context, userID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry[userID] = m.now().Add(ttl)
	return nil
}

func (m *memoryBeats) Alive(_ context.Context, userIDs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		out[id] = m.now().Before(m.expiry[id])
	}
	return out, nil
}

func (m *memoryBeats) Close() error { return nil }

type fakeDirectory struct {
	mu    sync.Mutex
	now   func() time.Time
	users map[string]*domain.User
	sets  int
}

func (f *fakeDirectory) GetUser(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, domain.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeDirectory) SetPresence(_ context.Context, id string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.NotFound("user", id)
	}
	u.IsOnline, u.LastSeenAt = online, f.now().UnixMilli()
	f.sets++
	return nil
}

func (f *fakeDirectory) OnlineUsers(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, u := range f.users {
		if u.IsOnline {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func TestReapStaleUsers(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return now }
	dir := &fakeDirectory{now: clock, users: map[string]*domain.User{
		"a": {ID: "a", IsOnline: true, LastSeenAt: now.UnixMilli()},
		"b": {ID: "b", IsOnline: true, LastSeenAt: now.UnixMilli()},
		"c": {ID: "c", IsOnline: false},
	}}
	beats := &memoryBeats{now: clock, expiry: map[string]time.Time{}}
	tr := NewTracker(dir, beats, zap.NewNop(), time.Minute, time.Hour)
	tr.now = clock

	ctx := context.Background()
	if err := tr.Heartbeat(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	// b just logged in, so it keeps its grace period.
	reaped, err := tr.Reap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(reaped) != 0 {
		t.Fatalf("reaped %v inside the grace period", reaped)
	}

	now = now.Add(90 * time.Second)
	if err := tr.Heartbeat(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	reaped, err = tr.Reap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(reaped) != 1 || reaped[0] != "b" {
		t.Fatalf("reaped = %v, want [b]", reaped)
	}
	if u, _ := dir.GetUser(ctx, "b"); u.IsOnline {
		t.Error("b still online after reap")
	}
	if u, _ := dir.GetUser(ctx, "a"); !u.IsOnline {
		t.Error("a reaped despite heartbeat")
	}
}

func TestHeartbeatMarksOnline(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return now }
	dir := &fakeDirectory{now: clock, users: map[string]*domain.User{"a": {ID: "a"}}}
	tr := NewTracker(dir, nil, zap.NewNop(), 0, 0)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := tr.Heartbeat(ctx, "a"); err != nil {
			t.Fatal(err)
		}
	}
	if u, _ := dir.GetUser(ctx, "a"); !u.IsOnline {
		t.Fatal("heartbeat did not mark user online")
	}
	if dir.sets != 1 {
		t.Errorf("SetPresence called %d times, want 1", dir.sets)
	}
	if err := tr.Heartbeat(ctx, "ghost"); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("err = %v, want not found", err)
	}

	reaped, err := tr.Reap(ctx)
	if err != nil || reaped != nil {
		t.Errorf("Reap without heartbeat store = %v, %v", reaped, err)
	}
}
