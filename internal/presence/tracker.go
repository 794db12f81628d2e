package presence

import (
	"context"
	"time"

	"github.com/matheus3301/relay/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultTTL      = 60 * time.Second
	DefaultInterval = 15 * time.Second
)

// Directory is the slice of the chat engine the tracker needs.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	SetPresence(ctx context.Context, userID string, online bool) error
	OnlineUsers(ctx context.Context) ([]string, error)
}

// Tracker records heartbeats and reaps users whose heartbeat lapsed.
type Tracker struct {
	dir      Directory
	beats    Heartbeats
	logger   *zap.Logger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a tracker. beats may be nil, in which case heartbeats
// only mark the user online and nothing is ever reaped.
func NewTracker(dir Directory, beats Heartbeats, logger *zap.Logger, ttl, interval time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Tracker{dir: dir, beats: beats, logger: logger, ttl: ttl, interval: interval, now: time.Now}
}

// Heartbeat refreshes userID's liveness and marks the user online if needed.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	u, err := t.dir.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if t.beats != nil {
		if err := t.beats.Beat(ctx, userID, t.ttl); err != nil {
			return err
		}
	}
	if u.IsOnline {
		return nil
	}
	return t.dir.SetPresence(ctx, userID, true)
}

// Start launches the reaper when a heartbeat store is configured.
func (t *Tracker) Start(ctx context.Context) {
	if t.beats == nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go t.loop(ctx)
}

func (t *Tracker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (t *Tracker) loop(ctx context.Context) {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := t.Reap(ctx); err != nil && ctx.Err() == nil {
				t.logger.Warn("presence reap failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Reap marks offline every online user without a live heartbeat whose last
// activity is older than the heartbeat TTL. It returns the reaped ids.
func (t *Tracker) Reap(ctx context.Context) ([]string, error) {
	if t.beats == nil {
		return nil, nil
	}
	online, err := t.dir.OnlineUsers(ctx)
	if err != nil {
		return nil, err
	}
	alive, err := t.beats.Alive(ctx, online)
	if err != nil {
		return nil, err
	}

	cutoff := t.now().Add(-t.ttl).UnixMilli()
	var reaped []string
	for _, id := range online {
		if alive[id] {
			continue
		}
		u, err := t.dir.GetUser(ctx, id)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				continue
			}
			return reaped, err
		}
		if u.LastSeenAt > cutoff {
			continue
		}
		if err := t.dir.SetPresence(ctx, id, false); err != nil {
			return reaped, err
		}
		reaped = append(reaped, id)
	}
	if len(reaped) > 0 {
		t.logger.Info("marked stale users offline", zap.Int("count", len(reaped)))
	}
	return reaped, nil
}

// Close releases the heartbeat store.
func (t *Tracker) Close() error {
	if t.beats == nil {
		return nil
	}
	return t.beats.Close()
}
