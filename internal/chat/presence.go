package chat

import (
	"context"

	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/store"
)

// SetPresence records whether a user is online and stamps the last-seen time.
func (e *Engine) SetPresence(ctx context.Context, userID string, online bool) error {
	return e.mutate(ctx, "set_presence", func(tx *store.Tx, c *change) error {
		ok, err := tx.SetPresence(ctx, userID, online, e.now().UnixMilli())
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFound("user", userID)
		}
		c.touch(live.UserTopic(userID), live.UsersTopic)
		return nil
	})
}

// OnlineUsers lists the ids of users currently flagged online.
func (e *Engine) OnlineUsers(ctx context.Context) ([]string, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) ([]string, error) {
		return r.tx.OnlineUserIDs(ctx)
	})
}
