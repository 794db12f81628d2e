package chat

import (
	"context"
	"time"

	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/store"
)

// SetTyping refreshes or clears userID's typing signal in a conversation.
func (e *Engine) SetTyping(ctx context.Context, userID, conversationID string, typing bool) error {
	return e.mutate(ctx, "set_typing", func(tx *store.Tx, c *change) error {
		conv, err := mustConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasMember(userID) {
			return domain.Unauthorized(userID, "type in conversation "+conversationID)
		}
		if typing {
			err = tx.UpsertTyping(ctx, &domain.TypingSignal{
				UserID:         userID,
				ConversationID: conversationID,
				UpdatedAt:      e.now().UnixMilli(),
			})
		} else {
			err = tx.DeleteTyping(ctx, userID, conversationID)
		}
		if err != nil {
			return err
		}
		c.touch(live.TypingTopic(conversationID))
		return nil
	})
}

// GetActiveTypers returns the profiles of users whose typing signal in the
// conversation is fresher than the typing window, excluding one user.
func (e *Engine) GetActiveTypers(ctx context.Context, conversationID, excludingUserID string) ([]domain.User, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) ([]domain.User, error) {
		return e.typers(ctx, r, conversationID, excludingUserID)
	})
}

func (e *Engine) typers(ctx context.Context, r *reader, conversationID, excludingUserID string) ([]domain.User, error) {
	r.depend(live.TypingTopic(conversationID))
	window := e.typingWindow.Milliseconds()
	signals, err := r.tx.TypingSince(ctx, conversationID, excludingUserID, r.now.UnixMilli()-window)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(signals))
	for _, s := range signals {
		r.depend(live.UserTopic(s.UserID))
		r.until(time.UnixMilli(s.UpdatedAt + window))
		ids = append(ids, s.UserID)
	}
	return r.tx.GetUsers(ctx, ids)
}
