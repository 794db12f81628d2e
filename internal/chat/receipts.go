package chat

import (
	"context"

	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/store"
)

// MarkConversationRead moves userID's read cursor for the conversation past
// every message stored so far.
func (e *Engine) MarkConversationRead(ctx context.Context, userID, conversationID string) error {
	return e.mutate(ctx, "mark_read", func(tx *store.Tx, c *change) error {
		conv, err := mustConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasMember(userID) {
			return domain.Unauthorized(userID, "read conversation "+conversationID)
		}
		seq, err := tx.LastMessageSeq(ctx, conversationID)
		if err != nil {
			return err
		}
		err = tx.UpsertReceipt(ctx, &domain.ReadReceipt{
			UserID:         userID,
			ConversationID: conversationID,
			LastReadAt:     e.now().UnixMilli(),
			LastReadSeq:    seq,
		})
		if err != nil {
			return err
		}
		c.touch(live.ReceiptTopic(userID, conversationID))
		return nil
	})
}

// GetUnreadCount counts messages from other members stored after userID's
// read cursor. Without a cursor every message from others counts.
func (e *Engine) GetUnreadCount(ctx context.Context, userID, conversationID string) (int, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) (int, error) {
		return e.unread(ctx, r, userID, conversationID)
	})
}

func (e *Engine) unread(ctx context.Context, r *reader, userID, conversationID string) (int, error) {
	r.depend(live.ReceiptTopic(userID, conversationID), live.MessagesTopic(conversationID))
	if _, err := mustConversation(ctx, r.tx, conversationID); err != nil {
		return 0, err
	}
	var after int64
	receipt, err := r.tx.GetReceipt(ctx, userID, conversationID)
	if err != nil {
		return 0, err
	}
	if receipt != nil {
		after = receipt.LastReadSeq
	}
	return r.tx.CountUnread(ctx, conversationID, userID, after)
}
