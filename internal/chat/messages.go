package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/store"
	"go.uber.org/zap"
)

type pendingEmail struct {
	email, name string
}

// SendMessage appends a message to a conversation the sender belongs to and
// returns its id. Offline members with an email get a notification queued.
func (e *Engine) SendMessage(ctx context.Context, conversationID, senderID, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", domain.InvalidState("message content is empty")
	}

	var msg *domain.Message
	err := e.mutate(ctx, "send_message", func(tx *store.Tx, c *change) error {
		conv, err := mustConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		sender, err := mustUser(ctx, tx, senderID)
		if err != nil {
			return err
		}
		if !conv.HasMember(senderID) {
			return domain.Unauthorized(senderID, "send to conversation "+conversationID)
		}

		msg = &domain.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			SenderID:       senderID,
			Content:        content,
			CreatedAt:      e.now().UnixMilli(),
			Reactions:      domain.Reactions{},
		}
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		if err := tx.TouchConversation(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
			return err
		}
		c.touch(live.MessagesTopic(conv.ID), live.MessageTopic(msg.ID), live.ConversationTopic(conv.ID))

		if e.notifier == nil {
			return nil
		}
		others := make([]string, 0, len(conv.MemberIDs))
		for _, m := range conv.MemberIDs {
			if m != senderID {
				others = append(others, m)
			}
		}
		members, err := tx.GetUsers(ctx, others)
		if err != nil {
			return err
		}
		var targets []pendingEmail
		for _, m := range members {
			if !m.IsOnline && m.Email != "" {
				targets = append(targets, pendingEmail{email: m.Email, name: m.DisplayName})
			}
		}
		if len(targets) > 0 {
			fromName, preview := sender.DisplayName, domain.Preview(content)
			c.afterCommit(func(ctx context.Context) {
				for _, t := range targets {
					if err := e.notifier.NotifyNewMessage(ctx, t.email, t.name, fromName, preview, conversationID); err != nil {
						e.logger.Warn("enqueue message notification",
							zap.String("conversation", conversationID),
							zap.String("message", msg.ID),
							zap.Error(err))
					}
				}
			})
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// DeleteMessage soft-deletes a message. Only its sender may delete it and
// deleting twice is a no-op.
func (e *Engine) DeleteMessage(ctx context.Context, messageID, userID string) error {
	return e.mutate(ctx, "delete_message", func(tx *store.Tx, c *change) error {
		msg, err := mustMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if msg.SenderID != userID {
			return domain.Unauthorized(userID, "delete message "+messageID)
		}
		if msg.IsDeleted {
			return nil
		}
		if err := tx.MarkMessageDeleted(ctx, msg.ID); err != nil {
			return err
		}
		c.touch(live.MessageTopic(msg.ID), live.MessagesTopic(msg.ConversationID))
		return nil
	})
}

// ToggleReaction adds userID to the reactors of emoji on a message, or removes
// them if already present. It returns the resulting reactions.
func (e *Engine) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (domain.Reactions, error) {
	if emoji == "" {
		return nil, domain.InvalidState("emoji is required")
	}
	var out domain.Reactions
	err := e.mutate(ctx, "toggle_reaction", func(tx *store.Tx, c *change) error {
		msg, err := mustMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		out = msg.Reactions.Toggle(userID, emoji)
		if err := tx.SetReactions(ctx, msg.ID, out); err != nil {
			return err
		}
		c.touch(live.MessageTopic(msg.ID), live.MessagesTopic(msg.ConversationID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func mustMessage(ctx context.Context, tx *store.Tx, id string) (*domain.Message, error) {
	msg, err := tx.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, domain.NotFound("message", id)
	}
	return msg, nil
}

// ListMessages returns the messages of a conversation in creation order with
// their sender profiles. Deleted messages are included and flagged.
func (e *Engine) ListMessages(ctx context.Context, conversationID string) ([]domain.MessageView, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) ([]domain.MessageView, error) {
		return e.messages(ctx, r, conversationID)
	})
}

func (e *Engine) messages(ctx context.Context, r *reader, conversationID string) ([]domain.MessageView, error) {
	r.depend(live.MessagesTopic(conversationID), live.ConversationTopic(conversationID))
	if _, err := mustConversation(ctx, r.tx, conversationID); err != nil {
		return nil, err
	}
	msgs, err := r.tx.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	senders := make(map[string]*domain.User)
	out := make([]domain.MessageView, 0, len(msgs))
	for _, m := range msgs {
		sender, ok := senders[m.SenderID]
		if !ok {
			r.depend(live.UserTopic(m.SenderID))
			if sender, err = r.tx.GetUser(ctx, m.SenderID); err != nil {
				return nil, err
			}
			senders[m.SenderID] = sender
		}
		out = append(out, domain.MessageView{Message: m, Sender: sender})
	}
	return out, nil
}
