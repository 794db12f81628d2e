package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/store"
)

const minGroupMembers = 2

// CreateOrGetDirectConversation returns the direct conversation between the
// two users, creating it if none exists.
func (e *Engine) CreateOrGetDirectConversation(ctx context.Context, userA, userB string) (string, error) {
	if userA == userB {
		return "", domain.InvalidState("a direct conversation needs two distinct users")
	}
	var id string
	err := e.mutate(ctx, "create_direct_conversation", func(tx *store.Tx, c *change) error {
		for _, u := range []string{userA, userB} {
			if _, err := mustUser(ctx, tx, u); err != nil {
				return err
			}
		}
		conv, err := e.findOrCreateDirect(ctx, tx, c, userA, userB)
		if err != nil {
			return err
		}
		id = conv.ID
		return nil
	})
	return id, err
}

func (e *Engine) findOrCreateDirect(ctx context.Context, tx *store.Tx, c *change, userA, userB string) (*domain.Conversation, error) {
	conv, err := tx.FindDirect(ctx, userA, userB)
	if err != nil || conv != nil {
		return conv, err
	}
	now := e.now().UnixMilli()
	conv = &domain.Conversation{
		ID:             uuid.NewString(),
		Kind:           domain.KindDirect,
		MemberIDs:      []string{userA, userB},
		LastActivityAt: &now,
		CreatedAt:      now,
	}
	if err := tx.InsertConversation(ctx, conv); err != nil {
		return nil, err
	}
	c.touch(live.ConversationTopic(conv.ID), live.MemberTopic(userA), live.MemberTopic(userB))
	return conv, nil
}

// CreateGroupConversation creates a named group administered by founderID.
// The founder is always a member; duplicate ids are collapsed.
func (e *Engine) CreateGroupConversation(ctx context.Context, name, founderID string, memberIDs []string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.InvalidState("group name is required")
	}
	members := dedupe(append([]string{founderID}, memberIDs...))
	if len(members) < minGroupMembers {
		return "", domain.InvalidState("a group needs at least %d members", minGroupMembers)
	}

	var id string
	err := e.mutate(ctx, "create_group_conversation", func(tx *store.Tx, c *change) error {
		for _, m := range members {
			if _, err := mustUser(ctx, tx, m); err != nil {
				return err
			}
		}
		now := e.now().UnixMilli()
		conv := &domain.Conversation{
			ID:             uuid.NewString(),
			Kind:           domain.KindGroup,
			Name:           name,
			MemberIDs:      members,
			AdminID:        founderID,
			LastActivityAt: &now,
			CreatedAt:      now,
		}
		if err := tx.InsertConversation(ctx, conv); err != nil {
			return err
		}
		c.touch(live.ConversationTopic(conv.ID))
		for _, m := range members {
			c.touch(live.MemberTopic(m))
		}
		id = conv.ID
		return nil
	})
	return id, err
}

// AddGroupMembers appends users to a group. Only the admin may do this; users
// already in the group are skipped.
func (e *Engine) AddGroupMembers(ctx context.Context, conversationID, requesterID string, userIDs []string) error {
	return e.mutate(ctx, "add_group_members", func(tx *store.Tx, c *change) error {
		conv, err := adminGroup(ctx, tx, conversationID, requesterID, "add members to")
		if err != nil {
			return err
		}
		var added []string
		for _, id := range dedupe(userIDs) {
			if conv.HasMember(id) {
				continue
			}
			if _, err := mustUser(ctx, tx, id); err != nil {
				return err
			}
			added = append(added, id)
		}
		if len(added) == 0 {
			return nil
		}
		if err := tx.AddMembers(ctx, conv.ID, added); err != nil {
			return err
		}
		c.touch(live.ConversationTopic(conv.ID))
		for _, id := range added {
			c.touch(live.MemberTopic(id))
		}
		return nil
	})
}

// RemoveGroupMember removes one member from a group. The admin cannot be
// removed and a group never drops below two members.
func (e *Engine) RemoveGroupMember(ctx context.Context, conversationID, requesterID, memberID string) error {
	return e.mutate(ctx, "remove_group_member", func(tx *store.Tx, c *change) error {
		conv, err := adminGroup(ctx, tx, conversationID, requesterID, "remove members from")
		if err != nil {
			return err
		}
		if memberID == conv.AdminID {
			return domain.InvalidState("the group admin cannot be removed")
		}
		if !conv.HasMember(memberID) {
			return nil
		}
		if len(conv.MemberIDs)-1 < minGroupMembers {
			return domain.InvalidState("a group needs at least %d members", minGroupMembers)
		}
		if err := tx.RemoveMember(ctx, conv.ID, memberID); err != nil {
			return err
		}
		if err := tx.DeleteTyping(ctx, memberID, conv.ID); err != nil {
			return err
		}
		c.touch(live.ConversationTopic(conv.ID), live.MemberTopic(memberID), live.TypingTopic(conv.ID))
		return nil
	})
}

func adminGroup(ctx context.Context, tx *store.Tx, conversationID, requesterID, op string) (*domain.Conversation, error) {
	conv, err := mustConversation(ctx, tx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Kind != domain.KindGroup {
		return nil, domain.InvalidState("conversation %s is not a group", conversationID)
	}
	if conv.AdminID != requesterID {
		return nil, domain.Unauthorized(requesterID, op+" group "+conversationID)
	}
	return conv, nil
}

func mustConversation(ctx context.Context, tx *store.Tx, id string) (*domain.Conversation, error) {
	conv, err := tx.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, domain.NotFound("conversation", id)
	}
	return conv, nil
}

// GetConversation resolves one conversation with its member profiles and last
// message.
func (e *Engine) GetConversation(ctx context.Context, conversationID string) (*domain.ConversationView, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) (*domain.ConversationView, error) {
		return e.conversation(ctx, r, conversationID)
	})
}

func (e *Engine) conversation(ctx context.Context, r *reader, conversationID string) (*domain.ConversationView, error) {
	r.depend(live.ConversationTopic(conversationID))
	conv, err := mustConversation(ctx, r.tx, conversationID)
	if err != nil {
		return nil, err
	}
	v, err := conversationView(ctx, r, conv)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListUserConversations lists the conversations userID belongs to, most
// recently active first.
func (e *Engine) ListUserConversations(ctx context.Context, userID string) ([]domain.ConversationView, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) ([]domain.ConversationView, error) {
		return e.conversations(ctx, r, userID)
	})
}

func (e *Engine) conversations(ctx context.Context, r *reader, userID string) ([]domain.ConversationView, error) {
	r.depend(live.MemberTopic(userID))
	convs, err := r.tx.ConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ConversationView, 0, len(convs))
	for i := range convs {
		r.depend(live.ConversationTopic(convs[i].ID))
		v, err := conversationView(ctx, r, &convs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func conversationView(ctx context.Context, r *reader, conv *domain.Conversation) (domain.ConversationView, error) {
	for _, m := range conv.MemberIDs {
		r.depend(live.UserTopic(m))
	}
	members, err := r.tx.GetUsers(ctx, conv.MemberIDs)
	if err != nil {
		return domain.ConversationView{}, err
	}
	v := domain.ConversationView{Conversation: *conv, Members: members}
	if conv.LastMessageID != "" {
		r.depend(live.MessageTopic(conv.LastMessageID))
		if v.LastMessage, err = r.tx.GetMessage(ctx, conv.LastMessageID); err != nil {
			return domain.ConversationView{}, err
		}
	}
	return v, nil
}

// dedupe drops empty and repeated ids, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
