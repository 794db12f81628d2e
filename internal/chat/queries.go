package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/live"
)

// Live query names accepted by Query.
const (
	QueryConversations    = "conversations"
	QueryConversation     = "conversation"
	QueryMessages         = "messages"
	QueryTypers           = "typers"
	QueryUnread           = "unread"
	QueryConnectionStatus = "connectionStatus"
	QueryPendingRequests  = "pendingRequests"
	QuerySentRequests     = "sentRequests"
	QuerySearchUsers      = "searchUsers"
)

// QueryNames lists every watchable query.
var QueryNames = []string{
	QueryConversations, QueryConversation, QueryMessages, QueryTypers, QueryUnread,
	QueryConnectionStatus, QueryPendingRequests, QuerySentRequests, QuerySearchUsers,
}

// QueryArgs carries the arguments of a watchable query. Which fields matter
// depends on the query.
type QueryArgs struct {
	UserID         string `json:"userId,omitempty"`
	OtherUserID    string `json:"otherUserId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Search         string `json:"search,omitempty"`
}

func signature(name string, args ...string) string {
	return name + "(" + strings.Join(args, ",") + ")"
}

// Query builds the live query called name. viewerID is the authenticated user
// the query runs for; arguments naming another user are taken from args.
// Conversation-scoped queries yield an unauthorized error for non-members.
func (e *Engine) Query(name, viewerID string, args QueryArgs) (live.Query, error) {
	need := func(field, v string) error {
		if v == "" {
			return fmt.Errorf("query %s: %s is required", name, field)
		}
		return nil
	}
	if err := need("user", viewerID); err != nil {
		return nil, err
	}

	switch name {
	case QueryConversations:
		return e.ConversationsQuery(viewerID), nil
	case QueryConversation:
		if err := need("conversationId", args.ConversationID); err != nil {
			return nil, err
		}
		return e.ConversationQuery(viewerID, args.ConversationID), nil
	case QueryMessages:
		if err := need("conversationId", args.ConversationID); err != nil {
			return nil, err
		}
		return e.MessagesQuery(viewerID, args.ConversationID), nil
	case QueryTypers:
		if err := need("conversationId", args.ConversationID); err != nil {
			return nil, err
		}
		return e.TypersQuery(viewerID, args.ConversationID), nil
	case QueryUnread:
		if err := need("conversationId", args.ConversationID); err != nil {
			return nil, err
		}
		return e.UnreadQuery(viewerID, args.ConversationID), nil
	case QueryConnectionStatus:
		if err := need("otherUserId", args.OtherUserID); err != nil {
			return nil, err
		}
		return e.ConnectionStatusQuery(viewerID, args.OtherUserID), nil
	case QueryPendingRequests:
		return e.PendingRequestsQuery(viewerID), nil
	case QuerySentRequests:
		return e.SentRequestsQuery(viewerID), nil
	case QuerySearchUsers:
		return e.SearchUsersQuery(viewerID, args.Search), nil
	}
	return nil, fmt.Errorf("unknown query %q", name)
}

// ConversationsQuery watches ListUserConversations.
func (e *Engine) ConversationsQuery(userID string) live.Query {
	return query(e, signature(QueryConversations, userID), func(ctx context.Context, r *reader) ([]domain.ConversationView, error) {
		return e.conversations(ctx, r, userID)
	})
}

// ConversationQuery watches GetConversation for a member of the conversation.
func (e *Engine) ConversationQuery(viewerID, conversationID string) live.Query {
	return query(e, signature(QueryConversation, viewerID, conversationID), func(ctx context.Context, r *reader) (*domain.ConversationView, error) {
		if err := e.watchable(ctx, r, viewerID, conversationID); err != nil {
			return nil, err
		}
		return e.conversation(ctx, r, conversationID)
	})
}

// MessagesQuery watches ListMessages for a member of the conversation.
func (e *Engine) MessagesQuery(viewerID, conversationID string) live.Query {
	return query(e, signature(QueryMessages, viewerID, conversationID), func(ctx context.Context, r *reader) ([]domain.MessageView, error) {
		if err := e.watchable(ctx, r, viewerID, conversationID); err != nil {
			return nil, err
		}
		return e.messages(ctx, r, conversationID)
	})
}

// TypersQuery watches GetActiveTypers excluding the viewer, who must be a
// member. The result expires as signals go stale.
func (e *Engine) TypersQuery(viewerID, conversationID string) live.Query {
	return query(e, signature(QueryTypers, viewerID, conversationID), func(ctx context.Context, r *reader) ([]domain.User, error) {
		if err := e.watchable(ctx, r, viewerID, conversationID); err != nil {
			return nil, err
		}
		return e.typers(ctx, r, conversationID, viewerID)
	})
}

// UnreadQuery watches GetUnreadCount for a member of the conversation.
func (e *Engine) UnreadQuery(userID, conversationID string) live.Query {
	return query(e, signature(QueryUnread, userID, conversationID), func(ctx context.Context, r *reader) (int, error) {
		if err := e.watchable(ctx, r, userID, conversationID); err != nil {
			return 0, err
		}
		return e.unread(ctx, r, userID, conversationID)
	})
}

// watchable fails with an unauthorized error unless viewerID belongs to the
// conversation. The query re-runs when membership changes.
func (e *Engine) watchable(ctx context.Context, r *reader, viewerID, conversationID string) error {
	r.depend(live.ConversationTopic(conversationID))
	conv, err := mustConversation(ctx, r.tx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasMember(viewerID) {
		return domain.Unauthorized(viewerID, "watch conversation "+conversationID)
	}
	return nil
}

// ConnectionStatusQuery watches GetConnectionStatus.
func (e *Engine) ConnectionStatusQuery(userA, userB string) live.Query {
	return query(e, signature(QueryConnectionStatus, userA, userB), func(ctx context.Context, r *reader) (*domain.ConnectionStatus, error) {
		return e.connectionStatus(ctx, r, userA, userB)
	})
}

// PendingRequestsQuery watches ListPendingRequests.
func (e *Engine) PendingRequestsQuery(userID string) live.Query {
	return query(e, signature(QueryPendingRequests, userID), func(ctx context.Context, r *reader) ([]domain.RequestView, error) {
		return e.pendingRequests(ctx, r, userID)
	})
}

// SentRequestsQuery watches ListSentRequests.
func (e *Engine) SentRequestsQuery(userID string) live.Query {
	return query(e, signature(QuerySentRequests, userID), func(ctx context.Context, r *reader) ([]domain.RequestView, error) {
		return e.sentRequests(ctx, r, userID)
	})
}

// SearchUsersQuery watches SearchUsers.
func (e *Engine) SearchUsersQuery(userID, search string) live.Query {
	search = strings.TrimSpace(search)
	return query(e, signature(QuerySearchUsers, userID, search), func(ctx context.Context, r *reader) ([]domain.User, error) {
		return e.searchUsers(ctx, r, userID, search)
	})
}
