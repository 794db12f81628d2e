package api

import (
	"encoding/json"

	"github.com/matheus3301/relay/internal/chat"
	"github.com/matheus3301/relay/internal/domain"
)

type Empty struct{}

type IdentityRequest struct {
	domain.Identity
}

type UserResponse struct {
	User *domain.User `json:"user"`
}

// GetUserRequest looks a user up by id or, when UserID is empty, by external id.
type GetUserRequest struct {
	UserID     string `json:"userId,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
}

type SearchUsersRequest struct {
	UserID string `json:"userId"`
	Query  string `json:"query"`
}

type UsersResponse struct {
	Users []domain.User `json:"users"`
}

type SetPresenceRequest struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type HeartbeatRequest struct {
	UserID string `json:"userId"`
}

type SendConnectionRequestRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type RequestIDResponse struct {
	RequestID string `json:"requestId"`
}

// RespondRequest accepts or rejects a connection request on behalf of UserID.
type RespondRequest struct {
	RequestID string `json:"requestId"`
	UserID    string `json:"userId"`
}

type ConnectionStatusRequest struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

type ConnectionStatusResponse struct {
	Status *domain.ConnectionStatus `json:"status"`
}

type UserRequest struct {
	UserID string `json:"userId"`
}

type RequestsResponse struct {
	Requests []domain.RequestView `json:"requests"`
}

type DirectConversationRequest struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

type ConversationIDResponse struct {
	ConversationID string `json:"conversationId"`
}

type CreateGroupRequest struct {
	Name      string   `json:"name"`
	FounderID string   `json:"founderId"`
	MemberIDs []string `json:"memberIds"`
}

type AddGroupMembersRequest struct {
	ConversationID string   `json:"conversationId"`
	RequesterID    string   `json:"requesterId"`
	UserIDs        []string `json:"userIds"`
}

type RemoveGroupMemberRequest struct {
	ConversationID string `json:"conversationId"`
	RequesterID    string `json:"requesterId"`
	MemberID       string `json:"memberId"`
}

type ConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type ConversationResponse struct {
	Conversation *domain.ConversationView `json:"conversation"`
}

type ConversationsResponse struct {
	Conversations []domain.ConversationView `json:"conversations"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
}

type MessageIDResponse struct {
	MessageID string `json:"messageId"`
}

type DeleteMessageRequest struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

type ToggleReactionRequest struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
}

type ReactionsResponse struct {
	Reactions domain.Reactions `json:"reactions"`
}

type MessagesResponse struct {
	Messages []domain.MessageView `json:"messages"`
}

type SetTypingRequest struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Typing         bool   `json:"typing"`
}

type ActiveTypersRequest struct {
	ConversationID  string `json:"conversationId"`
	ExcludingUserID string `json:"excludingUserId"`
}

// ReadRequest names one user's view of one conversation.
type ReadRequest struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}

// WatchRequest subscribes to a live query on behalf of UserID.
type WatchRequest struct {
	Query  string         `json:"query"`
	UserID string         `json:"userId"`
	Args   chat.QueryArgs `json:"args"`
}

// WatchEvent is one snapshot of a watched query.
type WatchEvent struct {
	Signature string          `json:"signature"`
	Version   uint64          `json:"version"`
	Value     json.RawMessage `json:"value,omitempty"`
	Error     *ErrorBody      `json:"error,omitempty"`
	AtUnixMs  int64           `json:"at"`
}

// ErrorBody carries a failed evaluation inside a stream.
type ErrorBody struct {
	Kind    domain.Kind `json:"kind,omitempty"`
	Message string      `json:"message"`
}
