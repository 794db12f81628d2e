package domain

import "time"

// User is a local profile bound to one external identity.
type User struct {
	ID          string `json:"id"`
	ExternalID  string `json:"externalId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarRef   string `json:"avatarRef,omitempty"`
	IsOnline    bool   `json:"isOnline"`
	LastSeenAt  int64  `json:"lastSeenAt"`
}

// Identity is what the identity provider supplies on session start.
type Identity struct {
	ExternalID  string `json:"externalId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// ConnectionRequest is the time-boxed handshake gating direct conversations.
type ConnectionRequest struct {
	ID         string        `json:"id"`
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId"`
	Status     RequestStatus `json:"status"`
	CreatedAt  int64         `json:"createdAt"`
	ExpiresAt  int64         `json:"expiresAt"`
}

// EffectiveStatus reports expired for a pending request observed past its deadline.
func (r *ConnectionRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.Status == RequestPending && now.UnixMilli() > r.ExpiresAt {
		return RequestExpired
	}
	return r.Status
}

// Active reports whether the request still blocks a new request for the pair.
func (r *ConnectionRequest) Active(now time.Time) bool {
	s := r.EffectiveStatus(now)
	return s == RequestPending || s == RequestAccepted
}

// RequestView is a request resolved with the profile of the other party.
type RequestView struct {
	ConnectionRequest
	Counterpart *User `json:"counterpart,omitempty"`
}

type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// Conversation is a direct or group thread.
type Conversation struct {
	ID             string           `json:"id"`
	Kind           ConversationKind `json:"kind"`
	Name           string           `json:"name,omitempty"`
	MemberIDs      []string         `json:"memberIds"`
	AdminID        string           `json:"adminId,omitempty"`
	LastMessageID  string           `json:"lastMessageId,omitempty"`
	LastActivityAt *int64           `json:"lastActivityAt,omitempty"`
	CreatedAt      int64            `json:"createdAt"`
}

// HasMember reports whether userID belongs to the conversation.
func (c *Conversation) HasMember(userID string) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ConversationView is a conversation resolved with member profiles.
type ConversationView struct {
	Conversation
	Members     []User   `json:"members"`
	LastMessage *Message `json:"lastMessage,omitempty"`
}

// Message belongs to exactly one conversation and is never physically removed.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      int64     `json:"createdAt"`
	IsDeleted      bool      `json:"isDeleted"`
	Reactions      Reactions `json:"reactions"`
}

// MessageView is a message resolved with its sender profile.
type MessageView struct {
	Message
	Sender *User `json:"sender,omitempty"`
}

// ReadReceipt is a per-user read cursor for one conversation. LastReadSeq is
// the insertion sequence of the newest message seen when the cursor moved.
type ReadReceipt struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	LastReadAt     int64  `json:"lastReadAt"`
	LastReadSeq    int64  `json:"lastReadSeq"`
}

// TypingSignal marks a user as typing while fresh.
type TypingSignal struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// ConnectionState is the answer of a connection status lookup.
type ConnectionState string

const (
	StateNone      ConnectionState = "none"
	StateConnected ConnectionState = "connected"
)

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// ConnectionStatus describes how two users relate.
type ConnectionStatus struct {
	// Status is "connected", "none", or a request status.
	Status         string    `json:"status"`
	ConversationID string    `json:"conversationId,omitempty"`
	RequestID      string    `json:"requestId,omitempty"`
	Direction      Direction `json:"direction,omitempty"`
}
