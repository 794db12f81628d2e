package api

import (
	"context"
	"encoding/json"

	"github.com/matheus3301/relay/internal/chat"
	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/presence"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ChatService implements the Chat gRPC service on top of the engine.
type ChatService struct {
	engine  *chat.Engine
	hub     *live.Hub
	tracker *presence.Tracker
	logger  *zap.Logger
}

// NewChatService creates the service. tracker may be nil, in which case
// heartbeats only mark the user online.
func NewChatService(engine *chat.Engine, hub *live.Hub, tracker *presence.Tracker, logger *zap.Logger) *ChatService {
	if tracker == nil {
		tracker = presence.NewTracker(engine, nil, logger, 0, 0)
	}
	return &ChatService{engine: engine, hub: hub, tracker: tracker, logger: logger}
}

var empty = &Empty{}

func (s *ChatService) EnsureUser(ctx context.Context, req *IdentityRequest) (*UserResponse, error) {
	u, err := s.engine.EnsureUser(ctx, req.Identity)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &UserResponse{User: u}, nil
}

func (s *ChatService) SyncIdentity(ctx context.Context, req *IdentityRequest) (*UserResponse, error) {
	u, err := s.engine.SyncIdentity(ctx, req.Identity)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &UserResponse{User: u}, nil
}

func (s *ChatService) GetUser(ctx context.Context, req *GetUserRequest) (*UserResponse, error) {
	var err error
	resp := &UserResponse{}
	switch {
	case req.UserID != "":
		resp.User, err = s.engine.GetUser(ctx, req.UserID)
	case req.ExternalID != "":
		resp.User, err = s.engine.GetUserByExternalID(ctx, req.ExternalID)
	default:
		return nil, grpcstatus.Error(codes.InvalidArgument, "userId or externalId is required")
	}
	if err != nil {
		return nil, ToStatus(err)
	}
	return resp, nil
}

func (s *ChatService) SearchUsers(ctx context.Context, req *SearchUsersRequest) (*UsersResponse, error) {
	users, err := s.engine.SearchUsers(ctx, req.UserID, req.Query)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &UsersResponse{Users: users}, nil
}

func (s *ChatService) SetPresence(ctx context.Context, req *SetPresenceRequest) (*Empty, error) {
	return empty, ToStatus(s.engine.SetPresence(ctx, req.UserID, req.Online))
}

func (s *ChatService) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*Empty, error) {
	return empty, ToStatus(s.tracker.Heartbeat(ctx, req.UserID))
}

func (s *ChatService) SendConnectionRequest(ctx context.Context, req *SendConnectionRequestRequest) (*RequestIDResponse, error) {
	id, err := s.engine.SendConnectionRequest(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &RequestIDResponse{RequestID: id}, nil
}

func (s *ChatService) AcceptConnectionRequest(ctx context.Context, req *RespondRequest) (*ConversationIDResponse, error) {
	id, err := s.engine.AcceptConnectionRequest(ctx, req.RequestID, req.UserID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &ConversationIDResponse{ConversationID: id}, nil
}

func (s *ChatService) RejectConnectionRequest(ctx context.Context, req *RespondRequest) (*Empty, error) {
	return empty, ToStatus(s.engine.RejectConnectionRequest(ctx, req.RequestID, req.UserID))
}

func (s *ChatService) GetConnectionStatus(ctx context.Context, req *ConnectionStatusRequest) (*ConnectionStatusResponse, error) {
	st, err := s.engine.GetConnectionStatus(ctx, req.UserID, req.OtherUserID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &ConnectionStatusResponse{Status: st}, nil
}

func (s *ChatService) ListPendingRequests(ctx context.Context, req *UserRequest) (*RequestsResponse, error) {
	reqs, err := s.engine.ListPendingRequests(ctx, req.UserID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &RequestsResponse{Requests: reqs}, nil
}

func (s *ChatService) ListSentRequests(ctx context.Context, req *UserRequest) (*RequestsResponse, error) {
	reqs, err := s.engine.ListSentRequests(ctx, req.UserID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &RequestsResponse{Requests: reqs}, nil
}

func (s *ChatService) CreateOrGetDirectConversation(ctx context.Context, req *DirectConversationRequest) (*ConversationIDResponse, error) {
	id, err := s.engine.CreateOrGetDirectConversation(ctx, req.UserID, req.OtherUserID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &ConversationIDResponse{ConversationID: id}, nil
}

func (s *ChatService) CreateGroupConversation(ctx context.Context, req *CreateGroupRequest) (*ConversationIDResponse, error) {
	id, err := s.engine.CreateGroupConversation(ctx, req.Name, req.FounderID, req.MemberIDs)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &ConversationIDResponse{ConversationID: id}, nil
}

func (s *ChatService) AddGroupMembers(ctx context.Context, req *AddGroupMembersRequest) (*Empty, error) {
	return empty, ToStatus(s.engine.AddGroupMembers(ctx, req.ConversationID, req.RequesterID, req.UserIDs))
}

func (s *ChatService) RemoveGroupMember(ctx context.Context, req *RemoveGroupMemberRequest) (*Empty, error) {
	return empty, ToStatus(s.engine.RemoveGroupMember(ctx, req.ConversationID, req.RequesterID, req.MemberID))
}

func (s *ChatService) GetConversation(ctx context.Context, req *ConversationRequest) (*ConversationResponse, error) {
	conv, err := s.engine.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &ConversationResponse{Conversation: conv}, nil
}

func (s *ChatService) ListUserConversations(ctx context.Context, req *UserRequest) (*ConversationsResponse, error) {
	convs, err := s.engine.ListUserConversations(ctx, req.UserID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &ConversationsResponse{Conversations: convs}, nil
}

func (s *ChatService) SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageIDResponse, error) {
	id, err := s.engine.SendMessage(ctx, req.ConversationID, req.SenderID, req.Content)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &MessageIDResponse{MessageID: id}, nil
}

func (s *ChatService) DeleteMessage(ctx context.Context, req *DeleteMessageRequest) (*Empty, error) {
	return empty, ToStatus(s.engine.DeleteMessage(ctx, req.MessageID, req.UserID))
}

func (s *ChatService) ToggleReaction(ctx context.Context, req *ToggleReactionRequest) (*ReactionsResponse, error) {
	r, err := s.engine.ToggleReaction(ctx, req.MessageID, req.UserID, req.Emoji)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &ReactionsResponse{Reactions: r}, nil
}

func (s *ChatService) ListMessages(ctx context.Context, req *ConversationRequest) (*MessagesResponse, error) {
	msgs, err := s.engine.ListMessages(ctx, req.ConversationID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &MessagesResponse{Messages: msgs}, nil
}

func (s *ChatService) SetTyping(ctx context.Context, req *SetTypingRequest) (*Empty, error) {
	return empty, ToStatus(s.engine.SetTyping(ctx, req.UserID, req.ConversationID, req.Typing))
}

func (s *ChatService) GetActiveTypers(ctx context.Context, req *ActiveTypersRequest) (*UsersResponse, error) {
	users, err := s.engine.GetActiveTypers(ctx, req.ConversationID, req.ExcludingUserID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &UsersResponse{Users: users}, nil
}

func (s *ChatService) MarkConversationRead(ctx context.Context, req *ReadRequest) (*Empty, error) {
	return empty, ToStatus(s.engine.MarkConversationRead(ctx, req.UserID, req.ConversationID))
}

func (s *ChatService) GetUnreadCount(ctx context.Context, req *ReadRequest) (*UnreadCountResponse, error) {
	n, err := s.engine.GetUnreadCount(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &UnreadCountResponse{Count: n}, nil
}

// Watch streams snapshots of a live query until the client goes away.
func (s *ChatService) Watch(req *WatchRequest, stream WatchStream) error {
	q, err := s.engine.Query(req.Query, req.UserID, req.Args)
	if err != nil {
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	}

	ctx := stream.Context()
	sub := s.hub.Subscribe(ctx, q)
	defer sub.Close()
	s.logger.Debug("watch opened", zap.String("query", sub.Signature()))

	for snap := range sub.C() {
		ev, err := NewWatchEvent(snap)
		if err != nil {
			return ToStatus(err)
		}
		if err := stream.Send(ev); err != nil {
			return err
		}
	}
	s.logger.Debug("watch closed", zap.String("query", sub.Signature()))
	return nil
}

// NewWatchEvent encodes a snapshot for the wire.
func NewWatchEvent(snap live.Snapshot) (*WatchEvent, error) {
	ev := &WatchEvent{
		Signature: snap.Signature,
		Version:   snap.Version,
		AtUnixMs:  snap.At.UnixMilli(),
	}
	if snap.Err != nil {
		ev.Error = &ErrorBody{Kind: domain.KindOf(snap.Err), Message: snap.Err.Error()}
		return ev, nil
	}
	data, err := json.Marshal(snap.Value)
	if err != nil {
		return nil, err
	}
	ev.Value = data
	return ev, nil
}
