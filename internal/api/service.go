package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "relay.v1.Chat"

// ChatServer is the server side of the Chat service.
type ChatServer interface {
	EnsureUser(context.Context, *IdentityRequest) (*UserResponse, error)
	SyncIdentity(context.Context, *IdentityRequest) (*UserResponse, error)
	GetUser(context.Context, *GetUserRequest) (*UserResponse, error)
	SearchUsers(context.Context, *SearchUsersRequest) (*UsersResponse, error)
	SetPresence(context.Context, *SetPresenceRequest) (*Empty, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*Empty, error)

	SendConnectionRequest(context.Context, *SendConnectionRequestRequest) (*RequestIDResponse, error)
	AcceptConnectionRequest(context.Context, *RespondRequest) (*ConversationIDResponse, error)
	RejectConnectionRequest(context.Context, *RespondRequest) (*Empty, error)
	GetConnectionStatus(context.Context, *ConnectionStatusRequest) (*ConnectionStatusResponse, error)
	ListPendingRequests(context.Context, *UserRequest) (*RequestsResponse, error)
	ListSentRequests(context.Context, *UserRequest) (*RequestsResponse, error)

	CreateOrGetDirectConversation(context.Context, *DirectConversationRequest) (*ConversationIDResponse, error)
	CreateGroupConversation(context.Context, *CreateGroupRequest) (*ConversationIDResponse, error)
	AddGroupMembers(context.Context, *AddGroupMembersRequest) (*Empty, error)
	RemoveGroupMember(context.Context, *RemoveGroupMemberRequest) (*Empty, error)
	GetConversation(context.Context, *ConversationRequest) (*ConversationResponse, error)
	ListUserConversations(context.Context, *UserRequest) (*ConversationsResponse, error)

	SendMessage(context.Context, *SendMessageRequest) (*MessageIDResponse, error)
	DeleteMessage(context.Context, *DeleteMessageRequest) (*Empty, error)
	ToggleReaction(context.Context, *ToggleReactionRequest) (*ReactionsResponse, error)
	ListMessages(context.Context, *ConversationRequest) (*MessagesResponse, error)

	SetTyping(context.Context, *SetTypingRequest) (*Empty, error)
	GetActiveTypers(context.Context, *ActiveTypersRequest) (*UsersResponse, error)
	MarkConversationRead(context.Context, *ReadRequest) (*Empty, error)
	GetUnreadCount(context.Context, *ReadRequest) (*UnreadCountResponse, error)

	Watch(*WatchRequest, WatchStream) error
}

// WatchStream is the server end of a Watch call.
type WatchStream interface {
	Send(*WatchEvent) error
	grpc.ServerStream
}

type watchStream struct {
	grpc.ServerStream
}

func (s *watchStream) Send(ev *WatchEvent) error { return s.ServerStream.SendMsg(ev) }

// RegisterChatServer registers srv on s.
func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(ChatServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServer).Watch(in, &watchStream{stream})
}

// ChatServiceDesc describes the Chat service for grpc.Server.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("EnsureUser", ChatServer.EnsureUser),
		unary("SyncIdentity", ChatServer.SyncIdentity),
		unary("GetUser", ChatServer.GetUser),
		unary("SearchUsers", ChatServer.SearchUsers),
		unary("SetPresence", ChatServer.SetPresence),
		unary("Heartbeat", ChatServer.Heartbeat),
		unary("SendConnectionRequest", ChatServer.SendConnectionRequest),
		unary("AcceptConnectionRequest", ChatServer.AcceptConnectionRequest),
		unary("RejectConnectionRequest", ChatServer.RejectConnectionRequest),
		unary("GetConnectionStatus", ChatServer.GetConnectionStatus),
		unary("ListPendingRequests", ChatServer.ListPendingRequests),
		unary("ListSentRequests", ChatServer.ListSentRequests),
		unary("CreateOrGetDirectConversation", ChatServer.CreateOrGetDirectConversation),
		unary("CreateGroupConversation", ChatServer.CreateGroupConversation),
		unary("AddGroupMembers", ChatServer.AddGroupMembers),
		unary("RemoveGroupMember", ChatServer.RemoveGroupMember),
		unary("GetConversation", ChatServer.GetConversation),
		unary("ListUserConversations", ChatServer.ListUserConversations),
		unary("SendMessage", ChatServer.SendMessage),
		unary("DeleteMessage", ChatServer.DeleteMessage),
		unary("ToggleReaction", ChatServer.ToggleReaction),
		unary("ListMessages", ChatServer.ListMessages),
		unary("SetTyping", ChatServer.SetTyping),
		unary("GetActiveTypers", ChatServer.GetActiveTypers),
		unary("MarkConversationRead", ChatServer.MarkConversationRead),
		unary("GetUnreadCount", ChatServer.GetUnreadCount),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	// Descriptor name only; the service is described in Go and encoded as JSON,
	// so no file by this name exists.
	Metadata: "relay/v1/chat.json",
}
