// Package client is the typed gRPC client of the relay daemon.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/relay/internal/api"
	"github.com/matheus3301/relay/internal/chat"
	"github.com/matheus3301/relay/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, "/"+api.ServiceName+"/"+method, req, out); err != nil {
		return nil, api.FromStatus(err)
	}
	return out, nil
}

func (c *Client) EnsureUser(ctx context.Context, id domain.Identity) (*domain.User, error) {
	resp, err := invoke[api.UserResponse](ctx, c, "EnsureUser", &api.IdentityRequest{Identity: id})
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) SyncIdentity(ctx context.Context, id domain.Identity) (*domain.User, error) {
	resp, err := invoke[api.UserResponse](ctx, c, "SyncIdentity", &api.IdentityRequest{Identity: id})
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	resp, err := invoke[api.UserResponse](ctx, c, "GetUser", &api.GetUserRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	resp, err := invoke[api.UserResponse](ctx, c, "GetUser", &api.GetUserRequest{ExternalID: externalID})
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) SearchUsers(ctx context.Context, userID, query string) ([]domain.User, error) {
	resp, err := invoke[api.UsersResponse](ctx, c, "SearchUsers", &api.SearchUsersRequest{UserID: userID, Query: query})
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) SetPresence(ctx context.Context, userID string, online bool) error {
	_, err := invoke[api.Empty](ctx, c, "SetPresence", &api.SetPresenceRequest{UserID: userID, Online: online})
	return err
}

func (c *Client) Heartbeat(ctx context.Context, userID string) error {
	_, err := invoke[api.Empty](ctx, c, "Heartbeat", &api.HeartbeatRequest{UserID: userID})
	return err
}

func (c *Client) SendConnectionRequest(ctx context.Context, senderID, receiverID string) (string, error) {
	resp, err := invoke[api.RequestIDResponse](ctx, c, "SendConnectionRequest", &api.SendConnectionRequestRequest{SenderID: senderID, ReceiverID: receiverID})
	if err != nil {
		return "", err
	}
	return resp.RequestID, nil
}

func (c *Client) AcceptConnectionRequest(ctx context.Context, requestID, userID string) (string, error) {
	resp, err := invoke[api.ConversationIDResponse](ctx, c, "AcceptConnectionRequest", &api.RespondRequest{RequestID: requestID, UserID: userID})
	if err != nil {
		return "", err
	}
	return resp.ConversationID, nil
}

func (c *Client) RejectConnectionRequest(ctx context.Context, requestID, userID string) error {
	_, err := invoke[api.Empty](ctx, c, "RejectConnectionRequest", &api.RespondRequest{RequestID: requestID, UserID: userID})
	return err
}

func (c *Client) GetConnectionStatus(ctx context.Context, userID, otherUserID string) (*domain.ConnectionStatus, error) {
	resp, err := invoke[api.ConnectionStatusResponse](ctx, c, "GetConnectionStatus", &api.ConnectionStatusRequest{UserID: userID, OtherUserID: otherUserID})
	if err != nil {
		return nil, err
	}
	return resp.Status, nil
}

func (c *Client) ListPendingRequests(ctx context.Context, userID string) ([]domain.RequestView, error) {
	resp, err := invoke[api.RequestsResponse](ctx, c, "ListPendingRequests", &api.UserRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

func (c *Client) ListSentRequests(ctx context.Context, userID string) ([]domain.RequestView, error) {
	resp, err := invoke[api.RequestsResponse](ctx, c, "ListSentRequests", &api.UserRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

func (c *Client) CreateOrGetDirectConversation(ctx context.Context, userID, otherUserID string) (string, error) {
	resp, err := invoke[api.ConversationIDResponse](ctx, c, "CreateOrGetDirectConversation", &api.DirectConversationRequest{UserID: userID, OtherUserID: otherUserID})
	if err != nil {
		return "", err
	}
	return resp.ConversationID, nil
}

func (c *Client) CreateGroupConversation(ctx context.Context, name, founderID string, memberIDs []string) (string, error) {
	resp, err := invoke[api.ConversationIDResponse](ctx, c, "CreateGroupConversation", &api.CreateGroupRequest{Name: name, FounderID: founderID, MemberIDs: memberIDs})
	if err != nil {
		return "", err
	}
	return resp.ConversationID, nil
}

func (c *Client) AddGroupMembers(ctx context.Context, conversationID, requesterID string, userIDs []string) error {
	_, err := invoke[api.Empty](ctx, c, "AddGroupMembers", &api.AddGroupMembersRequest{ConversationID: conversationID, RequesterID: requesterID, UserIDs: userIDs})
	return err
}

func (c *Client) RemoveGroupMember(ctx context.Context, conversationID, requesterID, memberID string) error {
	_, err := invoke[api.Empty](ctx, c, "RemoveGroupMember", &api.RemoveGroupMemberRequest{ConversationID: conversationID, RequesterID: requesterID, MemberID: memberID})
	return err
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (*domain.ConversationView, error) {
	resp, err := invoke[api.ConversationResponse](ctx, c, "GetConversation", &api.ConversationRequest{ConversationID: conversationID})
	if err != nil {
		return nil, err
	}
	return resp.Conversation, nil
}

func (c *Client) ListUserConversations(ctx context.Context, userID string) ([]domain.ConversationView, error) {
	resp, err := invoke[api.ConversationsResponse](ctx, c, "ListUserConversations", &api.UserRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID, senderID, content string) (string, error) {
	resp, err := invoke[api.MessageIDResponse](ctx, c, "SendMessage", &api.SendMessageRequest{ConversationID: conversationID, SenderID: senderID, Content: content})
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID, userID string) error {
	_, err := invoke[api.Empty](ctx, c, "DeleteMessage", &api.DeleteMessageRequest{MessageID: messageID, UserID: userID})
	return err
}

func (c *Client) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (domain.Reactions, error) {
	resp, err := invoke[api.ReactionsResponse](ctx, c, "ToggleReaction", &api.ToggleReactionRequest{MessageID: messageID, UserID: userID, Emoji: emoji})
	if err != nil {
		return nil, err
	}
	return resp.Reactions, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]domain.MessageView, error) {
	resp, err := invoke[api.MessagesResponse](ctx, c, "ListMessages", &api.ConversationRequest{ConversationID: conversationID})
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) SetTyping(ctx context.Context, userID, conversationID string, typing bool) error {
	_, err := invoke[api.Empty](ctx, c, "SetTyping", &api.SetTypingRequest{UserID: userID, ConversationID: conversationID, Typing: typing})
	return err
}

func (c *Client) GetActiveTypers(ctx context.Context, conversationID, excludingUserID string) ([]domain.User, error) {
	resp, err := invoke[api.UsersResponse](ctx, c, "GetActiveTypers", &api.ActiveTypersRequest{ConversationID: conversationID, ExcludingUserID: excludingUserID})
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) MarkConversationRead(ctx context.Context, userID, conversationID string) error {
	_, err := invoke[api.Empty](ctx, c, "MarkConversationRead", &api.ReadRequest{UserID: userID, ConversationID: conversationID})
	return err
}

func (c *Client) GetUnreadCount(ctx context.Context, userID, conversationID string) (int, error) {
	resp, err := invoke[api.UnreadCountResponse](ctx, c, "GetUnreadCount", &api.ReadRequest{UserID: userID, ConversationID: conversationID})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

var watchDesc = &grpc.StreamDesc{StreamName: "Watch", ServerStreams: true}

// Watch subscribes to a live query. The returned channel is closed when the
// stream ends; the error function reports why once it has.
func (c *Client) Watch(ctx context.Context, query, userID string, args chat.QueryArgs) (<-chan *api.WatchEvent, func() error, error) {
	stream, err := c.conn.NewStream(ctx, watchDesc, "/"+api.ServiceName+"/Watch")
	if err != nil {
		return nil, nil, api.FromStatus(err)
	}
	if err := stream.SendMsg(&api.WatchRequest{Query: query, UserID: userID, Args: args}); err != nil {
		return nil, nil, api.FromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, api.FromStatus(err)
	}

	events := make(chan *api.WatchEvent)
	var streamErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(events)
		for {
			ev := new(api.WatchEvent)
			if err := stream.RecvMsg(ev); err != nil {
				if err != io.EOF {
					streamErr = api.FromStatus(err)
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, func() error { <-done; return streamErr }, nil
}

// Decode unmarshals the value of a watch event into v.
func Decode(ev *api.WatchEvent, v any) error {
	if ev.Error != nil {
		if ev.Error.Kind == "" {
			return errors.New(ev.Error.Message)
		}
		return &domain.Error{Kind: ev.Error.Kind, Reason: ev.Error.Message}
	}
	return json.Unmarshal(ev.Value, v)
}
