package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/relay/internal/chat"
	"github.com/matheus3301/relay/internal/client"
	"github.com/matheus3301/relay/internal/domain"
)

type command struct {
	args     []string // required
	optional string   // trailing optional args, usage only
	help     string
	stream   bool
	run      func(ctx context.Context, c *client.Client, args []string) (any, error)
}

func (cmd command) usage() string {
	parts := make([]string, 0, len(cmd.args)+1)
	for _, a := range cmd.args {
		parts = append(parts, "<"+a+">")
	}
	if cmd.optional != "" {
		parts = append(parts, "["+cmd.optional+"]")
	}
	return strings.Join(parts, " ")
}

func idResult(key string) func(string, error) (any, error) {
	return func(id string, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		return map[string]string{key: id}, nil
	}
}

func done(err error) (any, error) { return nil, err }

func identity(args []string) domain.Identity {
	id := domain.Identity{ExternalID: args[0], DisplayName: args[1]}
	if len(args) > 2 {
		id.Email = args[2]
	}
	if len(args) > 3 {
		id.AvatarRef = args[3]
	}
	return id
}

func onOff(v string) (bool, error) {
	switch v {
	case "on", "online", "true":
		return true, nil
	case "off", "offline", "false":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", v)
}

var commands = map[string]command{
	"ensure-user": {
		args: []string{"externalId", "displayName"}, optional: "email avatar",
		help: "Create or refresh a user from the identity provider and mark it online",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.EnsureUser(ctx, identity(a))
		},
	},
	"sync-identity": {
		args: []string{"externalId", "displayName"}, optional: "email avatar",
		help: "Refresh a user's profile without touching presence",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.SyncIdentity(ctx, identity(a))
		},
	},
	"user": {
		args: []string{"userId"},
		help: "Show a user",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.GetUser(ctx, a[0])
		},
	},
	"user-by-external": {
		args: []string{"externalId"},
		help: "Show a user by identity provider id",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.GetUserByExternalID(ctx, a[0])
		},
	},
	"search": {
		args: []string{"userId"}, optional: "query",
		help: "Search users by name or email",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.SearchUsers(ctx, a[0], strings.Join(a[1:], " "))
		},
	},
	"presence": {
		args: []string{"userId", "on|off"},
		help: "Set a user's presence",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			online, err := onOff(a[1])
			if err != nil {
				return nil, err
			}
			return done(c.SetPresence(ctx, a[0], online))
		},
	},
	"heartbeat": {
		args: []string{"userId"},
		help: "Record a presence heartbeat",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return done(c.Heartbeat(ctx, a[0]))
		},
	},
	"request": {
		args: []string{"senderId", "receiverId"},
		help: "Send a connection request",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return idResult("requestId")(c.SendConnectionRequest(ctx, a[0], a[1]))
		},
	},
	"accept": {
		args: []string{"requestId", "userId"},
		help: "Accept a connection request",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return idResult("conversationId")(c.AcceptConnectionRequest(ctx, a[0], a[1]))
		},
	},
	"reject": {
		args: []string{"requestId", "userId"},
		help: "Reject a connection request",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return done(c.RejectConnectionRequest(ctx, a[0], a[1]))
		},
	},
	"connection": {
		args: []string{"userId", "otherUserId"},
		help: "Show the connection status between two users",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.GetConnectionStatus(ctx, a[0], a[1])
		},
	},
	"pending": {
		args: []string{"userId"},
		help: "List pending requests received by a user",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.ListPendingRequests(ctx, a[0])
		},
	},
	"sent": {
		args: []string{"userId"},
		help: "List requests sent by a user",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.ListSentRequests(ctx, a[0])
		},
	},
	"direct": {
		args: []string{"userId", "otherUserId"},
		help: "Create or get the direct conversation of two users",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return idResult("conversationId")(c.CreateOrGetDirectConversation(ctx, a[0], a[1]))
		},
	},
	"group": {
		args: []string{"founderId", "name"}, optional: "memberId...",
		help: "Create a group conversation",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return idResult("conversationId")(c.CreateGroupConversation(ctx, a[1], a[0], a[2:]))
		},
	},
	"add-members": {
		args: []string{"conversationId", "requesterId", "userId"}, optional: "userId...",
		help: "Add members to a group (admin only)",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return done(c.AddGroupMembers(ctx, a[0], a[1], a[2:]))
		},
	},
	"remove-member": {
		args: []string{"conversationId", "requesterId", "memberId"},
		help: "Remove a member from a group (admin only)",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return done(c.RemoveGroupMember(ctx, a[0], a[1], a[2]))
		},
	},
	"conversation": {
		args: []string{"conversationId"},
		help: "Show a conversation with its members",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.GetConversation(ctx, a[0])
		},
	},
	"conversations": {
		args: []string{"userId"},
		help: "List a user's conversations, most recent first",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.ListUserConversations(ctx, a[0])
		},
	},
	"send": {
		args: []string{"conversationId", "senderId", "content"},
		help: "Send a message",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return idResult("messageId")(c.SendMessage(ctx, a[0], a[1], strings.Join(a[2:], " ")))
		},
	},
	"delete": {
		args: []string{"messageId", "userId"},
		help: "Delete a message (sender only)",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return done(c.DeleteMessage(ctx, a[0], a[1]))
		},
	},
	"react": {
		args: []string{"messageId", "userId", "emoji"},
		help: "Toggle a reaction on a message",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.ToggleReaction(ctx, a[0], a[1], a[2])
		},
	},
	"messages": {
		args: []string{"conversationId"},
		help: "List messages in a conversation",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.ListMessages(ctx, a[0])
		},
	},
	"typing": {
		args: []string{"userId", "conversationId", "on|off"},
		help: "Set or clear a typing signal",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			typing, err := onOff(a[2])
			if err != nil {
				return nil, err
			}
			return done(c.SetTyping(ctx, a[0], a[1], typing))
		},
	},
	"typers": {
		args: []string{"conversationId", "excludingUserId"},
		help: "List users currently typing",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return c.GetActiveTypers(ctx, a[0], a[1])
		},
	},
	"read": {
		args: []string{"userId", "conversationId"},
		help: "Mark a conversation read",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			return done(c.MarkConversationRead(ctx, a[0], a[1]))
		},
	},
	"unread": {
		args: []string{"userId", "conversationId"},
		help: "Count unread messages",
		run: func(ctx context.Context, c *client.Client, a []string) (any, error) {
			n, err := c.GetUnreadCount(ctx, a[0], a[1])
			if err != nil {
				return nil, err
			}
			return map[string]int{"count": n}, nil
		},
	},
	"watch": {
		args: []string{"query", "userId"}, optional: "key=value...",
		help:   "Stream a live query (" + strings.Join(chat.QueryNames, ", ") + ")",
		stream: true,
		run:    watch,
	},
}

// watch prints every snapshot until interrupted. Keys are otherUserId,
// conversationId and search.
func watch(ctx context.Context, c *client.Client, a []string) (any, error) {
	var args chat.QueryArgs
	for _, kv := range a[2:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("bad argument %q: want key=value", kv)
		}
		switch key {
		case "otherUserId":
			args.OtherUserID = value
		case "conversationId":
			args.ConversationID = value
		case "search":
			args.Search = value
		default:
			return nil, fmt.Errorf("unknown watch argument %q", key)
		}
	}

	events, wait, err := c.Watch(ctx, a[0], a[1], args)
	if err != nil {
		return nil, err
	}
	for ev := range events {
		var value any
		if err := client.Decode(ev, &value); err != nil {
			fmt.Printf("# v%d %s: %v\n", ev.Version, ev.Signature, err)
			continue
		}
		fmt.Printf("# v%d %s\n", ev.Version, ev.Signature)
		outputJSON(value)
	}
	if err := wait(); err != nil && ctx.Err() == nil {
		return nil, err
	}
	return nil, nil
}
