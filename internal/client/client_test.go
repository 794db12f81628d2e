package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/relay/internal/api"
	"github.com/matheus3301/relay/internal/bus"
	"github.com/matheus3301/relay/internal/chat"
	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// startServer serves the Chat service on a temp Unix socket and returns a
// connected client.
func startServer(t *testing.T) *Client {
	t.Helper()
	// Short path to stay under the Unix socket path limit.
	dir, err := os.MkdirTemp("/tmp", "relay-client-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	db, err := store.Open(filepath.Join(dir, "relay.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	b := bus.New()
	engine := chat.NewEngine(db, b, nil, logger, chat.Config{})
	hub := live.NewHub(b, logger, nil)
	hub.Start(context.Background())
	t.Cleanup(hub.Stop)

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(api.UnaryInterceptor(logger, nil)),
		grpc.ChainStreamInterceptor(api.StreamInterceptor(logger, nil)),
	)
	api.RegisterChatServer(srv, api.NewChatService(engine, hub, nil, logger))

	socketPath := filepath.Join(dir, "d.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)

	c, err := New(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRoundTrip(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, err := c.EnsureUser(ctx, domain.Identity{ExternalID: "ext|alice", DisplayName: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("EnsureUser error = %v", err)
	}
	bob, err := c.EnsureUser(ctx, domain.Identity{ExternalID: "ext|bob", DisplayName: "Bob"})
	if err != nil {
		t.Fatal(err)
	}

	reqID, err := c.SendConnectionRequest(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	convID, err := c.AcceptConnectionRequest(ctx, reqID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	st, err := c.GetConnectionStatus(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != "connected" || st.ConversationID != convID {
		t.Errorf("status = %+v", st)
	}

	msgID, err := c.SendMessage(ctx, convID, alice.ID, "hello")
	if err != nil {
		t.Fatal(err)
	}
	reactions, err := c.ToggleReaction(ctx, msgID, bob.ID, "🔥")
	if err != nil {
		t.Fatal(err)
	}
	if got := reactions["🔥"]; len(got) != 1 || got[0] != bob.ID {
		t.Errorf("reactions = %v", reactions)
	}

	msgs, err := c.ListMessages(ctx, convID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" || msgs[0].Sender == nil || msgs[0].Sender.DisplayName != "Alice" {
		t.Errorf("messages = %+v", msgs)
	}

	n, err := c.GetUnreadCount(ctx, bob.ID, convID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("unread = %d, want 1", n)
	}
}

func TestErrorKindsSurviveTheWire(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.GetUser(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetUser(missing) err = %v, want not found", err)
	}

	a, _ := c.EnsureUser(ctx, domain.Identity{ExternalID: "a"})
	b, _ := c.EnsureUser(ctx, domain.Identity{ExternalID: "b"})
	convID, err := c.CreateOrGetDirectConversation(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	msgID, _ := c.SendMessage(ctx, convID, a.ID, "mine")
	err = c.DeleteMessage(ctx, msgID, b.ID)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("DeleteMessage by non-sender err = %v, want unauthorized", err)
	}
	_, err = c.SendConnectionRequest(ctx, a.ID, a.ID)
	if domain.KindOf(err) != domain.KindInvalidState {
		t.Errorf("self request err = %v, want invalid state", err)
	}
}

func TestWatchPushesChanges(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, _ := c.EnsureUser(ctx, domain.Identity{ExternalID: "a", DisplayName: "A"})
	b, _ := c.EnsureUser(ctx, domain.Identity{ExternalID: "b", DisplayName: "B"})
	convID, err := c.CreateOrGetDirectConversation(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}

	events, wait, err := c.Watch(ctx, chat.QueryMessages, b.ID, chat.QueryArgs{ConversationID: convID})
	if err != nil {
		t.Fatal(err)
	}

	next := func() []domain.MessageView {
		t.Helper()
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("stream ended: %v", wait())
			}
			var msgs []domain.MessageView
			if err := Decode(ev, &msgs); err != nil {
				t.Fatal(err)
			}
			return msgs
		case <-ctx.Done():
			t.Fatal("timeout waiting for snapshot")
			return nil
		}
	}

	if msgs := next(); len(msgs) != 0 {
		t.Fatalf("initial snapshot = %+v, want empty", msgs)
	}
	if _, err := c.SendMessage(ctx, convID, a.ID, "live"); err != nil {
		t.Fatal(err)
	}
	msgs := next()
	if len(msgs) != 1 || msgs[0].Content != "live" {
		t.Fatalf("snapshot after send = %+v", msgs)
	}

	// Server-stream errors surface on the first receive.
	evs, wait, err := c.Watch(ctx, "bogus", b.ID, chat.QueryArgs{})
	if err == nil {
		for range evs {
		}
		err = wait()
	}
	if domain.KindOf(err) != "" || err == nil {
		t.Errorf("unknown query err = %v, want invalid argument", err)
	}
}
