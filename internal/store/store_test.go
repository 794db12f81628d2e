package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/matheus3301/relay/internal/domain"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustUpdate(t *testing.T, db *DB, fn func(*Tx) error) {
	t.Helper()
	if err := db.Update(context.Background(), fn); err != nil {
		t.Fatal(err)
	}
}

func seedUsers(t *testing.T, db *DB, ids ...string) {
	t.Helper()
	mustUpdate(t, db, func(tx *Tx) error {
		for _, id := range ids {
			if err := tx.InsertUser(context.Background(), &domain.User{ID: id, ExternalID: "ext-" + id, DisplayName: id}); err != nil {
				return err
			}
		}
		return nil
	})
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 3 {
		t.Errorf("version = %d, want 3", result.Version)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertUser(ctx, &domain.User{ID: "u1", ExternalID: "e1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}

	_ = db.View(ctx, func(tx *Tx) error {
		u, err := tx.GetUser(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if u != nil {
			t.Error("user persisted despite rollback")
		}
		return nil
	})
}

func TestUpdateReportsFailedCommit(t *testing.T) {
	db := testDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kept := domain.Expired("r1")
	err := db.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertUser(ctx, &domain.User{ID: "u1", ExternalID: "e1"}); err != nil {
			return err
		}
		cancel()
		return &Commit{Err: kept}
	})
	if !errors.Is(err, ErrCommitFailed) {
		t.Fatalf("Update error = %v, want ErrCommitFailed", err)
	}
	if errors.Is(err, domain.ErrExpired) {
		t.Errorf("Update error = %v, should not carry the kept error", err)
	}

	_ = db.View(context.Background(), func(tx *Tx) error {
		if u, _ := tx.GetUser(context.Background(), "u1"); u != nil {
			t.Error("user persisted despite failed commit")
		}
		return nil
	})
}

func TestViewDoesNotBlockUpdate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedUsers(t, db, "a")

	inView := make(chan struct{})
	release := make(chan struct{})
	viewErr := make(chan error, 1)
	go func() {
		viewErr <- db.View(ctx, func(tx *Tx) error {
			if _, err := tx.GetUser(ctx, "a"); err != nil {
				return err
			}
			close(inView)
			<-release
			// The snapshot predates the concurrent insert.
			if u, _ := tx.GetUser(ctx, "b"); u != nil {
				return errors.New("view saw a later commit")
			}
			return nil
		})
	}()
	<-inView

	start := time.Now()
	err := db.Update(ctx, func(tx *Tx) error {
		return tx.InsertUser(ctx, &domain.User{ID: "b", ExternalID: "ext-b", DisplayName: "b"})
	})
	took := time.Since(start)
	close(release)
	if err != nil {
		t.Fatalf("Update() during open View error = %v", err)
	}
	if took > time.Second {
		t.Errorf("Update() waited %v for an open View", took)
	}
	if err := <-viewErr; err != nil {
		t.Fatalf("View() error = %v", err)
	}
}

func TestViewRejectsWrites(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	err := db.View(ctx, func(tx *Tx) error {
		return tx.InsertUser(ctx, &domain.User{ID: "u1", ExternalID: "e1"})
	})
	if err == nil {
		t.Fatal("View() accepted a write")
	}
}

func TestUpdateCommitKeepsWritesAndReturnsError(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedUsers(t, db, "a", "b")

	expired := domain.Expired("r1")
	err := db.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertRequest(ctx, &domain.ConnectionRequest{ID: "r1", SenderID: "a", ReceiverID: "b", Status: domain.RequestExpired}); err != nil {
			return err
		}
		return &Commit{Err: expired}
	})
	if !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("Update error = %v, want expired", err)
	}

	_ = db.View(ctx, func(tx *Tx) error {
		r, err := tx.GetRequest(ctx, "r1")
		if err != nil {
			t.Fatal(err)
		}
		if r == nil || r.Status != domain.RequestExpired {
			t.Errorf("request = %+v, want committed expired request", r)
		}
		return nil
	})
}

func TestExternalIDUnique(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedUsers(t, db, "u1")

	err := db.Update(ctx, func(tx *Tx) error {
		return tx.InsertUser(ctx, &domain.User{ID: "u2", ExternalID: "ext-u1"})
	})
	if err == nil {
		t.Fatal("expected unique violation for duplicate external id")
	}
}

func TestSearchUsers(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustUpdate(t, db, func(tx *Tx) error {
		for _, u := range []domain.User{
			{ID: "1", ExternalID: "e1", DisplayName: "Alice"},
			{ID: "2", ExternalID: "e2", DisplayName: "alicia"},
			{ID: "3", ExternalID: "e3", DisplayName: "Bob"},
		} {
			if err := tx.InsertUser(ctx, &u); err != nil {
				return err
			}
		}
		return nil
	})

	_ = db.View(ctx, func(tx *Tx) error {
		got, err := tx.SearchUsers(ctx, "1", "ALI")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID != "2" {
			t.Errorf("search = %+v, want only alicia", got)
		}
		all, err := tx.SearchUsers(ctx, "3", "")
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 {
			t.Errorf("empty query returned %d users, want 2", len(all))
		}
		return nil
	})
}

func TestDirectKeyUniqueIndex(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedUsers(t, db, "a", "b")

	mustUpdate(t, db, func(tx *Tx) error {
		return tx.InsertConversation(ctx, &domain.Conversation{ID: "c1", Kind: domain.KindDirect, MemberIDs: []string{"a", "b"}})
	})
	err := db.Update(ctx, func(tx *Tx) error {
		return tx.InsertConversation(ctx, &domain.Conversation{ID: "c2", Kind: domain.KindDirect, MemberIDs: []string{"b", "a"}})
	})
	if err == nil {
		t.Fatal("second direct conversation for the same pair was accepted")
	}

	_ = db.View(ctx, func(tx *Tx) error {
		c, err := tx.FindDirect(ctx, "b", "a")
		if err != nil {
			t.Fatal(err)
		}
		if c == nil || c.ID != "c1" {
			t.Errorf("FindDirect = %+v, want c1", c)
		}
		return nil
	})
}

func TestMembershipOrderAndSorting(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedUsers(t, db, "a", "b", "c", "d")

	at := int64(500)
	mustUpdate(t, db, func(tx *Tx) error {
		if err := tx.InsertConversation(ctx, &domain.Conversation{ID: "quiet", Kind: domain.KindGroup, Name: "Quiet", AdminID: "a", MemberIDs: []string{"a", "b"}, CreatedAt: 1}); err != nil {
			return err
		}
		if err := tx.InsertConversation(ctx, &domain.Conversation{ID: "old", Kind: domain.KindGroup, Name: "Old", AdminID: "a", MemberIDs: []string{"a", "c"}, LastActivityAt: &at, CreatedAt: 2}); err != nil {
			return err
		}
		if err := tx.InsertConversation(ctx, &domain.Conversation{ID: "new", Kind: domain.KindDirect, MemberIDs: []string{"a", "d"}, CreatedAt: 3}); err != nil {
			return err
		}
		if err := tx.TouchConversation(ctx, "new", "m1", 900); err != nil {
			return err
		}
		return tx.AddMembers(ctx, "old", []string{"d", "b"})
	})

	_ = db.View(ctx, func(tx *Tx) error {
		convs, err := tx.ConversationsForUser(ctx, "a")
		if err != nil {
			t.Fatal(err)
		}
		var order []string
		for _, c := range convs {
			order = append(order, c.ID)
		}
		if want := []string{"new", "old", "quiet"}; !reflect.DeepEqual(order, want) {
			t.Errorf("order = %v, want %v", order, want)
		}
		old, err := tx.GetConversation(ctx, "old")
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{"a", "c", "d", "b"}; !reflect.DeepEqual(old.MemberIDs, want) {
			t.Errorf("members = %v, want %v", old.MemberIDs, want)
		}
		return nil
	})
}

func TestMessagesAndUnread(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedUsers(t, db, "a", "b")

	mustUpdate(t, db, func(tx *Tx) error {
		if err := tx.InsertConversation(ctx, &domain.Conversation{ID: "c", Kind: domain.KindDirect, MemberIDs: []string{"a", "b"}}); err != nil {
			return err
		}
		for i, m := range []domain.Message{
			{ID: "m1", ConversationID: "c", SenderID: "a", Content: "one", CreatedAt: 100},
			{ID: "m2", ConversationID: "c", SenderID: "b", Content: "two", CreatedAt: 100},
			{ID: "m3", ConversationID: "c", SenderID: "b", Content: "three", CreatedAt: 200},
		} {
			if i == 0 {
				m.Reactions = domain.Reactions{"👍": {"b"}}
			}
			if err := tx.InsertMessage(ctx, &m); err != nil {
				return err
			}
		}
		return nil
	})

	_ = db.View(ctx, func(tx *Tx) error {
		msgs, err := tx.ListMessages(ctx, "c")
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 3 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
			t.Fatalf("messages = %+v, want m1, m2, m3 in insert order", msgs)
		}
		if !msgs[0].Reactions.Has("b", "👍") {
			t.Errorf("reactions = %v, want b on 👍", msgs[0].Reactions)
		}
		if msgs[1].Reactions == nil {
			t.Error("reactions should decode to an empty mapping, not nil")
		}
		last, err := tx.LastMessageSeq(ctx, "c")
		if err != nil {
			t.Fatal(err)
		}
		if n, err := tx.CountUnread(ctx, "c", "a", last); err != nil || n != 0 {
			t.Errorf("unread after last seq = %d, %v; want 0", n, err)
		}
		// m2 carries m1's timestamp and still counts once the cursor sits on m1.
		n, err := tx.CountUnread(ctx, "c", "a", last-2)
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("unread = %d, want 2", n)
		}
		return nil
	})
}

func TestTypingSinceIsStrict(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedUsers(t, db, "a", "b", "c")

	mustUpdate(t, db, func(tx *Tx) error {
		if err := tx.InsertConversation(ctx, &domain.Conversation{ID: "g", Kind: domain.KindGroup, Name: "G", AdminID: "a", MemberIDs: []string{"a", "b", "c"}}); err != nil {
			return err
		}
		if err := tx.UpsertTyping(ctx, &domain.TypingSignal{UserID: "b", ConversationID: "g", UpdatedAt: 1000}); err != nil {
			return err
		}
		return tx.UpsertTyping(ctx, &domain.TypingSignal{UserID: "c", ConversationID: "g", UpdatedAt: 1500})
	})

	_ = db.View(ctx, func(tx *Tx) error {
		got, err := tx.TypingSince(ctx, "g", "a", 1000)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].UserID != "c" {
			t.Errorf("typing = %+v, want only c", got)
		}
		return nil
	})
}

func TestNotificationOutbox(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, err := db.QueueNotification(ctx, &Notification{Kind: NotifyNewMessage, ToEmail: "bob@example.com", Preview: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingNotifications(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Preview != "hi" {
		t.Fatalf("pending = %+v, want one with preview hi", pending)
	}

	claimed, err := db.MarkNotificationSending(ctx, id)
	if err != nil || !claimed {
		t.Fatalf("claim = %v, %v", claimed, err)
	}
	again, err := db.MarkNotificationSending(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if again {
		t.Error("notification claimed twice")
	}
	if err := db.MarkNotificationSent(ctx, id); err != nil {
		t.Fatal(err)
	}

	pending, err = db.PendingNotifications(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending after sent, want 0", len(pending))
	}
	recent, err := db.RecentNotifications(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Status != "sent" || recent[0].Attempts != 1 {
		t.Errorf("recent = %+v, want one sent after 1 attempt", recent)
	}
}

func TestReceiptCursorRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedUsers(t, db, "a", "b")

	mustUpdate(t, db, func(tx *Tx) error {
		if err := tx.InsertConversation(ctx, &domain.Conversation{ID: "c", Kind: domain.KindDirect, MemberIDs: []string{"a", "b"}}); err != nil {
			return err
		}
		if err := tx.UpsertReceipt(ctx, &domain.ReadReceipt{UserID: "a", ConversationID: "c", LastReadAt: 100, LastReadSeq: 4}); err != nil {
			return err
		}
		return tx.UpsertReceipt(ctx, &domain.ReadReceipt{UserID: "a", ConversationID: "c", LastReadAt: 100, LastReadSeq: 9})
	})

	_ = db.View(ctx, func(tx *Tx) error {
		r, err := tx.GetReceipt(ctx, "a", "c")
		if err != nil {
			t.Fatal(err)
		}
		if r == nil || r.LastReadSeq != 9 || r.LastReadAt != 100 {
			t.Errorf("receipt = %+v, want seq 9 at 100", r)
		}
		if r, _ := tx.GetReceipt(ctx, "b", "c"); r != nil {
			t.Errorf("receipt for b = %+v, want nil", r)
		}
		return nil
	})
}
