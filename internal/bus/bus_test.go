package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("commit.", 10)
	defer unsub()

	b.Publish(NewEvent("commit.message_sent", []string{"messages:c1"}, "test"))

	select {
	case evt := <-ch:
		if evt.Kind != "commit.message_sent" {
			t.Errorf("got kind %q, want commit.message_sent", evt.Kind)
		}
		if len(evt.Topics) != 1 || evt.Topics[0] != "messages:c1" {
			t.Errorf("topics = %v, want [messages:c1]", evt.Topics)
		}
		if evt.ID == "" {
			t.Error("event id not set")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("commit.", 10)
	defer unsub()

	b.Publish(Event{Kind: "presence.reaped"})
	b.Publish(Event{Kind: "commit.typing_set"})

	select {
	case evt := <-ch:
		if evt.Kind != "commit.typing_set" {
			t.Errorf("got kind %q, want commit.typing_set", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the presence event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("commit.", 10)
	unsub()
	unsub()

	if n := b.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}

	b.Publish(Event{Kind: "commit.message_sent"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	if b.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", b.Dropped())
	}
}
