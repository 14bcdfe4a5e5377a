// bus/bus_test.go
package bus

import (
	"testing"
	"time"
)

func recv(t *testing.T, sub *Subscription) *Message {
	t.Helper()
	select {
	case got := <-sub.Channel():
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func expectNone(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %v", got.Payload)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBasicPubSub(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T("mcu", "state"))
	conn.Publish(&Message{Topic: T("mcu", "state"), Payload: "ready"})

	if got := recv(t, sub); got.Payload.(string) != "ready" {
		t.Errorf("expected payload 'ready', got %v", got.Payload)
	}
}

func TestRetainedMessage(t *testing.T) {
	b := New(2)
	conn := b.NewConnection("test")

	conn.PublishRetained(T("mcu", "state"), "persist")

	sub := conn.Subscribe(T("mcu", "state"))
	if got := recv(t, sub); got.Payload.(string) != "persist" {
		t.Errorf("expected retained payload 'persist', got %v", got.Payload)
	}
}

func TestRetainedCleared(t *testing.T) {
	b := New(2)
	conn := b.NewConnection("test")

	conn.PublishRetained(T("mcu", "state"), "persist")
	conn.PublishRetained(T("mcu", "state"), nil)

	sub := conn.Subscribe(T("mcu", "state"))
	expectNone(t, sub)
}

func TestNonRetainedToEmptyTopicIsDropped(t *testing.T) {
	b := New(2)
	conn := b.NewConnection("test")

	// No subscribers, not retained: nothing should be stored.
	conn.Publish(&Message{Topic: T("mcu", "drift"), Payload: "lost"})

	sub := conn.Subscribe(T("mcu", "drift"))
	expectNone(t, sub)
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	b := New(2)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T("mcu", "stats"))
	for i := 0; i < 4; i++ {
		conn.Publish(&Message{Topic: T("mcu", "stats"), Payload: i})
	}

	// Queue length is 2, so the two oldest entries were dropped.
	if got := recv(t, sub); got.Payload.(int) != 2 {
		t.Errorf("expected payload 2 after overflow, got %v", got.Payload)
	}
	if got := recv(t, sub); got.Payload.(int) != 3 {
		t.Errorf("expected payload 3 after overflow, got %v", got.Payload)
	}
}

func TestUnsubscribePrunes(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T("a", "b", "c"))
	sub.Unsubscribe()

	if len(b.root.children) != 0 {
		t.Errorf("expected trie to be pruned, found %d children", len(b.root.children))
	}
}

func TestDisconnectClosesAll(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")

	s1 := conn.Subscribe(T("a"))
	s2 := conn.Subscribe(T("b"))
	conn.Disconnect()

	if _, ok := <-s1.Channel(); ok {
		t.Error("expected s1 channel closed")
	}
	if _, ok := <-s2.Channel(); ok {
		t.Error("expected s2 channel closed")
	}
}
