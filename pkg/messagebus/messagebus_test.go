package messagebus

import "testing"

func TestSendAddressedDeliversToRecipientOnly(t *testing.T) {
	b := New()
	b.RegisterAgent("alice")
	b.RegisterAgent("bob")

	b.Send(Message{From: "alice", To: "bob", Content: "hi"})

	if msgs := b.GetMessages("bob", nil); len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Fatalf("expected bob to receive the message, got %+v", msgs)
	}
	if msgs := b.GetMessages("alice", nil); len(msgs) != 0 {
		t.Fatalf("expected alice's inbox empty, got %+v", msgs)
	}
}

func TestSendAssignsIDAndTimestamp(t *testing.T) {
	b := New()
	b.RegisterAgent("bob")
	msg := b.Send(Message{From: "alice", To: "bob", Content: "hi"})

	if msg.ID == "" {
		t.Error("expected Send to assign a non-empty ID")
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected Send to assign a timestamp")
	}
}

func TestBroadcastDeliversToEveryoneExceptSender(t *testing.T) {
	b := New()
	b.RegisterAgent("alice")
	b.RegisterAgent("bob")
	b.RegisterAgent("carol")

	b.Broadcast("alice", "hello all", "general")

	if msgs := b.GetMessages("bob", nil); len(msgs) != 1 {
		t.Errorf("expected bob to receive broadcast, got %+v", msgs)
	}
	if msgs := b.GetMessages("carol", nil); len(msgs) != 1 {
		t.Errorf("expected carol to receive broadcast, got %+v", msgs)
	}
	if msgs := b.GetMessages("alice", nil); len(msgs) != 0 {
		t.Errorf("expected sender excluded from its own broadcast, got %+v", msgs)
	}
}

func TestGetMessagesNewestFirst(t *testing.T) {
	b := New()
	b.RegisterAgent("bob")
	b.Send(Message{From: "alice", To: "bob", Content: "first"})
	b.Send(Message{From: "alice", To: "bob", Content: "second"})

	msgs := b.GetMessages("bob", nil)
	if len(msgs) != 2 || msgs[0].Content != "second" || msgs[1].Content != "first" {
		t.Fatalf("expected newest-first order, got %+v", msgs)
	}
}

func TestGetMessagesAppliesFilter(t *testing.T) {
	b := New()
	b.RegisterAgent("bob")
	b.Send(Message{From: "alice", To: "bob", Type: TypeRequest, Channel: "ops", Content: "a"})
	b.Send(Message{From: "alice", To: "bob", Type: TypeResponse, Channel: "dev", Content: "b"})

	msgs := b.GetMessages("bob", &Filter{Channel: "ops"})
	if len(msgs) != 1 || msgs[0].Content != "a" {
		t.Fatalf("expected only the ops-channel message, got %+v", msgs)
	}

	msgs = b.GetMessages("bob", &Filter{Type: TypeResponse})
	if len(msgs) != 1 || msgs[0].Content != "b" {
		t.Fatalf("expected only the response-typed message, got %+v", msgs)
	}
}

func TestSubscribeFiresOnDelivery(t *testing.T) {
	b := New()
	b.RegisterAgent("bob")
	var got Message
	b.Subscribe("bob", func(m Message) { got = m })

	b.Send(Message{From: "alice", To: "bob", Content: "hi"})

	if got.Content != "hi" {
		t.Fatalf("expected subscriber to observe delivered message, got %+v", got)
	}
}

func TestSubscribeFiresOnBroadcastDelivery(t *testing.T) {
	b := New()
	b.RegisterAgent("alice")
	b.RegisterAgent("bob")
	called := false
	b.Subscribe("bob", func(Message) { called = true })

	b.Broadcast("alice", "hello", "general")

	if !called {
		t.Error("expected subscriber to fire on broadcast delivery")
	}
}

func TestClearEmptiesInboxesAndSubscribers(t *testing.T) {
	b := New()
	b.RegisterAgent("bob")
	b.Send(Message{From: "alice", To: "bob", Content: "hi"})
	called := false
	b.Subscribe("bob", func(Message) { called = true })

	b.Clear()

	if msgs := b.GetMessages("bob", nil); len(msgs) != 0 {
		t.Errorf("expected inbox empty after Clear, got %+v", msgs)
	}
	b.Send(Message{From: "alice", To: "bob", Content: "after clear"})
	if called {
		t.Error("expected subscribers cleared, handler should not fire")
	}
}
