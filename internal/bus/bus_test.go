package bus

import (
	"context"
	"testing"
	"time"
)

func mustConsume(t *testing.T, b *MessageBus) InboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatalf("expected an inbound message")
	}
	return msg
}

func TestBufferedFollowUpMergesInOrder(t *testing.T) {
	b := New()
	defer b.Stop()

	b.PublishInbound(InboundMessage{Channel: "chat", ChatID: "c1", SenderID: "u0", Content: "start"})
	first := mustConsume(t, b)

	b.PublishInbound(InboundMessage{Channel: "chat", ChatID: "c1", SenderID: "alice", Content: "one"})
	b.PublishInbound(InboundMessage{Channel: "chat", ChatID: "c1", SenderID: "bob", Content: "two"})

	b.CompleteInboundTurn(inboundSessionKey(first))

	merged := mustConsume(t, b)
	want := "[alice] one\n\n[bob] two"
	if merged.Content != want {
		t.Fatalf("content = %q, want %q", merged.Content, want)
	}
	if merged.Metadata[metaKeyCollectedCount] != "2" {
		t.Fatalf("collected_count = %q, want 2", merged.Metadata[metaKeyCollectedCount])
	}
	collected := DecodeCollectedMessages(merged.Metadata)
	if len(collected) != 2 || collected[0].SenderID != "alice" || collected[1].SenderID != "bob" {
		t.Fatalf("collected_messages = %+v", collected)
	}
}

func TestCrossSessionNonInterference(t *testing.T) {
	b := New()
	defer b.Stop()

	b.PublishInbound(InboundMessage{Channel: "chat", ChatID: "c1", Content: "start"})
	active := mustConsume(t, b)
	_ = active

	// A publish for a *different* session must not be buffered.
	b.PublishInbound(InboundMessage{Channel: "chat", ChatID: "c2", Content: "other"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok || msg.ChatID != "c2" {
		t.Fatalf("expected immediate delivery for non-active session, got %+v ok=%v", msg, ok)
	}
}

func TestSingleBufferedMessageHasNoSenderPrefix(t *testing.T) {
	b := New()
	defer b.Stop()

	b.PublishInbound(InboundMessage{Channel: "chat", ChatID: "c1", Content: "start"})
	first := mustConsume(t, b)

	b.PublishInbound(InboundMessage{Channel: "chat", ChatID: "c1", SenderID: "alice", Content: "one"})
	b.CompleteInboundTurn(inboundSessionKey(first))

	merged := mustConsume(t, b)
	if merged.Content != "one" {
		t.Fatalf("content = %q, want raw %q", merged.Content, "one")
	}
}

func TestOutboundWaiterSupersession(t *testing.T) {
	b := New()
	defer b.Stop()

	w1 := b.CreateWaiter("req-1")
	_ = b.CreateWaiter("req-1") // supersedes w1

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	success, errMsg, err := w1.Wait(ctx)
	if err != nil {
		t.Fatalf("w1 never resolved: %v", err)
	}
	if success {
		t.Fatalf("superseded waiter should resolve success=false")
	}
	if errMsg == "" {
		t.Fatalf("expected a superseded error message")
	}
}

func TestResolveWaiterDeliversResult(t *testing.T) {
	b := New()
	defer b.Stop()

	w := b.CreateWaiter("req-2")
	b.ResolveWaiter("req-2", true, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	success, _, err := w.Wait(ctx)
	if err != nil || !success {
		t.Fatalf("expected success=true, got success=%v err=%v", success, err)
	}
}
