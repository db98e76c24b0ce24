package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/panelkit/runtime/execctx"
)

func testEvent() execctx.EmittedEvent {
	return execctx.EmittedEvent{Name: "item.added", Payload: map[string]any{"id": "item-1"}}
}

// asyncReceive starts a goroutine that reads one message from the subscriber
// and sends it to the returned channel. Must be called BEFORE Publish to
// avoid deadlocking miniredis's synchronous pub/sub delivery.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{} // unreachable
	}
}

func TestPublish_DefaultChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	r, err := NewRedis(Config{URL: "redis://" + mr.Addr()}, "instance-a")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = r.Close() }()

	if r.config.Channel != DefaultChannel {
		t.Errorf("expected default channel %q, got %q", DefaultChannel, r.config.Channel)
	}

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := r.Publish(context.Background(), "panel-1", testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)

	var received wireEvent
	if err := json.Unmarshal([]byte(msg.Message), &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if received.PanelID != "panel-1" {
		t.Errorf("PanelID = %q, want panel-1", received.PanelID)
	}
	if received.Event.Name != "item.added" {
		t.Errorf("Event.Name = %q, want item.added", received.Event.Name)
	}
	if received.Origin != "instance-a" {
		t.Errorf("Origin = %q, want instance-a", received.Origin)
	}
}

func TestNewRedis_RequiresURL(t *testing.T) {
	if _, err := NewRedis(Config{}, "instance-a"); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

// stubReceiver keeps the most recently delivered event for assertions
// and signals each delivery on mu.
type stubReceiver struct {
	mu       chan struct{}
	panelID  string
	event    execctx.EmittedEvent
}

func newStubReceiver() *stubReceiver {
	return &stubReceiver{mu: make(chan struct{}, 1)}
}

func (s *stubReceiver) ReceiveRemoteEvent(panelID string, event execctx.EmittedEvent) {
	s.panelID = panelID
	s.event = event
	s.mu <- struct{}{}
}

func TestRun_DeliversForeignEventsAndSkipsOwnOrigin(t *testing.T) {
	mr := miniredis.RunT(t)

	publisher, err := NewRedis(Config{URL: "redis://" + mr.Addr()}, "instance-a")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer func() { _ = publisher.Close() }()

	subscriber, err := NewRedis(Config{URL: "redis://" + mr.Addr()}, "instance-b")
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	defer func() { _ = subscriber.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recv := newStubReceiver()
	done := make(chan error, 1)
	go func() { done <- subscriber.Run(ctx, recv) }()

	// Give the subscription time to establish before publishing, since
	// miniredis delivers pub/sub synchronously to already-registered subscribers.
	time.Sleep(50 * time.Millisecond)

	if err := publisher.Publish(ctx, "panel-7", testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-recv.mu:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for relayed event")
	}

	if recv.panelID != "panel-7" {
		t.Errorf("panelID = %q, want panel-7", recv.panelID)
	}
	if recv.event.Name != "item.added" {
		t.Errorf("event.Name = %q, want item.added", recv.event.Name)
	}

	cancel()
	<-done
}
