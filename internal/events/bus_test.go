package events

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscribersOfType(t *testing.T) {
	bus := NewBus()
	queue := bus.Subscribe(EventQueueChanged)
	mode := bus.Subscribe(EventPlaybackModeChanged)

	bus.Publish(EventQueueChanged, Payload{"length": 3})

	select {
	case p := <-queue:
		if p["length"] != 3 {
			t.Fatalf("unexpected payload %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case p := <-mode:
		t.Fatalf("mode subscriber should not receive queue events, got %v", p)
	default:
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventNowPlaying)

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(sub)+10; i++ {
			bus.Publish(EventNowPlaying, Payload{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(sub) != cap(sub) {
		t.Fatalf("expected full subscriber buffer, got %d/%d", len(sub), cap(sub))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventLedgerReset)
	bus.Unsubscribe(EventLedgerReset, sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	if bus.SubscriberCount(EventLedgerReset) != 0 {
		t.Fatal("expected no subscribers")
	}
	// Unknown subscribers are ignored.
	bus.Unsubscribe(EventLedgerReset, make(Subscriber))
}

func TestKnownEventTypes(t *testing.T) {
	for _, eventType := range AllEventTypes {
		if !eventType.Known() {
			t.Fatalf("expected %q to be known", eventType)
		}
	}
	if EventType("station.created").Known() {
		t.Fatal("unexpected known type")
	}
}

func TestUnsubscribeKeepsOtherSubscribers(t *testing.T) {
	bus := NewBus()
	first := bus.Subscribe(EventQueueExtended)
	second := bus.Subscribe(EventQueueExtended)
	bus.Unsubscribe(EventQueueExtended, first)

	if got := bus.SubscriberCount(EventQueueExtended); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}
	bus.Publish(EventQueueExtended, Payload{"added": 2})
	select {
	case p := <-second:
		if p["added"] != 2 {
			t.Fatalf("unexpected payload %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}
