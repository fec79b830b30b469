package eventbus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/mixtape/internal/config"
	"github.com/friendsincode/mixtape/internal/events"
)

func expectPayload(t *testing.T, sub events.Subscriber, key string, want any) {
	t.Helper()
	select {
	case p := <-sub:
		if p[key] != want {
			t.Fatalf("expected %s=%v, got %v", key, want, p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisBusFallsBackToLocalDelivery(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 200 * time.Millisecond

	bus, err := NewRedisBus(cfg, "node-a", zerolog.Nop())
	if err != nil {
		t.Fatalf("new redis bus: %v", err)
	}
	defer bus.Close()

	if bus.Connected() {
		t.Fatal("expected bus to be disconnected")
	}

	sub := bus.Subscribe(events.EventQueueChanged)
	bus.Publish(events.EventQueueChanged, events.Payload{"queue_length": 4})
	expectPayload(t, sub, "queue_length", 4)

	bus.Unsubscribe(events.EventQueueChanged, sub)
}

func TestNATSBusFallsBackToLocalDelivery(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond

	bus, err := NewNATSBus(cfg, "node-a", zerolog.Nop())
	if err != nil {
		t.Fatalf("new nats bus: %v", err)
	}
	defer bus.Close()

	if bus.Connected() {
		t.Fatal("expected bus to be disconnected")
	}

	sub := bus.Subscribe(events.EventPlaybackModeChanged)
	bus.Publish(events.EventPlaybackModeChanged, events.Payload{"mode": "ai_continue"})
	expectPayload(t, sub, "mode", "ai_continue")
}

func TestWireMessageRoundTrip(t *testing.T) {
	data, err := marshalMessage(events.EventFeedbackRecorded, events.Payload{"path": "a.mp3"}, "node-b")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	msg, err := unmarshalMessage(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.NodeID != "node-b" || msg.EventType != events.EventFeedbackRecorded || msg.Payload["path"] != "a.mp3" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.MessageID == "" {
		t.Fatal("expected message id")
	}

	if _, err := unmarshalMessage([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	bus, err := New(&config.Config{EventBusBackend: config.BusMemory}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := bus.(*events.Bus); !ok {
		t.Fatalf("expected in-memory bus, got %T", bus)
	}

	if _, err := New(&config.Config{EventBusBackend: "carrier-pigeon"}, zerolog.Nop()); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
