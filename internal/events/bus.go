/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"

	"github.com/friendsincode/mixtape/internal/telemetry"
)

// EventType names a category of event on the bus.
type EventType string

// Autoplay events.
const (
	EventNowPlaying          EventType = "autoplay.now_playing"
	EventQueueChanged        EventType = "autoplay.queue_changed"
	EventQueueExtended       EventType = "autoplay.queue_extended"
	EventPlaybackModeChanged EventType = "autoplay.mode_changed"
)

// Learning events.
const (
	EventFeedbackRecorded EventType = "learning.feedback"
	EventLedgerReset      EventType = "learning.reset"
)

// EventCatalogInvalidated tells every node to drop cached catalog snapshots.
const EventCatalogInvalidated EventType = "catalog.invalidated"

// AllEventTypes lists every event type, used by stream endpoints that relay everything.
var AllEventTypes = []EventType{
	EventNowPlaying,
	EventQueueChanged,
	EventQueueExtended,
	EventPlaybackModeChanged,
	EventFeedbackRecorded,
	EventLedgerReset,
	EventCatalogInvalidated,
}

// Known reports whether t is one of AllEventTypes.
func (t EventType) Known() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// subscriberBuffer is the channel capacity handed to each subscriber.
const subscriberBuffer = 32

// Publisher is the publishing half of a bus.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Bus is the in-process fan-out used directly in single-node mode and as the
// local delivery layer of the networked buses. Publish never blocks; a
// subscriber whose buffer is full misses the event and the drop is counted.
type Bus struct {
	mu     sync.RWMutex
	topics map[EventType]map[Subscriber]struct{}
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[EventType]map[Subscriber]struct{})}
}

// Subscribe registers a new subscriber for eventType.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	sub := make(Subscriber, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.topics[eventType]
	if !ok {
		set = make(map[Subscriber]struct{})
		b.topics[eventType] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers payload to every current subscriber of eventType.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.topics[eventType] {
		select {
		case sub <- payload:
		default:
			telemetry.EventBusDroppedTotal.WithLabelValues(string(eventType)).Inc()
		}
	}
}

// Unsubscribe removes sub and closes its channel. Subscribers the bus does
// not know are ignored.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.topics[eventType]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.topics, eventType)
	}
	close(sub)
}

// SubscriberCount returns the number of subscribers for an event type.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[eventType])
}

// Close releases nothing; it lets *Bus satisfy the same contract as the networked buses.
func (b *Bus) Close() error { return nil }
