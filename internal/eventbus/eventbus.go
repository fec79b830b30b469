/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus distributes events between mixtape processes. Every bus
// delivers to same-process subscribers through an in-memory events.Bus; the
// networked backends additionally relay to and from other nodes.
package eventbus

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/friendsincode/mixtape/internal/config"
	"github.com/friendsincode/mixtape/internal/events"
)

// Broker is the contract shared by the in-memory, Redis and NATS buses.
type Broker interface {
	events.Publisher
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

var (
	_ Broker = (*events.Bus)(nil)
	_ Broker = (*RedisBus)(nil)
	_ Broker = (*NATSBus)(nil)
)

// New builds the broker selected by cfg.EventBusBackend.
func New(cfg *config.Config, logger zerolog.Logger) (Broker, error) {
	logger = logger.With().Str("component", "eventbus").Logger()
	nodeID := NodeID()

	switch cfg.EventBusBackend {
	case config.BusMemory, "":
		return events.NewBus(), nil
	case config.BusRedis:
		rc := DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		return NewRedisBus(rc, nodeID, logger)
	case config.BusNATS:
		nc := DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		return NewNATSBus(nc, nodeID, logger)
	default:
		return nil, fmt.Errorf("unknown event bus backend %q", cfg.EventBusBackend)
	}
}

// NodeID identifies this process on the wire so it can ignore its own echoes.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "mixtape"
	}
	return host + "-" + uuid.NewString()[:8]
}

// wireMessage is the envelope published to Redis and NATS.
type wireMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(wireMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalMessage(data []byte) (*wireMessage, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal bus message: %w", err)
	}
	return &msg, nil
}

// newPublishBreaker trips after consecutive publish failures so a dead
// backend does not add latency to every event.
func newPublishBreaker(name string, maxFailures uint32, openFor time.Duration, logger zerolog.Logger) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("event bus circuit breaker state changed")
		},
	})
}
