/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/friendsincode/mixtape/internal/events"
	"github.com/friendsincode/mixtape/internal/telemetry"
)

const natsSubjectPrefix = "mixtape.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration

	MaxFailures uint32
	OpenTimeout time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "mixtape",
		MaxReconnects: -1, // unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
		MaxFailures:   5,
		OpenTimeout:   30 * time.Second,
	}
}

// NATSBus relays events between nodes over core NATS subjects.
type NATSBus struct {
	conn    *nats.Conn
	logger  zerolog.Logger
	local   *events.Bus
	nodeID  string
	breaker *gobreaker.CircuitBreaker[any]

	mu   sync.Mutex
	subs map[events.EventType]*nats.Subscription
}

// NewNATSBus connects to NATS. When the server cannot be reached the bus
// still works for same-process subscribers.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	nb := &NATSBus{
		logger:  logger,
		local:   events.NewBus(),
		nodeID:  nodeID,
		breaker: newPublishBreaker("nats-eventbus", cfg.MaxFailures, cfg.OpenTimeout, logger),
		subs:    make(map[events.EventType]*nats.Subscription),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name+"-"+nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS connection failed, events stay in-process")
		return nb, nil
	}

	nb.conn = conn
	logger.Info().Str("url", conn.ConnectedUrl()).Str("node_id", nodeID).Msg("NATS event bus initialized")
	return nb, nil
}

// Connected reports whether events are relayed to other nodes.
func (nb *NATSBus) Connected() bool {
	return nb.conn != nil && nb.conn.IsConnected()
}

// Subscribe registers a local subscriber and, on first use of the event type,
// a NATS subscription feeding it.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)
	if nb.conn == nil {
		return sub
	}

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if _, exists := nb.subs[eventType]; exists {
		return sub
	}

	ns, err := nb.conn.Subscribe(natsSubjectPrefix+string(eventType), func(m *nats.Msg) {
		wm, err := unmarshalMessage(m.Data)
		if err != nil {
			telemetry.EventBusErrorsTotal.WithLabelValues("nats").Inc()
			nb.logger.Error().Err(err).Msg("failed to decode NATS event")
			return
		}
		if wm.NodeID == nb.nodeID {
			return
		}
		nb.local.Publish(eventType, wm.Payload)
	})
	if err != nil {
		telemetry.EventBusErrorsTotal.WithLabelValues("nats").Inc()
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("NATS subscribe failed")
		return sub
	}
	nb.subs[eventType] = ns
	return sub
}

// Publish delivers locally, then relays to NATS unless the breaker is open.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)
	if nb.conn == nil {
		return
	}

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		telemetry.EventBusErrorsTotal.WithLabelValues("nats").Inc()
		nb.logger.Error().Err(err).Msg("failed to encode NATS event")
		return
	}

	_, err = nb.breaker.Execute(func() (any, error) {
		return nil, nb.conn.Publish(natsSubjectPrefix+string(eventType), data)
	})
	if err != nil {
		telemetry.EventBusErrorsTotal.WithLabelValues("nats").Inc()
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
		}
		return
	}
	telemetry.EventBusPublishedTotal.WithLabelValues("nats", string(eventType)).Inc()
}

// Unsubscribe removes a local subscriber and drops the NATS subscription once
// nobody listens to the type.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if nb.local.SubscriberCount(eventType) > 0 {
		return
	}
	if ns, exists := nb.subs[eventType]; exists {
		_ = ns.Unsubscribe()
		delete(nb.subs, eventType)
	}
}

// Close drains the connection so in-flight messages are delivered.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return err
	}
	nb.logger.Info().Msg("NATS event bus closed")
	return nil
}
