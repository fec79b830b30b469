/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/friendsincode/mixtape/internal/events"
	"github.com/friendsincode/mixtape/internal/telemetry"
)

const redisChannelPrefix = "mixtape:events:"

// RedisBus relays events between nodes over Redis pub/sub.
type RedisBus struct {
	client  *redis.Client
	logger  zerolog.Logger
	local   *events.Bus
	nodeID  string
	breaker *gobreaker.CircuitBreaker[any]

	mu       sync.Mutex
	channels map[events.EventType]*redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures uint32
	OpenTimeout time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxFailures:  5,
		OpenTimeout:  30 * time.Second,
	}
}

// NewRedisBus creates a Redis-backed event bus. When Redis cannot be reached
// the bus still works for same-process subscribers.
func NewRedisBus(cfg RedisConfig, nodeID string, logger zerolog.Logger) (*RedisBus, error) {
	ctx, cancel := context.WithCancel(context.Background())
	rb := &RedisBus{
		logger:   logger,
		local:    events.NewBus(),
		nodeID:   nodeID,
		breaker:  newPublishBreaker("redis-eventbus", cfg.MaxFailures, cfg.OpenTimeout, logger),
		channels: make(map[events.EventType]*redis.PubSub),
		ctx:      ctx,
		cancel:   cancel,
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis connection failed, events stay in-process")
		_ = client.Close()
		return rb, nil
	}

	rb.client = client
	logger.Info().Str("addr", cfg.Addr).Str("node_id", nodeID).Msg("Redis event bus initialized")
	return rb, nil
}

// Connected reports whether events are relayed to other nodes.
func (rb *RedisBus) Connected() bool {
	return rb.client != nil
}

// Subscribe registers a local subscriber and, on first use of the event type,
// a Redis subscription feeding it.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := rb.local.Subscribe(eventType)
	if rb.client == nil {
		return sub
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if _, exists := rb.channels[eventType]; !exists {
		pubsub := rb.client.Subscribe(rb.ctx, redisChannelPrefix+string(eventType))
		rb.channels[eventType] = pubsub
		rb.wg.Add(1)
		go rb.receive(eventType, pubsub)
	}
	return sub
}

func (rb *RedisBus) receive(eventType events.EventType, pubsub *redis.PubSub) {
	defer rb.wg.Done()
	ch := pubsub.Channel()

	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				rb.logger.Debug().Str("event_type", string(eventType)).Msg("Redis subscription closed")
				return
			}
			wm, err := unmarshalMessage([]byte(msg.Payload))
			if err != nil {
				telemetry.EventBusErrorsTotal.WithLabelValues("redis").Inc()
				rb.logger.Error().Err(err).Msg("failed to decode Redis event")
				continue
			}
			if wm.NodeID == rb.nodeID {
				continue
			}
			rb.local.Publish(eventType, wm.Payload)
		}
	}
}

// Publish delivers locally, then relays to Redis unless the breaker is open.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)
	if rb.client == nil {
		return
	}

	data, err := marshalMessage(eventType, payload, rb.nodeID)
	if err != nil {
		telemetry.EventBusErrorsTotal.WithLabelValues("redis").Inc()
		rb.logger.Error().Err(err).Msg("failed to encode Redis event")
		return
	}

	_, err = rb.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
		defer cancel()
		return nil, rb.client.Publish(ctx, redisChannelPrefix+string(eventType), data).Err()
	})
	if err != nil {
		telemetry.EventBusErrorsTotal.WithLabelValues("redis").Inc()
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
		}
		return
	}
	telemetry.EventBusPublishedTotal.WithLabelValues("redis", string(eventType)).Inc()
}

// Unsubscribe removes a local subscriber. The Redis subscription for the
// type is closed once nobody listens.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.local.SubscriberCount(eventType) > 0 {
		return
	}
	if pubsub, exists := rb.channels[eventType]; exists {
		_ = pubsub.Close()
		delete(rb.channels, eventType)
	}
}

// Close stops receivers and closes the client.
func (rb *RedisBus) Close() error {
	rb.cancel()

	rb.mu.Lock()
	for eventType, pubsub := range rb.channels {
		_ = pubsub.Close()
		delete(rb.channels, eventType)
	}
	rb.mu.Unlock()
	rb.wg.Wait()

	if rb.client != nil {
		if err := rb.client.Close(); err != nil {
			return err
		}
	}
	rb.logger.Info().Msg("Redis event bus closed")
	return nil
}
