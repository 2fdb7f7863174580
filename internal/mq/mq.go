// Package mq is a broker-agnostic publish/subscribe layer. Every subscriber
// of a channel receives every message published to it.
package mq

import (
	"context"
	"fmt"

	"github.com/steward-platform/apiserver/config"
)

// Supported relay backends.
const (
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Returning an error drops the message; nothing
// is redelivered.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker operations used by the real-time relay.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
	name    string
}

// New wraps backend. name is only used in logs and errors.
func New(name string, backend Backend) *MQ {
	return &MQ{backend: backend, name: name}
}

// Open connects the backend selected by cfg.Relay. instance distinguishes
// this process from its peers where the broker needs per-consumer state.
func Open(ctx context.Context, cfg config.RealtimeConfig, instance string) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Relay {
	case BackendRedis:
		backend, err = NewRedisClient(ctx, cfg.RedisURL)
	case BackendRabbitMQ:
		backend, err = NewRabbitMQClient(cfg.RabbitMQURL)
	case BackendPubSub:
		backend, err = NewPubSubClient(ctx, cfg, instance)
	default:
		return nil, fmt.Errorf("unknown relay backend %q", cfg.Relay)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s relay: %w", cfg.Relay, err)
	}
	return New(cfg.Relay, backend), nil
}

// Name returns the backend name.
func (m *MQ) Name() string {
	return m.name
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe consumes messages from the named channel until ctx is done or
// the backend fails.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
