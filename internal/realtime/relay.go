package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/steward-platform/apiserver/internal/mq"
	"golang.org/x/sync/errgroup"
)

const (
	relayOutboxSize = 256
	originAttribute = "origin"
)

type relayMessage struct {
	AccountID int             `json:"account_id"`
	Except    string          `json:"except,omitempty"`
	Frame     json.RawMessage `json:"frame"`
}

// Relay mirrors hub publishes onto a broker channel and delivers events
// published by peer instances to local connections.
type Relay struct {
	hub      *Hub
	mq       *mq.MQ
	channel  string
	instance string
	outbox   chan relayMessage
	logger   *slog.Logger
}

// NewRelay attaches a relay to hub. Events are only exchanged once Run is
// called.
func NewRelay(hub *Hub, m *mq.MQ, channel, instance string, logger *slog.Logger) *Relay {
	r := &Relay{
		hub:      hub,
		mq:       m,
		channel:  channel,
		instance: instance,
		outbox:   make(chan relayMessage, relayOutboxSize),
		logger:   logger,
	}
	hub.attach(r)
	return r
}

// Run publishes queued events and consumes peer events until ctx is done.
// A broker failure is returned; cancellation is not.
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.publish(ctx)
		return nil
	})
	g.Go(func() error {
		return r.mq.Subscribe(ctx, r.channel, r.receive)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Relay) forward(msg relayMessage) {
	select {
	case r.outbox <- msg:
	default:
		r.logger.Warn("realtime relay outbox full, dropping event", "account_id", msg.AccountID)
	}
}

func (r *Relay) publish(ctx context.Context) {
	attrs := map[string]string{originAttribute: r.instance}
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.outbox:
			data, err := json.Marshal(msg)
			if err != nil {
				r.logger.Error("failed to encode relay message", "error", err)
				continue
			}
			if _, err := r.mq.Publish(ctx, r.channel, data, attrs); err != nil {
				r.logger.Warn("failed to relay realtime event", "backend", r.mq.Name(), "account_id", msg.AccountID, "error", err)
			}
		}
	}
}

func (r *Relay) receive(_ context.Context, msg mq.Message) error {
	if msg.Attributes[originAttribute] == r.instance {
		return nil
	}
	var in relayMessage
	if err := json.Unmarshal(msg.Data, &in); err != nil {
		r.logger.Warn("discarding malformed relay message", "id", msg.ID, "error", err)
		return err
	}
	r.hub.deliver(in.AccountID, in.Frame, in.Except)
	return nil
}
