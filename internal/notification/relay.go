package notification

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Relay forwards published events to the websocket hub.
type Relay struct {
	sub   message.Subscriber
	hub   *Hub
	topic string
	log   *zap.Logger
}

func NewRelay(sub message.Subscriber, hub *Hub, topic string, log *zap.Logger) *Relay {
	return &Relay{sub: sub, hub: hub, topic: topic, log: log}
}

// Start subscribes to the topic and forwards messages in the background
// until ctx is cancelled or the subscription closes.
func (r *Relay) Start(ctx context.Context) error {
	messages, err := r.sub.Subscribe(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.topic, err)
	}
	go r.loop(ctx, messages)
	return nil
}

func (r *Relay) loop(ctx context.Context, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.handle(msg)
		}
	}
}

func (r *Relay) handle(msg *message.Message) {
	defer msg.Ack()

	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		r.log.Warn("drop malformed notification", zap.String("uuid", msg.UUID), zap.Error(err))
		return
	}

	for _, userID := range ev.Recipients() {
		if r.hub.SendToUser(userID, ev) {
			r.log.Debug("event pushed", zap.String("type", ev.Type), zap.Int64("user_id", userID))
		}
	}
}
