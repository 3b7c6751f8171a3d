package notification

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Notifier delivers booking events. Delivery is best effort: implementations
// log failures and never return them to the caller.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Publisher publishes events to a watermill topic.
type Publisher struct {
	pub   message.Publisher
	topic string
	log   *zap.Logger
}

func NewPublisher(pub message.Publisher, topic string, log *zap.Logger) *Publisher {
	return &Publisher{pub: pub, topic: topic, log: log}
}

func (p *Publisher) Notify(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("encode notification", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	msg := message.NewMessage(ev.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("type", ev.Type)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		p.log.Warn("publish notification failed",
			zap.String("type", ev.Type),
			zap.Int64("booking_id", ev.BookingID),
			zap.Error(err))
		return
	}
	p.log.Debug("notification published",
		zap.String("type", ev.Type),
		zap.Int64("booking_id", ev.BookingID))
}

// LogNotifier only writes events to the log.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, ev Event) {
	n.log.Info("notification",
		zap.String("type", ev.Type),
		zap.Int64("booking_id", ev.BookingID),
		zap.String("status", ev.Status))
}
