package mail

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/tazhibayda/learnpath-auth/internal/log"
	"github.com/tazhibayda/learnpath-auth/internal/queue"
)

// QueueSender hands rendered messages to the notifier over RabbitMQ.
type QueueSender struct {
	pub      queue.Publisher
	exchange string
	key      string
}

func NewQueueSender(pub queue.Publisher, exchange, key string) *QueueSender {
	return &QueueSender{pub: pub, exchange: exchange, key: key}
}

func (s *QueueSender) Send(ctx context.Context, m Message) error {
	return s.pub.Publish(ctx, s.exchange, s.key, m, log.RequestID(ctx))
}

// DeliveryHandler decodes queued messages and passes them to next.
// Undecodable bodies are acked and dropped.
func DeliveryHandler(next Sender, onBad func(error)) queue.Handler {
	return func(ctx context.Context, body []byte) error {
		var m Message
		if err := json.Unmarshal(body, &m); err != nil || m.To == "" {
			if err == nil {
				err = errors.New("message without recipient")
			}
			if onBad != nil {
				onBad(err)
			}
			return nil
		}
		return next.Send(ctx, m)
	}
}
