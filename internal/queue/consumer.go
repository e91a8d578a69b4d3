package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tazhibayda/learnpath-auth/internal/log"
	"go.uber.org/zap"
)

const prefetchPerWorker = 4

// Handler processes one delivery body. A non-nil error nacks the message.
type Handler func(ctx context.Context, body []byte) error

// Binding names the durable queue a consumer reads and how it is bound.
type Binding struct {
	Exchange string
	Queue    string
	Key      string
}

type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	log   *zap.Logger
}

func NewConsumer(url string, b Binding, lg *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbit: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	name, err := declare(ch, b)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, queue: name, log: lg}, nil
}

// declare makes sure the exchange and queue exist and are bound.
func declare(ch *amqp.Channel, b Binding) (string, error) {
	if err := ch.ExchangeDeclare(b.Exchange, "topic", true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("declare exchange %s: %w", b.Exchange, err)
	}
	q, err := ch.QueueDeclare(b.Queue, true, false, false, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare queue %s: %w", b.Queue, err)
	}
	if err := ch.QueueBind(q.Name, b.Key, b.Exchange, false, nil); err != nil {
		return "", fmt.Errorf("bind %s to %s/%s: %w", q.Name, b.Exchange, b.Key, err)
	}
	return q.Name, nil
}

func (c *Consumer) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Consume runs workers until ctx is cancelled or the broker closes the delivery channel.
func (c *Consumer) Consume(ctx context.Context, workers int, handle Handler) error {
	if c == nil || c.ch == nil {
		return errors.New("consumer is not initialized")
	}
	if workers <= 0 {
		workers = 1
	}
	if err := c.ch.Qos(workers*prefetchPerWorker, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.drain(ctx, msgs, handle)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) drain(ctx context.Context, msgs <-chan amqp.Delivery, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			c.process(ctx, d, handle)
		}
	}
}

// process runs handle for one delivery and settles it. A failure is requeued
// once; a redelivered message that fails again is dropped.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery, handle Handler) {
	reqID, _ := d.Headers["X-Request-ID"].(string)
	lg := c.log.With(
		zap.String("message_id", d.MessageId),
		zap.String("request_id", reqID),
	)
	ctx = log.WithContext(log.WithRequestID(ctx, reqID), lg)

	if err := safeHandle(ctx, handle, d.Body); err != nil {
		requeue := !d.Redelivered
		lg.Warn("delivery failed", zap.Bool("requeue", requeue), zap.Error(err))
		if nerr := d.Nack(false, requeue); nerr != nil {
			lg.Error("nack failed", zap.Error(nerr))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		lg.Error("ack failed", zap.Error(err))
	}
}

func safeHandle(ctx context.Context, handle Handler, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handle(ctx, body)
}
