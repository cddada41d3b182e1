package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"
)

// handler defines the interface for processing job message bodies. A nil
// return means the terminal record write happened and the message may be
// acked. ErrBadMessage rejects without requeue; any other error requeues.
type handler interface {
	Handle(ctx context.Context, body []byte) error
}

// Consumer drains the job queue one message at a time. QoS is pinned to a
// single unacked delivery so a slow transform never pulls more work onto
// this process.
type Consumer struct {
	client  *Client
	handler handler
}

// NewConsumer creates a new Consumer over an established client.
func NewConsumer(client *Client, h handler) *Consumer {
	return &Consumer{
		client:  client,
		handler: h,
	}
}

// Consume receives deliveries until the context is canceled or the channel
// closes. Acknowledgement is deferred until the handler returns, which by
// contract is after the terminal status write, so a crash mid-processing
// redelivers the message.
func (c *Consumer) Consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	if err := c.client.ch.Qos(1, 0, false); err != nil {
		zlog.Logger.Err(err).Msg("failed to set channel qos")
		return
	}

	deliveries, err := c.client.ch.Consume(
		c.client.queue,
		"",    // consumer tag
		false, // autoAck: acks are explicit
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to start consuming")
		return
	}

	zlog.Logger.Info().Str("queue", c.client.queue).Msg("starting consumer")

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("shutdown signal received, stopping consumer")
			return

		case d, ok := <-deliveries:
			if !ok {
				zlog.Logger.Warn().Msg("delivery channel closed, stopping consumer")
				return
			}

			c.dispatch(ctx, d)
		}
	}
}

// dispatch runs the handler on a single delivery and settles it: a nil
// result acks, ErrBadMessage rejects without requeue, anything else nacks
// back onto the queue for redelivery.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	err := c.handler.Handle(ctx, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			zlog.Logger.Err(ackErr).Msg("failed to ack message")
		}

	case errors.Is(err, ErrBadMessage):
		zlog.Logger.Err(err).
			Str("message", string(d.Body)).
			Msg("rejecting unprocessable message")
		if nackErr := d.Nack(false, false); nackErr != nil {
			zlog.Logger.Err(nackErr).Msg("failed to reject message")
		}

	default:
		zlog.Logger.Err(err).
			Str("message", string(d.Body)).
			Msg("failed to process message, requeueing")
		if nackErr := d.Nack(false, true); nackErr != nil {
			zlog.Logger.Err(nackErr).Msg("failed to nack message")
		}
		// Brief pause so a dead dependency does not spin the
		// same message in a hot redelivery loop.
		time.Sleep(500 * time.Millisecond)
	}
}
