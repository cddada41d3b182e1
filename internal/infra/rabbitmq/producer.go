package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/retry"

	"github.com/resizr/resizr/internal/model"
)

// Producer publishes resize job messages to the durable queue.
type Producer struct {
	client   *Client
	strategy retry.Strategy
}

// NewProducer creates a new Producer.
//   - client: established broker client
//   - s: retry strategy for publish attempts
func NewProducer(client *Client, s retry.Strategy) *Producer {
	return &Producer{
		client:   client,
		strategy: s,
	}
}

// Publish serializes the message to JSON and sends it to the job queue as a
// persistent delivery, retrying per the configured strategy.
func (p *Producer) Publish(ctx context.Context, msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = retry.Do(func() error {
		return p.client.ch.PublishWithContext(
			ctx,
			"",             // default exchange
			p.client.queue, // routing key = queue name
			false,          // mandatory
			false,          // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         data,
			},
		)
	}, p.strategy)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}
