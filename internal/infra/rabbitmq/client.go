package rabbitmq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// ErrBadMessage marks a delivery that can never be processed successfully
// (malformed body, record gone). The consumer rejects such messages without
// requeueing them.
var ErrBadMessage = errors.New("unprocessable message")

// Client wraps an AMQP connection with a single channel and the durable
// queue used for resize jobs.
type Client struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// New dials the broker, opens a channel and declares the durable job queue.
func New(url, queue string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &Client{
		conn:  conn,
		ch:    ch,
		queue: queue,
	}, nil
}

// Connect dials the broker with the given bounded retry strategy. Exhausting
// the attempts returns the last error; callers treat that as fatal.
func Connect(url, queue string, strategy retry.Strategy) (*Client, error) {
	var client *Client

	err := retry.Do(func() error {
		var dialErr error
		client, dialErr = New(url, queue)
		if dialErr != nil {
			zlog.Logger.Err(dialErr).Msg("failed to connect to rabbitmq, retrying")
		}
		return dialErr
	}, strategy)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", strategy.Attempts, err)
	}

	return client, nil
}

// Ping reports whether the underlying connection is still open.
func (c *Client) Ping() error {
	if c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Close closes the channel and connection.
func (c *Client) Close() error {
	if err := c.ch.Close(); err != nil {
		_ = c.conn.Close()
		return err
	}
	return c.conn.Close()
}
