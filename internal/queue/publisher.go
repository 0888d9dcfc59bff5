package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Enqueue publishes one job under the given task name. Payload is already
// JSON; it is sent persistent with a fresh message id.
func (c *Client) Enqueue(ctx context.Context, task string, payload []byte) error {
	if task == "" {
		return fmt.Errorf("queue: enqueue: empty task name")
	}

	ch, err := c.publisherChannel()
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", task, err)
	}

	err = ch.PublishWithContext(ctx, c.cfg.Exchange, c.cfg.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         task,
		Body:         payload,
	})
	if err != nil {
		c.dropPublisherChannel(ch)
		return fmt.Errorf("queue: enqueue %s: %w", task, err)
	}
	return nil
}

func (c *Client) publisherChannel() (*amqp.Channel, error) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if c.pubCh != nil && !c.pubCh.IsClosed() {
		return c.pubCh, nil
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	c.pubCh = ch
	return ch, nil
}

// dropPublisherChannel discards a channel that failed so the next publish
// opens a fresh one.
func (c *Client) dropPublisherChannel(ch *amqp.Channel) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if c.pubCh == ch {
		_ = c.pubCh.Close()
		c.pubCh = nil
	}
}
