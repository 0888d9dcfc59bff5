package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RegisterHandler binds a handler to a task name. Must be called before Run.
func (c *Client) RegisterHandler(task string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[task] = h
}

// Run consumes jobs until the context is canceled. Each call opens its own
// channel, so a worker pool runs several Run loops against one connection.
// A closed delivery stream returns an error so the supervisor relaunches the
// loop.
func (c *Client) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("queue: open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("queue: set qos: %w", err)
	}
	deliveries, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue: consume %s: %w", c.cfg.Queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("queue: delivery stream closed for %s", c.cfg.Queue)
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, d amqp.Delivery) {
	task := d.Type
	if task == "" {
		task = d.RoutingKey
	}

	c.mu.RLock()
	h, ok := c.handlers[task]
	c.mu.RUnlock()
	if !ok {
		c.logger.Warn("job_unknown_task", "task", task, "message_id", d.MessageId)
		_ = d.Ack(false)
		return
	}

	err := runHandler(ctx, h, d.Body)
	switch {
	case err == nil:
		c.logger.Debug("job_done", "task", task, "message_id", d.MessageId)
	case errors.Is(err, ErrPoison):
		c.logger.Warn("job_poison", "task", task, "message_id", d.MessageId, "error", err)
	default:
		c.logger.Error("job_failed", "task", task, "message_id", d.MessageId, "error", err)
	}
	// Failed jobs are dropped, not requeued.
	_ = d.Ack(false)
}

func runHandler(ctx context.Context, h Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}

// JSONHandler adapts a typed handler. Payloads that fail to decode are
// reported as poison.
func JSONHandler[T any](fn func(ctx context.Context, msg T) error) Handler {
	return func(ctx context.Context, payload []byte) error {
		var msg T
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: %v", ErrPoison, err)
		}
		return fn(ctx, msg)
	}
}
