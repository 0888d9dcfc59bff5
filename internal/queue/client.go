// Package queue is the RabbitMQ-backed background job pipe between the
// dispatcher and the worker pool. Jobs are persistent JSON messages routed by
// task name; delivery is at-least-once and handlers tolerate redelivery.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPoison marks a job whose payload cannot be decoded. Poison jobs are
// logged and acked so they never wedge the queue.
var ErrPoison = errors.New("queue: poison job")

// Handler processes one job payload. A returned error drops the job after
// logging; there is no redelivery on handler failure.
type Handler func(ctx context.Context, payload []byte) error

type Client struct {
	cfg    Config
	logger *slog.Logger
	conn   *amqp.Connection

	mu       sync.RWMutex
	handlers map[string]Handler

	pubMu sync.Mutex
	pubCh *amqp.Channel
}

// Connect dials the broker and declares the durable topology. A failure here
// is fatal to the caller; the broker is a hard dependency.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("queue: missing broker url")
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Dial: amqp.DefaultDial(cfg.ConnectTimeout)})
	if err != nil {
		return nil, fmt.Errorf("queue: dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue: open setup channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue: declare exchange %s: %w", cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue: declare queue %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.Queue, cfg.Exchange, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue: bind queue %s: %w", cfg.Queue, err)
	}

	logger.Info("queue_connected", "exchange", cfg.Exchange, "queue", cfg.Queue)
	return &Client{
		cfg:      cfg,
		logger:   logger,
		conn:     conn,
		handlers: make(map[string]Handler),
	}, nil
}

func (c *Client) Close() error {
	c.pubMu.Lock()
	if c.pubCh != nil {
		_ = c.pubCh.Close()
		c.pubCh = nil
	}
	c.pubMu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
