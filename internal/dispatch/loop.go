// Package dispatch runs the front process of the bot: it long-polls Telegram
// for updates and hands non-empty batches to the job queue for the worker
// pool to process.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Pranav24205/lydia/internal/telegram"
)

// TaskProcessBatch is the job queue task name for update batches.
const TaskProcessBatch = "process_batch"

const pollErrorWait = time.Second

// Batch is one enqueued unit of work: every update returned by a single poll.
type Batch struct {
	ID      string            `json:"id"`
	Updates []telegram.Update `json:"updates"`
}

// Source produces updates; satisfied by *telegram.Client.
type Source interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error)
}

// Enqueuer accepts jobs; satisfied by *queue.Client.
type Enqueuer interface {
	Enqueue(ctx context.Context, task string, payload []byte) error
}

type Loop struct {
	Source      Source
	Queue       Enqueuer
	Logger      *slog.Logger
	PollTimeout time.Duration

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// Run polls until the context is canceled. Poll and enqueue failures are
// logged and retried on the next iteration; the Telegram offset only advances
// on a successful fetch, so a lost batch is bounded by one poll.
func (l *Loop) Run(ctx context.Context) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := l.sleep
	if sleep == nil {
		sleep = waitFor
	}

	logger.Info("dispatch_start", "poll_timeout", l.PollTimeout)

	var offset int64
	for {
		if ctx.Err() != nil {
			logger.Info("dispatch_stop")
			return nil
		}

		updates, next, err := l.Source.GetUpdates(ctx, offset, l.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("dispatch_stop")
				return nil
			}
			if telegram.IsPollTimeout(err) {
				continue
			}
			logger.Warn("dispatch_poll_error", "error", err)
			sleep(ctx, pollErrorWait)
			continue
		}
		offset = next
		if len(updates) == 0 {
			continue
		}

		batch := Batch{ID: uuid.NewString(), Updates: updates}
		payload, err := json.Marshal(batch)
		if err != nil {
			logger.Error("dispatch_encode_error", "batch_id", batch.ID, "error", err)
			continue
		}
		if err := l.Queue.Enqueue(ctx, TaskProcessBatch, payload); err != nil {
			logger.Error("dispatch_enqueue_error", "batch_id", batch.ID, "updates", len(updates), "error", err)
			continue
		}

		if len(updates) == 1 {
			logger.Info("dispatched one update", "batch_id", batch.ID)
		} else {
			logger.Info("dispatched batch of updates", "batch_id", batch.ID, "updates", len(updates))
		}
	}
}

func waitFor(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
