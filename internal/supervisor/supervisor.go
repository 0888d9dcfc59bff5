// Package supervisor runs named pools of worker goroutines and keeps them
// alive: a worker that returns an error or panics is relaunched after a
// jittered backoff until its pool is stopped.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

const (
	restartBaseDelay = time.Second
	restartMaxDelay  = 30 * time.Second
	restartJitterPct = 0.2
)

// Entry is one worker loop. Returning nil stops that worker for good;
// returning an error (or panicking) gets it relaunched.
type Entry func(ctx context.Context, worker int) error

type pool struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Supervisor struct {
	logger *slog.Logger

	mu    sync.Mutex
	pools map[string]*pool
}

func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		logger: logger,
		pools:  make(map[string]*pool),
	}
}

// Restart stops any pool registered under tag, waits for its workers to
// drain, and launches count fresh workers. Safe to call repeatedly.
func (s *Supervisor) Restart(ctx context.Context, tag string, count int, entry Entry) {
	if count <= 0 {
		count = 1
	}

	s.mu.Lock()
	old := s.pools[tag]
	s.mu.Unlock()
	if old != nil {
		old.cancel()
		<-old.done
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p := &pool{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.pools[tag] = p
	s.mu.Unlock()

	s.logger.Info("supervisor_pool_start", "tag", tag, "workers", count)

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.superviseWorker(poolCtx, tag, worker, entry)
		}(i)
	}
	go func() {
		wg.Wait()
		close(p.done)
	}()
}

func (s *Supervisor) superviseWorker(ctx context.Context, tag string, worker int, entry Entry) {
	delay := restartBaseDelay
	for {
		err := runEntry(ctx, worker, entry)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			s.logger.Info("supervisor_worker_done", "tag", tag, "worker", worker)
			return
		}
		s.logger.Error("supervisor_worker_crashed", "tag", tag, "worker", worker, "error", err, "restart_in", delay)

		timer := time.NewTimer(jitteredDelay(delay, restartJitterPct))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay *= 2
		if delay > restartMaxDelay {
			delay = restartMaxDelay
		}
	}
}

func runEntry(ctx context.Context, worker int, entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return entry(ctx, worker)
}

// Stop cancels the pool under tag and waits for it to drain.
func (s *Supervisor) Stop(tag string) {
	s.mu.Lock()
	p := s.pools[tag]
	delete(s.pools, tag)
	s.mu.Unlock()
	if p == nil {
		return
	}
	p.cancel()
	<-p.done
	s.logger.Info("supervisor_pool_stopped", "tag", tag)
}

// Wait blocks until every registered pool has drained.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	pools := make([]*pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	s.mu.Unlock()
	for _, p := range pools {
		<-p.done
	}
}

// jitteredDelay spreads restarts so a pool that died together does not come
// back in lockstep.
func jitteredDelay(d time.Duration, pct float64) time.Duration {
	if d <= 0 || pct <= 0 {
		return d
	}
	spread := float64(d) * pct
	offset := (rand.Float64()*2 - 1) * spread
	out := time.Duration(float64(d) + offset)
	if out < 0 {
		return 0
	}
	return out
}
