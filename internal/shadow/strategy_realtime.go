package shadow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/tonimelisma/shadowsync/internal/retry"
	"golang.org/x/sync/semaphore"
)

// RealtimeStrategy is a worker pool of N ≥ 1 concurrent executors
// (spec.md §4.5). A single dispatcher goroutine blocks on Queue.Take and
// fans out execution behind a semaphore sized to the configured
// parallelism — between Take and Execute the request is "in flight", not
// present in the queue, so a fresh request for the same key may enter
// while the dispatcher is already working it (§4.5: no separate in-flight
// index is needed, because Execute is idempotent and conflicts resolve
// via version-based merge).
type RealtimeStrategy struct {
	queue    *Queue
	sc       *Context
	logger   *slog.Logger
	retryCfg retry.Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sem     *semaphore.Weighted
	running bool
}

// NewRealtimeStrategy builds a Realtime strategy over queue/sc using
// retryCfg for the per-request retry policy (spec.md §4.5's RetryConfig).
func NewRealtimeStrategy(queue *Queue, sc *Context, logger *slog.Logger, retryCfg retry.Config) *RealtimeStrategy {
	if logger == nil {
		logger = slog.Default()
	}

	return &RealtimeStrategy{queue: queue, sc: sc, logger: logger, retryCfg: retryCfg}
}

// Start implements Strategy. parallelism < 1 is raised to 1, matching the
// spec's "default 1" worker count.
func (s *RealtimeStrategy) Start(ctx context.Context, parallelism int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if parallelism < 1 {
		parallelism = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.sem = semaphore.NewWeighted(int64(parallelism))
	s.running = true

	s.wg.Add(1)

	go s.dispatch(runCtx)

	s.logger.Info("shadow: realtime strategy started", slog.Int("parallelism", parallelism))

	return nil
}

// dispatch is the single goroutine that blocks on Take and fans work out
// behind the semaphore. It exits when ctx is canceled (Take then returns
// ctx.Err(), the Interrupted case of §4.5).
func (s *RealtimeStrategy) dispatch(ctx context.Context) {
	defer s.wg.Done()

	for {
		req, err := s.queue.Take(ctx)
		if err != nil {
			return
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}

		s.wg.Add(1)

		go func(req Request) {
			defer s.wg.Done()
			defer s.sem.Release(1)

			s.executeWithRetry(ctx, req)
		}(req)
	}
}

func (s *RealtimeStrategy) executeWithRetry(ctx context.Context, req Request) {
	err := retry.Do(ctx, s.retryCfg, IsRetryable, func(ctx context.Context) error {
		return req.Execute(ctx, s.sc)
	})

	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	case IsSkip(err):
		s.logger.Warn("shadow: dropping request after permanent error",
			slog.String("key", req.Key().String()),
			slog.String("tag", req.Tag().String()),
			slog.String("error", err.Error()),
		)
	case IsFatal(err):
		s.logger.Error("shadow: fatal error, stopping realtime strategy",
			slog.String("key", req.Key().String()),
			slog.String("error", err.Error()),
		)

		go s.Stop()
	default:
		s.logger.Error("shadow: request failed after retries exhausted",
			slog.String("key", req.Key().String()),
			slog.String("tag", req.Tag().String()),
			slog.String("error", err.Error()),
		)
	}
}

// Stop implements Strategy: idempotent, waits for in-flight executors.
func (s *RealtimeStrategy) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	running := s.running
	s.running = false
	s.mu.Unlock()

	if !running || cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
}

func (s *RealtimeStrategy) Put(ctx context.Context, req Request) error { return s.queue.Offer(ctx, req) }
func (s *RealtimeStrategy) Clear()                                    { s.queue.Clear() }
func (s *RealtimeStrategy) RemainingCapacity() int                    { return s.queue.RemainingCapacity() }
