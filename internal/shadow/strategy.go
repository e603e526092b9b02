package shadow

import "context"

// Strategy is the queue-draining policy contract shared by Realtime and
// Periodic (spec.md §4.6 "Strategy common contract"). Put/Clear/
// RemainingCapacity delegate to the underlying Queue; Start/Stop own the
// goroutine(s) that drain it.
type Strategy interface {
	// Start begins draining the queue with the given parallelism. Starting
	// an already-started strategy is a no-op.
	Start(ctx context.Context, parallelism int) error
	// Stop is idempotent. It cancels in-flight workers and waits for them
	// to reach a safe point (before their next local/cloud write) before
	// returning, so no in-flight request's SyncInformation update is lost.
	Stop()
	Put(ctx context.Context, req Request) error
	Clear()
	RemainingCapacity() int
}
