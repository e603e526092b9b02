package shadow

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Context is the read-only bundle passed to every request execution
// (spec.md §4 "Sync Context"): the local store handle, the cloud client
// handle, and the direction currently in effect. Direction is mutable at
// runtime (the Handler flips it via SetDirection on a config/API change),
// so it is read through an atomic rather than stored as a plain field —
// in-flight executors must observe the direction as of the moment they
// check it, not the moment the Context was built.
type Context struct {
	Store  Store
	Cloud  CloudClient
	Logger *slog.Logger

	// Enqueue re-submits a request to the active strategy's queue. It backs
	// the "on version conflict, enqueue a FullShadow for this key" steps in
	// §4.4.1/§4.4.2 — an executor cannot call queue.Offer directly without
	// creating an import cycle between the queue and the executors that run
	// against it, so the Handler wires this closure in at start time.
	Enqueue func(ctx context.Context, req Request) error

	direction atomic.Int32
}

// NewContext builds a Context with the given collaborators and initial
// direction. logger defaults to slog.Default() if nil.
func NewContext(store Store, cloud CloudClient, logger *slog.Logger, dir Direction) *Context {
	if logger == nil {
		logger = slog.Default()
	}

	sc := &Context{Store: store, Cloud: cloud, Logger: logger}
	sc.direction.Store(int32(dir))

	return sc
}

// Direction returns the currently configured sync direction.
func (sc *Context) Direction() Direction {
	return Direction(sc.direction.Load())
}

// SetDirection atomically updates the direction seen by in-flight and
// future executors.
func (sc *Context) SetDirection(dir Direction) {
	sc.direction.Store(int32(dir))
}

// enqueueFullShadow promotes a version conflict to a full reconcile. A nil
// Enqueue (e.g. in a unit test driving an executor directly) is treated as
// a no-op rather than a panic, matching the "Handler never throws" posture
// of the rest of the core.
func (sc *Context) enqueueFullShadow(ctx context.Context, key Key) error {
	if sc.Enqueue == nil {
		return nil
	}

	return sc.Enqueue(ctx, &FullShadowRequest{ShadowKey: key})
}
