package shadow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Handler is the façade of spec.md §4.7: it owns the queue, the active
// Strategy, and the Sync Context, translates external events (local write
// completed, cloud event received, connectivity up/down, configuration
// change, direction change) into enqueues, and (re)starts/stops
// strategies and seeds full syncs.
type Handler struct {
	mu sync.Mutex

	queue    *Queue
	strategy Strategy
	sc       *Context
	store    Store

	// seedGroup collapses concurrent seed() calls for the same key — e.g.
	// an OnConnectionResumed racing a SetDirection for the same shadow —
	// into a single full-sync request instead of enqueuing one per caller.
	seedGroup singleflight.Group

	direction   Direction
	syncedKeys  map[Key]struct{}
	parallelism int

	logger *slog.Logger

	// OnDirectionBoundary fires when SetDirection crosses a
	// DeviceToCloud<->CloudToDevice edge, so the cloud collaborator can
	// re-subscribe or unsubscribe its push stream (spec.md §4.7). Optional.
	OnDirectionBoundary func(ctx context.Context, old, new Direction)
}

// NewHandler builds a Handler over store/cloud with the given initial
// direction, synced-key set, and bounded queue capacity (0 uses the
// spec default of 1024).
func NewHandler(store Store, cloud CloudClient, logger *slog.Logger, queueCapacity int, dir Direction, syncedKeys []Key) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	queue := NewQueue(queueCapacity)
	sc := NewContext(store, cloud, logger, dir)
	sc.Enqueue = queue.Offer

	set := make(map[Key]struct{}, len(syncedKeys))
	for _, k := range syncedKeys {
		set[k] = struct{}{}
	}

	return &Handler{
		queue:      queue,
		sc:         sc,
		store:      store,
		direction:  dir,
		syncedKeys: set,
		logger:     logger,
	}
}

// Context returns the Sync Context backing this handler's executors, for
// constructing the Strategy passed to Start/SetStrategy over the same
// Store/Cloud handles.
func (h *Handler) Context() *Context { return h.sc }

// Queue returns the Merging Blocking Queue backing this handler, for
// constructing the Strategy passed to Start/SetStrategy.
func (h *Handler) Queue() *Queue { return h.queue }

// Start ensures a SyncInformation row exists for every synced key (I1),
// starts strategy at the given parallelism, and seeds a full sync for
// every synced key (spec.md §4.7).
func (h *Handler) Start(ctx context.Context, strategy Strategy, parallelism int) error {
	h.mu.Lock()
	h.strategy = strategy
	h.parallelism = parallelism
	keys := h.keysLocked()
	h.mu.Unlock()

	if err := h.ensureSyncInfo(ctx, keys); err != nil {
		return fmt.Errorf("shadow: handler start: %w", err)
	}

	if err := strategy.Start(ctx, parallelism); err != nil {
		return fmt.Errorf("shadow: handler start: %w", err)
	}

	return h.seed(ctx, keys)
}

// Stop stops the active strategy. Safe to call when not started.
func (h *Handler) Stop() {
	h.mu.Lock()
	strategy := h.strategy
	h.mu.Unlock()

	if strategy != nil {
		strategy.Stop()
	}
}

// SetStrategy stops the current strategy, swaps in s, and restarts with
// the last-known parallelism (spec.md §4.7 "set_strategy").
func (h *Handler) SetStrategy(ctx context.Context, s Strategy) error {
	h.mu.Lock()
	old := h.strategy
	parallelism := h.parallelism
	h.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	return h.Start(ctx, s, parallelism)
}

// SetDirection records the new direction, signals OnDirectionBoundary at
// a DeviceToCloud<->CloudToDevice edge, and re-seeds. Per spec.md §9 open
// question (c), the queue itself is preserved across the change —
// direction gating at enqueue time is sufficient.
func (h *Handler) SetDirection(ctx context.Context, dir Direction) error {
	h.mu.Lock()
	old := h.direction
	h.direction = dir
	h.sc.SetDirection(dir)
	keys := h.keysLocked()
	h.mu.Unlock()

	if crossesDeviceCloudBoundary(old, dir) && h.OnDirectionBoundary != nil {
		h.OnDirectionBoundary(ctx, old, dir)
	}

	return h.seed(ctx, keys)
}

func crossesDeviceCloudBoundary(old, newDir Direction) bool {
	return (old == DeviceToCloud && newDir == CloudToDevice) ||
		(old == CloudToDevice && newDir == DeviceToCloud)
}

// Reseed enqueues a full-sync reconcile for every currently synced key,
// the same seeding SetDirection/Start perform as a side effect. Callers
// (e.g. the SIGHUP config-reload path) use this to pick up local writes
// that landed directly in the store outside the running daemon, such as
// a CLI "shadow set"/"shadow delete".
func (h *Handler) Reseed(ctx context.Context) error {
	h.mu.Lock()
	keys := h.keysLocked()
	h.mu.Unlock()

	return h.seed(ctx, keys)
}

// AddSyncedKey adds key to the active sync configuration: ensures its
// SyncInformation row exists and seeds a full sync for it.
func (h *Handler) AddSyncedKey(ctx context.Context, key Key) error {
	h.mu.Lock()
	h.syncedKeys[key] = struct{}{}
	h.mu.Unlock()

	if err := h.ensureSyncInfo(ctx, []Key{key}); err != nil {
		return err
	}

	return h.seed(ctx, []Key{key})
}

// RemoveSyncedKey removes key from the active sync configuration and
// deletes its SyncInformation row.
func (h *Handler) RemoveSyncedKey(ctx context.Context, key Key) error {
	h.mu.Lock()
	delete(h.syncedKeys, key)
	h.mu.Unlock()

	return h.store.DeleteSyncInfo(ctx, key)
}

// OnConnectionInterrupted stops the strategy (spec.md §6). Stopping the
// cloud collaborator's own push subscription is its caller's
// responsibility — the core only owns the strategy lifecycle.
func (h *Handler) OnConnectionInterrupted() {
	h.Stop()
}

// OnConnectionResumed restarts the strategy (re-seeding as Start always
// does) using the last-known strategy and parallelism.
func (h *Handler) OnConnectionResumed(ctx context.Context) error {
	h.mu.Lock()
	strategy := h.strategy
	parallelism := h.parallelism
	h.mu.Unlock()

	if strategy == nil {
		return nil
	}

	return h.Start(ctx, strategy, parallelism)
}

// PushCloudUpdate is called when a local write completed; it enqueues a
// CloudUpdateRequest to push the change to the cloud, subject to the
// synced-set and direction gates of spec.md §4.7. Not-synced or
// direction-forbidden pushes are silently dropped — the Handler never
// surfaces an error from a push method.
func (h *Handler) PushCloudUpdate(ctx context.Context, key Key, localDocument []byte) error {
	if !h.isSynced(key) || !h.sc.Direction().AllowsCloudUpdate() {
		return nil
	}

	return h.put(ctx, &CloudUpdateRequest{ShadowKey: key, Document: localDocument})
}

// PushLocalUpdate is called when a cloud event was received; it enqueues
// a LocalUpdateRequest to apply the change locally.
func (h *Handler) PushLocalUpdate(ctx context.Context, key Key, cloudDocument []byte) error {
	if !h.isSynced(key) || !h.sc.Direction().AllowsLocalUpdate() {
		return nil
	}

	return h.put(ctx, &LocalUpdateRequest{ShadowKey: key, Document: cloudDocument})
}

// PushCloudDelete is called when a local delete completed; it enqueues a
// CloudDeleteRequest.
func (h *Handler) PushCloudDelete(ctx context.Context, key Key) error {
	if !h.isSynced(key) || !h.sc.Direction().AllowsCloudDelete() {
		return nil
	}

	return h.put(ctx, &CloudDeleteRequest{ShadowKey: key})
}

// PushLocalDelete is called when a cloud delete was observed; it enqueues
// a LocalDeleteRequest. cloudVersion is the cloud version the delete was
// observed at.
func (h *Handler) PushLocalDelete(ctx context.Context, key Key, cloudVersion uint64) error {
	if !h.isSynced(key) || !h.sc.Direction().AllowsLocalDelete() {
		return nil
	}

	return h.put(ctx, &LocalDeleteRequest{ShadowKey: key, CloudVersion: cloudVersion})
}

func (h *Handler) isSynced(key Key) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.syncedKeys[key]

	return ok
}

func (h *Handler) activeStrategy() Strategy {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.strategy
}

func (h *Handler) put(ctx context.Context, req Request) error {
	strategy := h.activeStrategy()
	if strategy == nil {
		return nil
	}

	return strategy.Put(ctx, req)
}

func (h *Handler) keysLocked() []Key {
	keys := make([]Key, 0, len(h.syncedKeys))
	for k := range h.syncedKeys {
		keys = append(keys, k)
	}

	return keys
}

func (h *Handler) ensureSyncInfo(ctx context.Context, keys []Key) error {
	for _, key := range keys {
		info, err := h.store.GetSyncInfo(ctx, key)
		if err != nil {
			return fmt.Errorf("shadow: checking sync info for %s: %w", key, err)
		}

		if info != nil {
			continue
		}

		row := &Information{Key: key, LastSyncTime: NowEpoch()}
		if err := h.store.UpsertSyncInfoIfAbsent(ctx, row); err != nil {
			return fmt.Errorf("shadow: creating sync info for %s: %w", key, err)
		}
	}

	return nil
}

// seed enqueues the full-sync seed request for each key, per the active
// direction (spec.md §4.7). Per §9 open question (a), seeding is skipped
// only when keys is empty — a conservative reading of the ambiguous
// early-bail check in the source this spec was distilled from.
func (h *Handler) seed(ctx context.Context, keys []Key) error {
	if len(keys) == 0 {
		return nil
	}

	dir := h.sc.Direction()
	warnedFull := false

	for _, key := range keys {
		if !warnedFull && h.queue.RemainingCapacity() == 0 {
			h.logger.Warn("shadow: full-sync seed blocked, queue at capacity")

			warnedFull = true
		}

		_, err, _ := h.seedGroup.Do(key.String(), func() (any, error) {
			return nil, h.put(ctx, seedRequestFor(key, dir))
		})
		if err != nil {
			return fmt.Errorf("shadow: seeding %s: %w", key, err)
		}
	}

	return nil
}

func seedRequestFor(key Key, dir Direction) Request {
	switch dir {
	case DeviceToCloud:
		return &OverwriteCloudRequest{ShadowKey: key}
	case CloudToDevice:
		return &OverwriteLocalRequest{ShadowKey: key}
	default:
		return &FullShadowRequest{ShadowKey: key}
	}
}
