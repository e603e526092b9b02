package shadow

import (
	"context"
	"errors"
)

// lockAndLoadInfo acquires the per-shadow write lock and loads its
// SyncInformation row, failing fatally if the row is missing — invariant
// I1 guarantees it exists for any key in the active sync configuration
// once the strategy has started. Callers must release the returned lock.
func lockAndLoadInfo(ctx context.Context, sc *Context, key Key, op string) (ScopedLock, *Information, error) {
	lock, err := sc.Store.Lock(ctx, key)
	if err != nil {
		return nil, nil, Retryable(key, op+".lock", err)
	}

	info, err := sc.Store.GetSyncInfo(ctx, key)
	if err != nil {
		lock.Unlock()
		return nil, nil, Retryable(key, op+".get_sync_info", err)
	}

	if info == nil {
		lock.Unlock()
		return nil, nil, Fatal(key, op, errors.New("sync information missing under lock"))
	}

	return lock, info, nil
}

// saveSyncInfoOrRetry persists info, classifying a store failure as
// Retryable — the write is always the last step of an executor (spec.md
// §5: "a request aborted mid-execute leaves sync information unchanged"),
// so retrying re-runs the whole reconcile rather than risking a partial
// update.
func saveSyncInfoOrRetry(ctx context.Context, sc *Context, key Key, info *Information, op string) error {
	if err := sc.Store.UpdateSyncInfo(ctx, info); err != nil {
		return Retryable(key, op+".save_sync_info", err)
	}

	return nil
}
