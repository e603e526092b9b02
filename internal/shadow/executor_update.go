package shadow

import (
	"context"
	"errors"
	"fmt"
)

// execCloudUpdate implements spec.md §4.4.1: push a locally-originated
// document update to the cloud.
func execCloudUpdate(ctx context.Context, sc *Context, req *CloudUpdateRequest) error {
	key := req.ShadowKey

	lock, info, err := lockAndLoadInfo(ctx, sc, key, "cloud_update")
	if err != nil {
		return err
	}
	defer lock.Unlock()

	unchanged, err := DocumentsEqual(req.Document, info.LastSyncedDocument)
	if err != nil {
		return Skip(key, "cloud_update.compare", err)
	}

	if unchanged {
		return nil
	}

	merged, err := ApplyNullLeafMerge(info.LastSyncedDocument, req.Document)
	if err != nil {
		return Skip(key, "cloud_update.merge", err)
	}

	body, err := SetVersion(merged, info.CloudVersion+1)
	if err != nil {
		return Skip(key, "cloud_update.set_version", err)
	}

	newVersion, err := sc.Cloud.UpdateThingShadow(ctx, key, body, info.CloudVersion)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			if enqErr := sc.enqueueFullShadow(ctx, key); enqErr != nil {
				return Retryable(key, "cloud_update.promote_conflict", enqErr)
			}

			return nil
		}

		return err
	}

	info.CloudVersion = newVersion
	info.LastSyncedDocument = body
	info.LastSyncTime = NowEpoch()

	// The local document that produced this push already landed in the
	// local store before the Handler ever enqueued the request (its
	// PushCloudUpdate doc comment: "called when a local write completed"),
	// so bookkeeping re-reads the local store's own version rather than
	// leaving LocalVersion stale until the next full reconcile.
	if localDoc, err := sc.Store.GetShadow(ctx, key); err == nil && localDoc != nil {
		info.LocalVersion = localDoc.Version
	}

	return saveSyncInfoOrRetry(ctx, sc, key, info, "cloud_update")
}

// execLocalUpdate implements spec.md §4.4.2: symmetric to execCloudUpdate,
// but writes the local store. The localVersion the local store hands back
// must advance monotonically (invariant I2).
func execLocalUpdate(ctx context.Context, sc *Context, req *LocalUpdateRequest) error {
	key := req.ShadowKey

	lock, info, err := lockAndLoadInfo(ctx, sc, key, "local_update")
	if err != nil {
		return err
	}
	defer lock.Unlock()

	unchanged, err := DocumentsEqual(req.Document, info.LastSyncedDocument)
	if err != nil {
		return Skip(key, "local_update.compare", err)
	}

	if unchanged {
		return nil
	}

	merged, err := ApplyNullLeafMerge(info.LastSyncedDocument, req.Document)
	if err != nil {
		return Skip(key, "local_update.merge", err)
	}

	newVersion, err := sc.Store.UpdateShadow(ctx, key, merged)
	if err != nil {
		return Retryable(key, "local_update.write", err)
	}

	if newVersion < info.LocalVersion {
		return Fatal(key, "local_update", fmt.Errorf("local version regressed: %d -> %d", info.LocalVersion, newVersion))
	}

	info.LocalVersion = newVersion
	info.LastSyncedDocument = merged
	info.LastSyncTime = NowEpoch()

	return saveSyncInfoOrRetry(ctx, sc, key, info, "local_update")
}
