package shadow

import (
	"context"
	"errors"
)

// maxFullShadowRestarts bounds the "restart FullShadow, re-read C" loop
// spec.md §4.4.5 prescribes for a cloud version conflict during the
// three-way merge push, so a shadow under constant contention eventually
// surfaces a Retryable error instead of spinning forever under the lock.
const maxFullShadowRestarts = 3

// execFullShadow implements spec.md §4.4.5: a three-way reconcile of both
// sides against the last synced document.
func execFullShadow(ctx context.Context, sc *Context, req *FullShadowRequest) error {
	key := req.ShadowKey

	lock, err := sc.Store.Lock(ctx, key)
	if err != nil {
		return Retryable(key, "full_shadow.lock", err)
	}
	defer lock.Unlock()

	return reconcileFullLocked(ctx, sc, key, 0)
}

// reconcileFullLocked runs one pass of the decision table in spec.md
// §4.4.5. It is called with the per-shadow lock already held, and
// re-reads SyncInformation itself on every attempt since a restart means
// the cloud side has moved since the last read.
func reconcileFullLocked(ctx context.Context, sc *Context, key Key, attempt int) error {
	if attempt > maxFullShadowRestarts {
		return Retryable(key, "full_shadow", errors.New("too many cloud version conflicts during three-way reconcile"))
	}

	info, err := sc.Store.GetSyncInfo(ctx, key)
	if err != nil {
		return Retryable(key, "full_shadow.get_sync_info", err)
	}

	if info == nil {
		return Fatal(key, "full_shadow", errors.New("sync information missing under lock"))
	}

	cloudDoc, err := sc.Cloud.GetThingShadow(ctx, key)
	if err != nil {
		return err
	}

	localDoc, err := sc.Store.GetShadow(ctx, key)
	if err != nil {
		return Retryable(key, "full_shadow.get_local", err)
	}

	dir := sc.Direction()

	cloudPresent := cloudDoc != nil
	localPresent := localDoc != nil
	cloudUnchanged := cloudPresent && cloudDoc.Version == info.CloudVersion
	localUnchanged := localPresent && localDoc.Version == info.LocalVersion

	switch {
	case !cloudPresent && !localPresent:
		return clearSyncInfoLocked(ctx, sc, info)

	case !cloudPresent && localPresent && localUnchanged:
		// Cloud was deleted elsewhere while local held still: propagate the
		// delete down to local too.
		if !dir.AllowsLocalDelete() {
			return nil
		}

		return deleteLocalReconcileLocked(ctx, sc, info)

	case !cloudPresent && localPresent && !localUnchanged:
		// Local diverged since the last sync and cloud has nothing to
		// conflict with: push it as a fresh cloud write.
		if !dir.AllowsCloudUpdate() {
			return nil
		}

		return pushLocalToCloudLocked(ctx, sc, info, localDoc, attempt)

	case cloudPresent && !localPresent && cloudUnchanged:
		// Local was removed during a disconnect while cloud held still:
		// propagate the delete up to cloud too.
		if !dir.AllowsCloudDelete() {
			return nil
		}

		return deleteCloudReconcileLocked(ctx, sc, info)

	case cloudPresent && !localPresent && !cloudUnchanged:
		if !dir.AllowsLocalUpdate() {
			return nil
		}

		return writeCloudToLocalLocked(ctx, sc, info, cloudDoc)

	case cloudPresent && localPresent && cloudUnchanged && localUnchanged:
		return nil

	case cloudPresent && localPresent && !cloudUnchanged && localUnchanged:
		if !dir.AllowsLocalUpdate() {
			return nil
		}

		return writeCloudToLocalLocked(ctx, sc, info, cloudDoc)

	case cloudPresent && localPresent && cloudUnchanged && !localUnchanged:
		if !dir.AllowsCloudUpdate() {
			return nil
		}

		return pushLocalToCloudLocked(ctx, sc, info, localDoc, attempt)

	default: // both present, both changed
		return threeWayMergeLocked(ctx, sc, key, info, cloudDoc, localDoc, attempt)
	}
}

// threeWayMergeLocked implements the "both present, both changed" row of
// §4.4.5. Δlocal is applied atop C with local winning conflicting leaves
// (§9 open question b), producing M; direction gates whether M is pushed
// to cloud, written to local, or both.
func threeWayMergeLocked(ctx context.Context, sc *Context, key Key, info *Information, cloudDoc, localDoc *Document, attempt int) error {
	dir := sc.Direction()

	if dir == CloudToDevice {
		// Local can never be pushed under this direction; adopt the
		// cloud's view as-is rather than attempting a merge nothing will
		// ever see propagated.
		return writeCloudToLocalLocked(ctx, sc, info, cloudDoc)
	}

	deltaLocal, err := DiffMergePatch(info.LastSyncedDocument, localDoc.Body)
	if err != nil {
		return Skip(key, "full_shadow.diff_local", err)
	}

	merged, err := ApplyNullLeafMerge(cloudDoc.Body, deltaLocal)
	if err != nil {
		return Skip(key, "full_shadow.merge", err)
	}

	writeLocal := dir != DeviceToCloud

	return pushMergedToCloudLocked(ctx, sc, key, info, merged, localDoc, cloudDoc.Version, writeLocal, attempt)
}

// pushMergedToCloudLocked pushes merged as the new cloud document at
// version cloudVersion+1, where cloudVersion is the actual version just
// observed on the cloud side (never info.CloudVersion — by construction
// this path only runs when the cloud has moved since the last synced
// bookkeeping, so info.CloudVersion is stale and would never compare-and-
// swap successfully). On a version conflict it restarts the full
// reconcile (re-reading C), per §4.4.5. When writeLocal is true the
// pushed body is also written back to the local store, matching "on
// success write M to local".
func pushMergedToCloudLocked(ctx context.Context, sc *Context, key Key, info *Information, merged []byte, localDoc *Document, cloudVersion uint64, writeLocal bool, attempt int) error {
	body, err := SetVersion(merged, cloudVersion+1)
	if err != nil {
		return Skip(key, "full_shadow.set_version", err)
	}

	newCloudVersion, err := sc.Cloud.UpdateThingShadow(ctx, key, body, cloudVersion)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return reconcileFullLocked(ctx, sc, key, attempt+1)
		}

		return err
	}

	info.CloudVersion = newCloudVersion
	info.LastSyncedDocument = body
	info.LastSyncTime = NowEpoch()

	if writeLocal {
		newLocalVersion, err := sc.Store.UpdateShadow(ctx, key, body)
		if err != nil {
			return Retryable(key, "full_shadow.write_local", err)
		}

		info.LocalVersion = newLocalVersion
	} else {
		info.LocalVersion = localDoc.Version
	}

	return saveSyncInfoOrRetry(ctx, sc, key, info, "full_shadow")
}

// pushLocalToCloudLocked pushes the local document to the cloud as-is
// (no three-way diff — the cloud side is absent, unchanged since the last
// sync, or being overwritten). Used by the "C absent, L changed" and
// "only L changed" rows, and by execOverwriteCloud.
func pushLocalToCloudLocked(ctx context.Context, sc *Context, info *Information, localDoc *Document, attempt int) error {
	key := info.Key

	body, err := SetVersion(localDoc.Body, info.CloudVersion+1)
	if err != nil {
		return Skip(key, "full_shadow.push_local.set_version", err)
	}

	newVersion, err := sc.Cloud.UpdateThingShadow(ctx, key, body, info.CloudVersion)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return reconcileFullLocked(ctx, sc, key, attempt+1)
		}

		return err
	}

	info.CloudVersion = newVersion
	info.LocalVersion = localDoc.Version
	info.LastSyncedDocument = body
	info.LastSyncTime = NowEpoch()

	return saveSyncInfoOrRetry(ctx, sc, key, info, "full_shadow.push_local")
}

// writeCloudToLocalLocked overwrites the local document with the cloud's.
// Used by the "L absent/stale" rows and by execOverwriteLocal.
func writeCloudToLocalLocked(ctx context.Context, sc *Context, info *Information, cloudDoc *Document) error {
	key := info.Key

	newLocalVersion, err := sc.Store.UpdateShadow(ctx, key, cloudDoc.Body)
	if err != nil {
		return Retryable(key, "full_shadow.write_local", err)
	}

	info.LocalVersion = newLocalVersion
	info.CloudVersion = cloudDoc.Version
	info.LastSyncedDocument = cloudDoc.Body
	info.LastSyncTime = NowEpoch()

	return saveSyncInfoOrRetry(ctx, sc, key, info, "full_shadow.write_local")
}

// deleteLocalReconcileLocked deletes the local document as part of a
// three-way reconcile (cloud already absent).
func deleteLocalReconcileLocked(ctx context.Context, sc *Context, info *Information) error {
	key := info.Key

	if _, err := sc.Store.DeleteShadow(ctx, key); err != nil {
		return Retryable(key, "full_shadow.delete_local", err)
	}

	info.LocalVersion++
	info.CloudDeleted = true
	info.LastSyncedDocument = nil
	info.LastSyncTime = NowEpoch()

	return saveSyncInfoOrRetry(ctx, sc, key, info, "full_shadow.delete_local")
}

// deleteCloudReconcileLocked deletes the cloud document as part of a
// three-way reconcile (local already absent).
func deleteCloudReconcileLocked(ctx context.Context, sc *Context, info *Information) error {
	key := info.Key

	if err := sc.Cloud.DeleteThingShadow(ctx, key, info.CloudVersion); err != nil {
		return err
	}

	info.CloudDeleted = true
	info.CloudVersion++
	info.LastSyncedDocument = nil
	info.LastSyncTime = NowEpoch()

	return saveSyncInfoOrRetry(ctx, sc, key, info, "full_shadow.delete_cloud")
}

// clearSyncInfoLocked resets bookkeeping when both sides are absent.
func clearSyncInfoLocked(ctx context.Context, sc *Context, info *Information) error {
	key := info.Key

	info.CloudVersion = 0
	info.LocalVersion = 0
	info.LastSyncedDocument = nil
	info.CloudDeleted = false
	info.LastSyncTime = NowEpoch()

	return saveSyncInfoOrRetry(ctx, sc, key, info, "full_shadow.clear")
}

// execOverwriteLocal implements the OverwriteLocal variant: force
// local := cloud, skipping the three-way path entirely. The new local
// version is assigned by the local store (its current version + 1); the
// cloud's version number is not carried over to the local side.
func execOverwriteLocal(ctx context.Context, sc *Context, req *OverwriteLocalRequest) error {
	key := req.ShadowKey

	lock, info, err := lockAndLoadInfo(ctx, sc, key, "overwrite_local")
	if err != nil {
		return err
	}
	defer lock.Unlock()

	cloudDoc, err := sc.Cloud.GetThingShadow(ctx, key)
	if err != nil {
		return err
	}

	if cloudDoc == nil {
		return deleteLocalReconcileLocked(ctx, sc, info)
	}

	return writeCloudToLocalLocked(ctx, sc, info, cloudDoc)
}

// execOverwriteCloud implements the OverwriteCloud variant: force
// cloud := local, skipping the three-way path entirely.
func execOverwriteCloud(ctx context.Context, sc *Context, req *OverwriteCloudRequest) error {
	key := req.ShadowKey

	lock, info, err := lockAndLoadInfo(ctx, sc, key, "overwrite_cloud")
	if err != nil {
		return err
	}
	defer lock.Unlock()

	localDoc, err := sc.Store.GetShadow(ctx, key)
	if err != nil {
		return Retryable(key, "overwrite_cloud.get_local", err)
	}

	if localDoc == nil {
		return deleteCloudReconcileLocked(ctx, sc, info)
	}

	return pushLocalToCloudLocked(ctx, sc, info, localDoc, 0)
}
