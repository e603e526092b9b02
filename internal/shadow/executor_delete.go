package shadow

import "context"

// execCloudDelete implements spec.md §4.4.3: push a locally-originated
// delete to the cloud.
func execCloudDelete(ctx context.Context, sc *Context, req *CloudDeleteRequest) error {
	key := req.ShadowKey

	lock, info, err := lockAndLoadInfo(ctx, sc, key, "cloud_delete")
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if info.CloudDeleted {
		return nil
	}

	// NotFound is treated as success by the cloud client adapter (spec.md §6).
	if err := sc.Cloud.DeleteThingShadow(ctx, key, info.CloudVersion); err != nil {
		return err
	}

	info.CloudDeleted = true
	info.CloudVersion++
	info.LastSyncedDocument = nil
	info.LastSyncTime = NowEpoch()

	return saveSyncInfoOrRetry(ctx, sc, key, info, "cloud_delete")
}

// execLocalDelete implements spec.md §4.4.4: apply a cloud-originated
// delete to the local store.
func execLocalDelete(ctx context.Context, sc *Context, req *LocalDeleteRequest) error {
	key := req.ShadowKey

	lock, info, err := lockAndLoadInfo(ctx, sc, key, "local_delete")
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if info.CloudDeleted && info.LastSyncedDocument == nil {
		return nil
	}

	if _, err := sc.Store.DeleteShadow(ctx, key); err != nil {
		return Retryable(key, "local_delete.write", err)
	}

	info.LocalVersion++
	info.CloudVersion = req.CloudVersion
	info.CloudDeleted = true
	info.LastSyncedDocument = nil
	info.LastSyncTime = NowEpoch()

	return saveSyncInfoOrRetry(ctx, sc, key, info, "local_delete")
}
