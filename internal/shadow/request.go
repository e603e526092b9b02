package shadow

import "context"

// RequestTag identifies the variant of a Request for merge-table lookup and
// structured logging.
type RequestTag int

// Request variant tags (spec.md §3 "SyncRequest variants").
const (
	TagLocalUpdate RequestTag = iota
	TagLocalDelete
	TagCloudUpdate
	TagCloudDelete
	TagFullShadow
	TagOverwriteLocal
	TagOverwriteCloud
)

// String implements fmt.Stringer for structured logging.
func (t RequestTag) String() string {
	switch t {
	case TagLocalUpdate:
		return "local_update"
	case TagLocalDelete:
		return "local_delete"
	case TagCloudUpdate:
		return "cloud_update"
	case TagCloudDelete:
		return "cloud_delete"
	case TagFullShadow:
		return "full_shadow"
	case TagOverwriteLocal:
		return "overwrite_local"
	case TagOverwriteCloud:
		return "overwrite_cloud"
	default:
		return "unknown"
	}
}

// Request is one pending sync action for a single ShadowKey (spec.md §4.1).
// Execute must be idempotent with respect to already-reconciled state: if
// SyncInformation already reflects the outcome, it returns success without
// mutating anything. The Merger dispatches on Tag() alone; it never type
// switches on the concrete variant.
type Request interface {
	Key() Key
	Tag() RequestTag
	Execute(ctx context.Context, sc *Context) error
}

// LocalUpdateRequest applies a cloud-originated document update to the
// local store (spec.md §4.4.2).
type LocalUpdateRequest struct {
	ShadowKey Key
	Document  []byte
}

func (r *LocalUpdateRequest) Key() Key        { return r.ShadowKey }
func (r *LocalUpdateRequest) Tag() RequestTag { return TagLocalUpdate }

func (r *LocalUpdateRequest) Execute(ctx context.Context, sc *Context) error {
	return execLocalUpdate(ctx, sc, r)
}

// LocalDeleteRequest applies a cloud-originated delete to the local store
// (spec.md §4.4.4). CloudVersion is the cloud version the delete was
// observed at.
type LocalDeleteRequest struct {
	ShadowKey    Key
	CloudVersion uint64
}

func (r *LocalDeleteRequest) Key() Key        { return r.ShadowKey }
func (r *LocalDeleteRequest) Tag() RequestTag { return TagLocalDelete }

func (r *LocalDeleteRequest) Execute(ctx context.Context, sc *Context) error {
	return execLocalDelete(ctx, sc, r)
}

// CloudUpdateRequest pushes a locally-originated document update to the
// cloud (spec.md §4.4.1).
type CloudUpdateRequest struct {
	ShadowKey Key
	Document  []byte
}

func (r *CloudUpdateRequest) Key() Key        { return r.ShadowKey }
func (r *CloudUpdateRequest) Tag() RequestTag { return TagCloudUpdate }

func (r *CloudUpdateRequest) Execute(ctx context.Context, sc *Context) error {
	return execCloudUpdate(ctx, sc, r)
}

// CloudDeleteRequest pushes a locally-originated delete to the cloud
// (spec.md §4.4.3).
type CloudDeleteRequest struct {
	ShadowKey Key
}

func (r *CloudDeleteRequest) Key() Key        { return r.ShadowKey }
func (r *CloudDeleteRequest) Tag() RequestTag { return TagCloudDelete }

func (r *CloudDeleteRequest) Execute(ctx context.Context, sc *Context) error {
	return execCloudDelete(ctx, sc, r)
}

// FullShadowRequest performs a three-way reconcile of both sides against
// the last synced document (spec.md §4.4.5). It supersedes any other
// pending request for the key (invariant I5).
type FullShadowRequest struct {
	ShadowKey Key
}

func (r *FullShadowRequest) Key() Key        { return r.ShadowKey }
func (r *FullShadowRequest) Tag() RequestTag { return TagFullShadow }

func (r *FullShadowRequest) Execute(ctx context.Context, sc *Context) error {
	return execFullShadow(ctx, sc, r)
}

// OverwriteLocalRequest forces local := cloud, skipping the three-way path.
type OverwriteLocalRequest struct {
	ShadowKey Key
}

func (r *OverwriteLocalRequest) Key() Key        { return r.ShadowKey }
func (r *OverwriteLocalRequest) Tag() RequestTag { return TagOverwriteLocal }

func (r *OverwriteLocalRequest) Execute(ctx context.Context, sc *Context) error {
	return execOverwriteLocal(ctx, sc, r)
}

// OverwriteCloudRequest forces cloud := local, skipping the three-way path.
type OverwriteCloudRequest struct {
	ShadowKey Key
}

func (r *OverwriteCloudRequest) Key() Key        { return r.ShadowKey }
func (r *OverwriteCloudRequest) Tag() RequestTag { return TagOverwriteCloud }

func (r *OverwriteCloudRequest) Execute(ctx context.Context, sc *Context) error {
	return execOverwriteCloud(ctx, sc, r)
}
