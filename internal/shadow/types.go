// Package shadow implements the edge-side shadow synchronization engine:
// the request model, merger, merging blocking queue, reconciliation
// executors, drain strategies, and the handler façade that ties them to
// connectivity and configuration events.
package shadow

import (
	"context"
	"time"
)

// Key identifies a shadow document by its (thing, name) pair. An empty
// Name denotes the classic shadow.
type Key struct {
	Thing string
	Name  string
}

// String renders the key as "thing" or "thing:name" for logging.
func (k Key) String() string {
	if k.Name == "" {
		return k.Thing
	}

	return k.Thing + ":" + k.Name
}

// Direction controls which side's mutations are allowed to propagate.
type Direction int

// Direction values (data-model.md §3 "Direction").
const (
	BetweenDeviceAndCloud Direction = iota
	DeviceToCloud
	CloudToDevice
)

// String implements fmt.Stringer for structured logging.
func (d Direction) String() string {
	switch d {
	case DeviceToCloud:
		return "device_to_cloud"
	case CloudToDevice:
		return "cloud_to_device"
	default:
		return "between_device_and_cloud"
	}
}

// AllowsCloudUpdate reports whether a local write may be pushed to the cloud.
func (d Direction) AllowsCloudUpdate() bool { return d != CloudToDevice }

// AllowsCloudDelete reports whether a local delete may be pushed to the cloud.
func (d Direction) AllowsCloudDelete() bool { return d != CloudToDevice }

// AllowsLocalUpdate reports whether a cloud write may be applied locally.
func (d Direction) AllowsLocalUpdate() bool { return d != DeviceToCloud }

// AllowsLocalDelete reports whether a cloud delete may be applied locally.
func (d Direction) AllowsLocalDelete() bool { return d != DeviceToCloud }

// Information is the bookkeeping row the core owns for a synced shadow
// (data-model.md §3 "SyncInformation"). One row exists per key in the
// active sync configuration (invariant I1).
type Information struct {
	Key Key

	CloudVersion uint64
	LocalVersion uint64

	// LastSyncedDocument is the full document bytes as of the last
	// successful reconcile. Nil means no successful reconcile has happened
	// (or the shadow was last observed deleted).
	LastSyncedDocument []byte

	CloudUpdateTime int64 // epoch seconds, informational only
	LastSyncTime    int64 // epoch seconds of the last successful reconcile

	CloudDeleted bool
}

// NowEpoch returns the current time as Unix seconds. Centralized so tests
// can reason about a single time source, mirroring the teacher's NowNano.
func NowEpoch() int64 {
	return time.Now().Unix()
}

// Document is an opaque shadow document. The core treats the body as
// opaque bytes except for version extraction and the null-leaf-delete
// merge used by the update executors (document.go).
type Document struct {
	Body    []byte
	Version uint64
}

// Store is the local document store interface consumed by the core
// (spec.md §6 "Local store (consumed)"). Implemented by internal/localstore.
type Store interface {
	ListSyncedShadows(ctx context.Context) ([]Key, error)

	GetSyncInfo(ctx context.Context, key Key) (*Information, error)
	UpsertSyncInfoIfAbsent(ctx context.Context, info *Information) error
	UpdateSyncInfo(ctx context.Context, info *Information) error
	DeleteSyncInfo(ctx context.Context, key Key) error

	GetShadow(ctx context.Context, key Key) (*Document, error)
	UpdateShadow(ctx context.Context, key Key, body []byte) (uint64, error)
	DeleteShadow(ctx context.Context, key Key) (uint64, error)

	// Lock returns an exclusive, guaranteed-release lock scoped to key.
	// Executors hold it for the duration of a reconcile (spec.md §4.4).
	Lock(ctx context.Context, key Key) (ScopedLock, error)
}

// ScopedLock is an exclusive per-shadow lock obtained from the local store.
type ScopedLock interface {
	Unlock()
}

// CloudClient is the cloud data-plane interface consumed by the core
// (spec.md §6 "Cloud client (consumed)"). Implemented by internal/cloudapi.
type CloudClient interface {
	// GetThingShadow returns (nil, nil) on a 404 (absent shadow).
	GetThingShadow(ctx context.Context, key Key) (*Document, error)
	// UpdateThingShadow returns the new cloud version, or a Conflict/Retryable/Skip error.
	UpdateThingShadow(ctx context.Context, key Key, body []byte, expectedVersion uint64) (uint64, error)
	// DeleteThingShadow treats NotFound as success.
	DeleteThingShadow(ctx context.Context, key Key, expectedVersion uint64) error
}
