package localwatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/shadowsync/internal/shadow"
)

// fakeWatcher is an FsWatcher a test drives directly, bypassing the real
// filesystem notification backend.
type fakeWatcher struct {
	added  []string
	events chan fsnotify.Event
	errs   chan error
	closed bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		events: make(chan fsnotify.Event, 8),
		errs:   make(chan error, 8),
	}
}

func (f *fakeWatcher) Add(name string) error {
	f.added = append(f.added, name)
	return nil
}

func (f *fakeWatcher) Close() error {
	f.closed = true
	return nil
}

func (f *fakeWatcher) Events() <-chan fsnotify.Event { return f.events }
func (f *fakeWatcher) Errors() <-chan error          { return f.errs }

// recordingPusher captures PushCloudUpdate/PushCloudDelete calls instead of
// driving a real shadow.Handler.
type recordingPusher struct {
	mu      sync.Mutex
	updates []shadow.Key
	bodies  [][]byte
	deletes []shadow.Key
}

func (r *recordingPusher) PushCloudUpdate(_ context.Context, key shadow.Key, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.updates = append(r.updates, key)
	r.bodies = append(r.bodies, body)

	return nil
}

func (r *recordingPusher) PushCloudDelete(_ context.Context, key shadow.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deletes = append(r.deletes, key)

	return nil
}

func (r *recordingPusher) snapshot() ([]shadow.Key, [][]byte, []shadow.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]shadow.Key(nil), r.updates...), append([][]byte(nil), r.bodies...), append([]shadow.Key(nil), r.deletes...)
}

func newTestWatcher(root string, pusher pusher, fw *fakeWatcher) *Watcher {
	return &Watcher{
		root:   root,
		pusher: pusher,
		logger: slog.New(slog.DiscardHandler),
		factory: func() (FsWatcher, error) {
			return fw, nil
		},
	}
}

func TestKeyFromPathClassicShadow(t *testing.T) {
	t.Parallel()

	key, ok := keyFromPath("/root", "/root/lamp/classic.json")
	if !ok {
		t.Fatal("keyFromPath: ok = false, want true")
	}

	if key != (shadow.Key{Thing: "lamp"}) {
		t.Errorf("key = %+v, want {Thing: lamp}", key)
	}
}

func TestKeyFromPathNamedShadow(t *testing.T) {
	t.Parallel()

	key, ok := keyFromPath("/root", "/root/lamp/config.json")
	if !ok {
		t.Fatal("keyFromPath: ok = false, want true")
	}

	if key != (shadow.Key{Thing: "lamp", Name: "config"}) {
		t.Errorf("key = %+v, want {Thing: lamp, Name: config}", key)
	}
}

func TestKeyFromPathIgnoresNonJSONAndWrongDepth(t *testing.T) {
	t.Parallel()

	if _, ok := keyFromPath("/root", "/root/lamp/config.txt"); ok {
		t.Error("non-.json file should be ignored")
	}

	if _, ok := keyFromPath("/root", "/root/lamp/sub/config.json"); ok {
		t.Error("nested path should be ignored")
	}

	if _, ok := keyFromPath("/root", "/root/lamp"); ok {
		t.Error("bare thing directory should be ignored")
	}
}

func TestWatchPushesUpdateOnWriteEvent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	thingDir := filepath.Join(dir, "lamp")

	if err := os.MkdirAll(thingDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	path := filepath.Join(thingDir, "classic.json")
	if err := os.WriteFile(path, []byte(`{"on":true}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fw := newFakeWatcher()
	rec := &recordingPusher{}
	w := newTestWatcher(dir, rec, fw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() { done <- w.Watch(ctx) }()

	fw.events <- fsnotify.Event{Name: path, Op: fsnotify.Write}

	waitForCondition(t, func() bool {
		updates, _, _ := rec.snapshot()
		return len(updates) == 1
	})

	updates, bodies, _ := rec.snapshot()
	if updates[0] != (shadow.Key{Thing: "lamp"}) {
		t.Errorf("pushed key = %+v, want {Thing: lamp}", updates[0])
	}

	if string(bodies[0]) != `{"on":true}` {
		t.Errorf("pushed body = %s, want {\"on\":true}", bodies[0])
	}

	cancel()

	if err := <-done; err != nil {
		t.Errorf("Watch returned error after cancel: %v", err)
	}

	if !fw.closed {
		t.Error("Watch did not close the underlying FsWatcher")
	}
}

func TestWatchPushesDeleteOnRemoveEvent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	fw := newFakeWatcher()
	rec := &recordingPusher{}
	w := newTestWatcher(dir, rec, fw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Watch(ctx) }()

	fw.events <- fsnotify.Event{Name: filepath.Join(dir, "lamp", "classic.json"), Op: fsnotify.Remove}

	waitForCondition(t, func() bool {
		_, _, deletes := rec.snapshot()
		return len(deletes) == 1
	})

	_, _, deletes := rec.snapshot()
	if deletes[0] != (shadow.Key{Thing: "lamp"}) {
		t.Errorf("deleted key = %+v, want {Thing: lamp}", deletes[0])
	}
}

func TestWatchAddsRootAndExistingThingDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(dir, "lamp"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "thermostat"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	fw := newFakeWatcher()
	w := newTestWatcher(dir, &recordingPusher{}, fw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Watch(ctx) }()

	waitForCondition(t, func() bool { return len(fw.added) >= 3 })

	want := map[string]bool{
		dir:                              true,
		filepath.Join(dir, "lamp"):       true,
		filepath.Join(dir, "thermostat"): true,
	}

	for _, got := range fw.added {
		if !want[got] {
			t.Errorf("unexpected watch added: %s", got)
		}

		delete(want, got)
	}

	if len(want) != 0 {
		t.Errorf("missing expected watches: %v", want)
	}
}

// waitForCondition polls cond until it's true or fails the test after a
// short timeout. Event delivery into the Watch goroutine is asynchronous,
// so tests can't assert on the recorder immediately after sending an event.
func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("condition not met before timeout")
}
