// Package localwatch turns local filesystem writes under a shadow root
// directory into pushes through a shadow.Handler, the inbound half of the
// "local write completed" event spec.md §4.7 expects the Handler's caller
// to deliver. Each shadow is a single JSON file at
// <root>/<thing>/<name>.json (or <root>/<thing>/classic.json for the
// unnamed shadow).
package localwatch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/shadowsync/internal/shadow"
	"github.com/tonimelisma/shadowsync/pkg/shadowkey"
)

// pusher is the subset of *shadow.Handler a Watcher drives. Narrowed to an
// interface so tests can inject a recorder instead of a full Handler.
type pusher interface {
	PushCloudUpdate(ctx context.Context, key shadow.Key, localDocument []byte) error
	PushCloudDelete(ctx context.Context, key shadow.Key) error
}

// FsWatcher abstracts filesystem event monitoring. Satisfied by
// *fsnotify.Watcher; tests inject a fake.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct{ w *fsnotify.Watcher }

func (f *fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// Watcher watches root for shadow file writes/deletes and pushes them
// through a Handler.
type Watcher struct {
	root    string
	pusher  pusher
	logger  *slog.Logger
	factory func() (FsWatcher, error)
}

// New builds a Watcher over root, pushing observed changes through
// handler. root need not exist yet; Watch creates it.
func New(root string, handler *shadow.Handler, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		root:   root,
		pusher: handler,
		logger: logger,
		factory: func() (FsWatcher, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, err
			}

			return &fsnotifyWatcher{w: w}, nil
		},
	}
}

// Watch blocks, watching root for shadow file writes and deletes, until
// ctx is canceled. It adds a watch on root and on every existing
// first-level thing directory; directories created later are picked up
// the next time the process restarts (no recursive re-scan on the fly —
// a fixed, small set of things is the expected shape here, unlike a
// general-purpose file sync tree).
func (w *Watcher) Watch(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}

	watcher, err := w.factory()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addWatches(watcher); err != nil {
		return err
	}

	w.logger.Info("localwatch watching", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			w.handleEvent(ctx, ev)
		case err, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("localwatch watcher error", "error", err)
		}
	}
}

func (w *Watcher) addWatches(watcher FsWatcher) error {
	if err := watcher.Add(w.root); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if err := watcher.Add(filepath.Join(w.root, entry.Name())); err != nil {
			w.logger.Warn("localwatch: failed to watch thing directory", "name", entry.Name(), "error", err)
		}
	}

	return nil
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	key, ok := keyFromPath(w.root, ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
		w.pushUpdate(ctx, key, ev.Name)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.pushDelete(ctx, key)
	}
}

func (w *Watcher) pushUpdate(ctx context.Context, key shadow.Key, path string) {
	body, err := os.ReadFile(path)
	if err != nil {
		// A write immediately followed by a rename/remove races this read;
		// the resulting delete event still fires and reconciles state.
		w.logger.Debug("localwatch: read raced a concurrent change", "path", path, "error", err)

		return
	}

	if err := w.pusher.PushCloudUpdate(ctx, key, body); err != nil {
		w.logger.Error("localwatch: push cloud update failed", "key", key, "error", err)
	}
}

func (w *Watcher) pushDelete(ctx context.Context, key shadow.Key) {
	if err := w.pusher.PushCloudDelete(ctx, key); err != nil {
		w.logger.Error("localwatch: push cloud delete failed", "key", key, "error", err)
	}
}

// keyFromPath maps <root>/<thing>/<name>.json to a shadow.Key. Paths that
// are not exactly two levels below root, or whose file name does not end
// in .json, are ignored; no other filtering is applied (a dotfile such as
// ".x.json" is accepted).
func keyFromPath(root, path string) (shadow.Key, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return shadow.Key{}, false
	}

	rel = filepath.ToSlash(rel)

	parts := strings.Split(rel, "/")
	if len(parts) != 2 {
		return shadow.Key{}, false
	}

	thing, file := parts[0], parts[1]
	if !strings.HasSuffix(file, ".json") {
		return shadow.Key{}, false
	}

	name := strings.TrimSuffix(file, ".json")
	if name == classicFileNameStem {
		name = ""
	}

	return shadow.Key{Thing: shadowkey.Normalize(thing), Name: shadowkey.Normalize(name)}, true
}

const classicFileNameStem = "classic"
