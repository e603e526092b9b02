package shadow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// testLogger returns a debug-level logger that writes to t.Log, matching
// the teacher's internal/sync test convention so failures show their
// surrounding log context in CI output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testLogWriter struct{ t *testing.T }

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

var _ io.Writer = (*testLogWriter)(nil)

// fakeLock is a per-key mutex-backed ScopedLock.
type fakeLock struct{ unlock func() }

func (l *fakeLock) Unlock() { l.unlock() }

// fakeStore is an in-memory Store for exercising the core without a real
// database, mirroring the teacher's use of hand-rolled fakes alongside
// its real SQLite-backed state in internal/sync tests.
type fakeStore struct {
	mu          sync.Mutex
	infos       map[Key]*Information
	docs        map[Key]*Document
	locks       map[Key]*sync.Mutex
	nextVersion map[Key]uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		infos:       make(map[Key]*Information),
		docs:        make(map[Key]*Document),
		locks:       make(map[Key]*sync.Mutex),
		nextVersion: make(map[Key]uint64),
	}
}

func (s *fakeStore) lockFor(key Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}

	return l
}

func (s *fakeStore) Lock(_ context.Context, key Key) (ScopedLock, error) {
	l := s.lockFor(key)
	l.Lock()

	return &fakeLock{unlock: l.Unlock}, nil
}

func (s *fakeStore) ListSyncedShadows(_ context.Context) ([]Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]Key, 0, len(s.infos))
	for k := range s.infos {
		keys = append(keys, k)
	}

	return keys, nil
}

func (s *fakeStore) GetSyncInfo(_ context.Context, key Key) (*Information, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.infos[key]
	if !ok {
		return nil, nil
	}

	cp := *info

	return &cp, nil
}

func (s *fakeStore) UpsertSyncInfoIfAbsent(_ context.Context, info *Information) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.infos[info.Key]; ok {
		return nil
	}

	cp := *info
	s.infos[info.Key] = &cp

	return nil
}

func (s *fakeStore) UpdateSyncInfo(_ context.Context, info *Information) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *info
	s.infos[info.Key] = &cp

	return nil
}

func (s *fakeStore) DeleteSyncInfo(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.infos, key)

	return nil
}

func (s *fakeStore) GetShadow(_ context.Context, key Key) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[key]
	if !ok {
		return nil, nil
	}

	cp := *d

	return &cp, nil
}

func (s *fakeStore) UpdateShadow(_ context.Context, key Key, body []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.nextVersion[key] + 1
	s.nextVersion[key] = v
	s.docs[key] = &Document{Body: append([]byte(nil), body...), Version: v}

	return v, nil
}

func (s *fakeStore) DeleteShadow(_ context.Context, key Key) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.nextVersion[key] + 1
	s.nextVersion[key] = v
	delete(s.docs, key)

	return v, nil
}

// fakeCloud is an in-memory CloudClient. Its UpdateThingShadow enforces
// optimistic-concurrency semantics identical to the real cloud data
// plane's (spec.md §6): a version mismatch returns an error wrapping
// ErrConflict.
type fakeCloud struct {
	mu       sync.Mutex
	docs     map[Key]*Document
	failNext map[Key]error
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{docs: make(map[Key]*Document), failNext: make(map[Key]error)}
}

// seed sets key's initial cloud document directly, bypassing version
// checks, for scenario setup.
func (c *fakeCloud) seed(key Key, body []byte, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs[key] = &Document{Body: append([]byte(nil), body...), Version: version}
}

func (c *fakeCloud) GetThingShadow(_ context.Context, key Key) (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.docs[key]
	if !ok {
		return nil, nil
	}

	cp := *d

	return &cp, nil
}

func (c *fakeCloud) UpdateThingShadow(_ context.Context, key Key, body []byte, expectedVersion uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err, ok := c.failNext[key]; ok {
		delete(c.failNext, key)
		return 0, err
	}

	var current uint64
	if d, ok := c.docs[key]; ok {
		current = d.Version
	}

	if current != expectedVersion {
		return 0, &Error{Key: key, Op: "fake_cloud.update", Err: errors.Join(ErrConflict, errors.New("version conflict"))}
	}

	newVersion := current + 1
	c.docs[key] = &Document{Body: append([]byte(nil), body...), Version: newVersion}

	return newVersion, nil
}

func (c *fakeCloud) DeleteThingShadow(_ context.Context, key Key, _ uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.docs, key)

	return nil
}

var (
	_ Store       = (*fakeStore)(nil)
	_ CloudClient = (*fakeCloud)(nil)
)
