// Package localstore implements shadow.Store and shadow.ScopedLock on top of
// an embedded SQLite database: the device-side half of the shadow
// synchronization engine's consumed interfaces.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/tonimelisma/shadowsync/internal/shadow"
)

const walJournalSizeLimit = 67108864 // 64 MiB WAL journal size limit

// Store is a SQLite-backed shadow.Store. All sync bookkeeping
// (SyncInformation rows) and document bodies are persisted here; per-key
// locking is an in-process sync.Mutex map since shadowsyncd runs as a
// single process per device.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	locksMu sync.Mutex
	locks   map[shadow.Key]*sync.Mutex
}

var _ shadow.Store = (*Store)(nil)

// Open opens (creating if necessary) the SQLite database at path, applies
// pending migrations, and returns a ready Store. Use ":memory:" for tests.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	logger.Info("opening local shadow store", "path", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstore: open sqlite: %w", err)
	}

	if err := setPragmas(ctx, db, logger); err != nil {
		db.Close()

		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()

		return nil, err
	}

	return &Store{db: db, logger: logger, locks: make(map[shadow.Key]*sync.Mutex)}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("localstore: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// mutexFor returns the process-local mutex guarding key, creating one on
// first use. The map itself never shrinks; a fixed small set of configured
// shadows makes that an acceptable tradeoff against the complexity of
// reference-counted eviction.
func (s *Store) mutexFor(key shadow.Key) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}

	return m
}

// storeLock adapts a held *sync.Mutex to shadow.ScopedLock.
type storeLock struct {
	mu *sync.Mutex
}

func (l *storeLock) Unlock() { l.mu.Unlock() }

// Lock acquires the exclusive per-shadow lock, blocking until either it is
// obtained or ctx is done.
func (s *Store) Lock(ctx context.Context, key shadow.Key) (shadow.ScopedLock, error) {
	mu := s.mutexFor(key)

	done := make(chan struct{})

	go func() {
		mu.Lock()
		close(done)
	}()

	select {
	case <-done:
		return &storeLock{mu: mu}, nil
	case <-ctx.Done():
		// The goroutine above still owns the lock once it acquires it; let
		// it finish and immediately release so the mutex isn't leaked.
		go func() {
			<-done
			mu.Unlock()
		}()

		return nil, ctx.Err()
	}
}

func (s *Store) ListSyncedShadows(ctx context.Context) ([]shadow.Key, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thing, name FROM sync_information ORDER BY thing, name`)
	if err != nil {
		return nil, fmt.Errorf("localstore: list synced shadows: %w", err)
	}
	defer rows.Close()

	var keys []shadow.Key

	for rows.Next() {
		var k shadow.Key
		if err := rows.Scan(&k.Thing, &k.Name); err != nil {
			return nil, fmt.Errorf("localstore: scan synced shadow: %w", err)
		}

		keys = append(keys, k)
	}

	return keys, rows.Err()
}

func (s *Store) GetSyncInfo(ctx context.Context, key shadow.Key) (*shadow.Information, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cloud_version, local_version, last_synced_document, cloud_update_time, last_sync_time, cloud_deleted
		FROM sync_information WHERE thing = ? AND name = ?`, key.Thing, key.Name)

	info := &shadow.Information{Key: key}

	var deleted int

	err := row.Scan(&info.CloudVersion, &info.LocalVersion, &info.LastSyncedDocument, &info.CloudUpdateTime, &info.LastSyncTime, &deleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("localstore: get sync info: %w", err)
	}

	info.CloudDeleted = deleted != 0

	return info, nil
}

func (s *Store) UpsertSyncInfoIfAbsent(ctx context.Context, info *shadow.Information) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_information (thing, name, cloud_version, local_version, last_synced_document, cloud_update_time, last_sync_time, cloud_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (thing, name) DO NOTHING`,
		info.Key.Thing, info.Key.Name, info.CloudVersion, info.LocalVersion, info.LastSyncedDocument,
		info.CloudUpdateTime, info.LastSyncTime, boolToInt(info.CloudDeleted))
	if err != nil {
		return fmt.Errorf("localstore: upsert sync info: %w", err)
	}

	return nil
}

func (s *Store) UpdateSyncInfo(ctx context.Context, info *shadow.Information) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_information (thing, name, cloud_version, local_version, last_synced_document, cloud_update_time, last_sync_time, cloud_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (thing, name) DO UPDATE SET
			cloud_version = excluded.cloud_version,
			local_version = excluded.local_version,
			last_synced_document = excluded.last_synced_document,
			cloud_update_time = excluded.cloud_update_time,
			last_sync_time = excluded.last_sync_time,
			cloud_deleted = excluded.cloud_deleted`,
		info.Key.Thing, info.Key.Name, info.CloudVersion, info.LocalVersion, info.LastSyncedDocument,
		info.CloudUpdateTime, info.LastSyncTime, boolToInt(info.CloudDeleted))
	if err != nil {
		return fmt.Errorf("localstore: update sync info: %w", err)
	}

	return nil
}

func (s *Store) DeleteSyncInfo(ctx context.Context, key shadow.Key) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_information WHERE thing = ? AND name = ?`, key.Thing, key.Name); err != nil {
		return fmt.Errorf("localstore: delete sync info: %w", err)
	}

	return nil
}

func (s *Store) GetShadow(ctx context.Context, key shadow.Key) (*shadow.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body, version FROM shadow_documents WHERE thing = ? AND name = ?`, key.Thing, key.Name)

	doc := &shadow.Document{}

	err := row.Scan(&doc.Body, &doc.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("localstore: get shadow: %w", err)
	}

	return doc, nil
}

// UpdateShadow upserts the document body, incrementing the local version.
func (s *Store) UpdateShadow(ctx context.Context, key shadow.Key, body []byte) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("localstore: update shadow: %w", err)
	}
	defer tx.Rollback()

	var current uint64

	err = tx.QueryRowContext(ctx, `SELECT version FROM shadow_documents WHERE thing = ? AND name = ?`, key.Thing, key.Name).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("localstore: update shadow: read current version: %w", err)
	}

	next := current + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shadow_documents (thing, name, body, version) VALUES (?, ?, ?, ?)
		ON CONFLICT (thing, name) DO UPDATE SET body = excluded.body, version = excluded.version`,
		key.Thing, key.Name, body, next)
	if err != nil {
		return 0, fmt.Errorf("localstore: update shadow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("localstore: update shadow: commit: %w", err)
	}

	return next, nil
}

// DeleteShadow removes the document row, returning the version the delete
// would have been observed at (current version + 1), matching the
// version-bump-on-every-mutation contract UpdateShadow provides.
func (s *Store) DeleteShadow(ctx context.Context, key shadow.Key) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("localstore: delete shadow: %w", err)
	}
	defer tx.Rollback()

	var current uint64

	err = tx.QueryRowContext(ctx, `SELECT version FROM shadow_documents WHERE thing = ? AND name = ?`, key.Thing, key.Name).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("localstore: delete shadow: read current version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM shadow_documents WHERE thing = ? AND name = ?`, key.Thing, key.Name); err != nil {
		return 0, fmt.Errorf("localstore: delete shadow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("localstore: delete shadow: commit: %w", err)
	}

	return current + 1, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
