// Package sqlite provides a single-file SQLite persistent store built on the
// in-memory transactional engine.
package sqlite

import (
	"assemblycore/internal/infra/persistence/memory"
	"assemblycore/pkg/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
// Writes open an immediate transaction, reload the stored snapshot, apply the
// mutation and write the new snapshot before committing.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = "assemblycore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine, opts...), db: db, path: path}
	snapshot, err := load(context.Background(), db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ImportState(snapshot)
	return s, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func load(ctx context.Context, q queryer) (memory.Snapshot, error) {
	rows, err := q.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return memory.Snapshot{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func persist(ctx context.Context, tx *sql.Tx, snapshot memory.Snapshot) error {
	for _, bucket := range memory.Buckets {
		data, err := snapshot.EncodeBucket(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return nil
}

// RunInTransaction applies fn against freshly loaded state and snapshots the result
// to SQLite if it succeeds. Driver failures, including SQLITE_BUSY, surface as
// domain.TransientError.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, domain.TransientError{Op: "begin tx", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	latest, err := load(ctx, sqlTx)
	if err != nil {
		return domain.Result{}, domain.TransientError{Op: "reload state", Err: err}
	}
	s.ImportState(latest)

	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := persist(ctx, sqlTx, s.ExportState()); err != nil {
		s.ImportState(latest)
		return res, domain.TransientError{Op: "persist state", Err: err}
	}
	if err := sqlTx.Commit(); err != nil {
		s.ImportState(latest)
		return res, domain.TransientError{Op: "commit", Err: err}
	}
	committed = true
	return res, nil
}

// View refreshes the cached state from disk and runs fn against it. The store
// lock is held until fn returns so a writer restoring its cache after a failed
// commit is never observed.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := load(ctx, s.db)
	if err != nil {
		return domain.TransientError{Op: "reload state", Err: err}
	}
	s.ImportState(latest)
	return s.Store.View(ctx, fn)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
