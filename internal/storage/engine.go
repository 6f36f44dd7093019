// Package storage wraps the embedded SQL engine (D in spec.md §2) and owns
// the canonical schema (S). Every other package talks to the key-value state
// only through Engine.Transaction; nobody outside this package imports
// database/sql directly. Grounded on jemygraw-langgraphgo's
// store/sqlite.SqliteCheckpointStore for the sql.Open + schema-init shape,
// generalized from a single checkpoints table to the full redlite schema.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/google/uuid"
)

// Backend selects where the SQL engine keeps its data.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendMemory Backend = "memory"
)

// Options configures Open.
type Options struct {
	Path       string
	Backend    Backend
	CacheMB    int
	BusyTimeout time.Duration
}

// Engine is the process-wide storage singleton (one of the three globals
// called out in spec.md §9: storage handle, connection registry, notify bus).
// It serializes writers in-process on top of whatever serialization SQLite
// itself provides, matching the single-writer/multi-reader model of spec.md §5.
type Engine struct {
	db       *sql.DB
	log      *zap.Logger
	writeMu  sync.Mutex
	ServerID string
}

// Open opens (and, if necessary, creates and migrates) the database at
// opts.Path, or an in-memory database when opts.Backend is BackendMemory.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Engine, error) {
	busyMs := int64(5000)
	if opts.BusyTimeout > 0 {
		busyMs = opts.BusyTimeout.Milliseconds()
	}

	var dsn string
	if opts.Backend == BackendMemory {
		dsn = fmt.Sprintf("file::memory:?cache=shared&_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", busyMs)
	} else {
		dsn = fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", opts.Path, busyMs)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if opts.Backend == BackendMemory {
		// A shared in-memory database is destroyed once its last connection
		// closes; keep exactly one connection alive for the process lifetime.
		db.SetMaxOpenConns(1)
	}

	e := &Engine{db: db, log: log.Named("storage")}

	if err := e.pragmas(ctx, opts); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragmas: %w", err)
	}
	if err := e.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := e.loadOrAssignServerID(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("server id: %w", err)
	}

	e.log.Info("storage opened",
		zap.String("backend", string(opts.Backend)),
		zap.String("server_id", e.ServerID),
	)
	return e, nil
}

func (e *Engine) pragmas(ctx context.Context, opts Options) error {
	busyMs := int64(5000)
	if opts.BusyTimeout > 0 {
		busyMs = opts.BusyTimeout.Milliseconds()
	}
	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyMs),
	}
	if opts.CacheMB > 0 {
		stmts = append(stmts, fmt.Sprintf("PRAGMA cache_size=-%d", opts.CacheMB*1024))
	}
	for _, s := range stmts {
		if _, err := e.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}

func (e *Engine) loadOrAssignServerID(ctx context.Context) error {
	var id string
	err := e.db.QueryRowContext(ctx, `SELECT value FROM redlite_meta WHERE key = 'server_id'`).Scan(&id)
	if err == sql.ErrNoRows {
		id = uuid.NewString()
		_, err = e.db.ExecContext(ctx, `INSERT INTO redlite_meta(key, value) VALUES ('server_id', ?)`, id)
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	e.ServerID = id
	return nil
}

// Close closes the underlying SQL engine.
func (e *Engine) Close() error { return e.db.Close() }

// Tx is the narrow transaction handle exposed to internal/keyspace. It keeps
// database/sql out of every package above storage.
type Tx struct {
	tx  *sql.Tx
	now int64
}

// Now returns the millisecond epoch timestamp snapshotted at the start of
// this transaction; every mutation inside one transaction uses one "now" so
// within-transaction reads are internally consistent.
func (t *Tx) Now() int64 { return t.now }

func (t *Tx) Exec(query string, args ...any) (sql.Result, error) { return t.tx.Exec(query, args...) }
func (t *Tx) Query(query string, args ...any) (*sql.Rows, error) { return t.tx.Query(query, args...) }
func (t *Tx) QueryRow(query string, args ...any) *sql.Row        { return t.tx.QueryRow(query, args...) }

// Transaction runs fn inside a single SQL transaction, serialized against all
// other writers in-process. fn must not itself suspend (spec.md §5: "No
// suspension occurs inside a storage transaction once opened").
//
// nowMillis is supplied by the caller (internal/keyspace threads the current
// time through) so tests can control time deterministically.
func (e *Engine) Transaction(ctx context.Context, nowMillis int64, fn func(tx *Tx) error) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	sqlTx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	tx := &Tx{tx: sqlTx, now: nowMillis}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReadOnly runs fn inside a read-only transaction. SQLite's WAL mode lets
// this proceed concurrently with an in-flight writer transaction.
func (e *Engine) ReadOnly(ctx context.Context, nowMillis int64, fn func(tx *Tx) error) error {
	sqlTx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	tx := &Tx{tx: sqlTx, now: nowMillis}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}
