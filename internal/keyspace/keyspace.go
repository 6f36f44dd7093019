// Package keyspace implements the key-space adapter (K in spec.md §4.1):
// every Redis data-type command, each as exactly one storage.Engine
// transaction performing the lazy-expiry check from spec.md §4.2 before any
// other work. Grounded on jemygraw-langgraphgo's store/sqlite CRUD-per-method
// shape, retargeted from a single checkpoints table to the full redlite
// schema, with apperr.Error replacing raw database/sql errors at the package
// boundary.
package keyspace

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

// Keyspace is the process-wide handle command handlers call into. It is
// stateless beyond its references to the storage engine, the notification
// bus and a logger — all mutable state lives in SQLite.
type Keyspace struct {
	eng *storage.Engine
	bus *notify.Bus
	log *zap.Logger
}

func New(eng *storage.Engine, bus *notify.Bus, log *zap.Logger) *Keyspace {
	return &Keyspace{eng: eng, bus: bus, log: log.Named("keyspace")}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// opCtx threads one transaction's storage handle, target db and accumulated
// notification events through a single keyspace operation. Events are
// published only after the surrounding transaction commits, so a rolled-back
// operation never emits a notification for a mutation that didn't happen.
type opCtx struct {
	tx     *storage.Tx
	db     int
	events []notify.Event
}

func (o *opCtx) notify(key string, kind notify.Kind) {
	o.events = append(o.events, notify.Event{DB: o.db, Key: key, Kind: kind})
}

// write runs fn inside a write transaction and, on success, publishes every
// event fn queued via opCtx.notify.
func (k *Keyspace) write(ctx context.Context, db int, fn func(o *opCtx) error) error {
	var events []notify.Event
	err := k.eng.Transaction(ctx, nowMillis(), func(tx *storage.Tx) error {
		o := &opCtx{tx: tx, db: db}
		if err := fn(o); err != nil {
			return err
		}
		events = o.events
		return nil
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		k.bus.Publish(ev)
	}
	return nil
}

// read runs fn inside a read-only transaction. Lazy expiry still needs to
// delete rows, so read-only here means "the command has no externally
// requested write" — expiry-driven deletes and their `expired` notification
// still happen and are published exactly like write's.
func (k *Keyspace) read(ctx context.Context, db int, fn func(o *opCtx) error) error {
	var events []notify.Event
	err := k.eng.Transaction(ctx, nowMillis(), func(tx *storage.Tx) error {
		o := &opCtx{tx: tx, db: db}
		if err := fn(o); err != nil {
			return err
		}
		events = o.events
		return nil
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		k.bus.Publish(ev)
	}
	return nil
}

// lookup fetches the keys row for key, applying the lazy-expiry check from
// spec.md §4.2: an already-expired key is deleted in place and reported as
// absent (nil, nil), with an `expired` event queued for publish.
func (o *opCtx) lookup(key string) (*storage.Key, error) {
	row := o.tx.QueryRow(`SELECT id, type, expire_at, version, created_at, updated_at
		FROM keys WHERE db = ? AND key = ?`, o.db, key)

	var rec storage.Key
	rec.DB = o.db
	rec.Key = key
	var typ int
	var expireAt sql.NullInt64
	if err := row.Scan(&rec.ID, &typ, &expireAt, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperr.Storage(err)
	}
	rec.Type = storage.KeyType(typ)
	if expireAt.Valid {
		v := expireAt.Int64
		rec.ExpireAt = &v
	}

	if rec.ExpireAt != nil && *rec.ExpireAt <= o.tx.Now() {
		if _, err := o.tx.Exec(`DELETE FROM keys WHERE id = ?`, rec.ID); err != nil {
			return nil, apperr.Storage(err)
		}
		o.notify(key, notify.KindExpired)
		return nil, nil
	}
	return &rec, nil
}

// lookupType is lookup plus a WRONGTYPE check, the entry point for every
// type-specific command.
func (o *opCtx) lookupType(key string, want storage.KeyType) (*storage.Key, error) {
	rec, err := o.lookup(key)
	if err != nil || rec == nil {
		return rec, err
	}
	if rec.Type != want {
		return nil, apperr.WrongType()
	}
	return rec, nil
}

// createKey inserts a fresh keys row of the given type and returns it. Caller
// must not already hold a row for this (db,key).
func (o *opCtx) createKey(key string, typ storage.KeyType) (*storage.Key, error) {
	res, err := o.tx.Exec(`INSERT INTO keys(db, key, type, expire_at, version, created_at, updated_at)
		VALUES (?, ?, ?, NULL, 0, ?, ?)`, o.db, key, int(typ), o.tx.Now(), o.tx.Now())
	if err != nil {
		return nil, apperr.Storage(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return &storage.Key{ID: id, DB: o.db, Key: key, Type: typ, Version: 0, CreatedAt: o.tx.Now(), UpdatedAt: o.tx.Now()}, nil
}

// touch bumps a key's version and updated_at. Every mutation that changes a
// key's value (not just its expiry) must call this so WATCH sees it.
func (o *opCtx) touch(id int64) error {
	_, err := o.tx.Exec(`UPDATE keys SET version = version + 1, updated_at = ? WHERE id = ?`, o.tx.Now(), id)
	if err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// deleteKey removes a keys row (cascading to its child table) and queues a
// `del` notification.
func (o *opCtx) deleteKey(rec *storage.Key) error {
	if _, err := o.tx.Exec(`DELETE FROM keys WHERE id = ?`, rec.ID); err != nil {
		return apperr.Storage(err)
	}
	o.notify(rec.Key, notify.KindDel)
	return nil
}

// collapseIfEmpty deletes the key if its child table now holds zero rows for
// it, per the empty-container-collapse rule shared by lists/hashes/sets/zsets.
func (o *opCtx) collapseIfEmpty(rec *storage.Key, childTable string) (bool, error) {
	var n int
	if err := o.tx.QueryRow(`SELECT COUNT(*) FROM `+childTable+` WHERE key_id = ?`, rec.ID).Scan(&n); err != nil {
		return false, apperr.Storage(err)
	}
	if n == 0 {
		return true, o.deleteKey(rec)
	}
	return false, nil
}
