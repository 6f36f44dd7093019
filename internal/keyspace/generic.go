package keyspace

import (
	"context"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

// Del implements DEL/UNLINK: both are synchronous in Redlite (there is no
// separate reclamation thread to defer to), so UNLINK is just an alias
// wired at the dispatch layer.
func (k *Keyspace) Del(ctx context.Context, db int, keys []string) (deleted int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		for _, key := range keys {
			rec, err := o.lookup(key)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			if err := o.deleteKey(rec); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Exists implements EXISTS, counting each listed key once per occurrence
// (repeated keys count repeatedly, matching Redis).
func (k *Keyspace) Exists(ctx context.Context, db int, keys []string) (count int, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		for _, key := range keys {
			rec, err := o.lookup(key)
			if err != nil {
				return err
			}
			if rec != nil {
				count++
			}
		}
		return nil
	})
	return count, err
}

// KeyVersion returns a key's current version for WATCH to snapshot. A
// missing key reports version 0, exists=false — WATCHing an absent key and
// having it later created is itself a modification, so EXEC must treat
// "didn't exist, now does" as dirty too; internal/dispatch checks both the
// version and the exists flag at EXEC time.
func (k *Keyspace) KeyVersion(ctx context.Context, db int, key string) (version int64, exists bool, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec != nil {
			version, exists = rec.Version, true
		}
		return nil
	})
	return version, exists, err
}

// TypeOf implements TYPE.
func (k *Keyspace) TypeOf(ctx context.Context, db int, key string) (t storage.KeyType, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec != nil {
			t = rec.Type
		}
		return nil
	})
	return t, err
}

// Expire implements EXPIRE/PEXPIRE/EXPIREAT/PEXPIREAT, all reduced by the
// caller to an absolute millisecond deadline. The NX/XX/GT/LT condition
// flags mirror ZADD's, per the Redis 7 EXPIRE option set.
type ExpireCond int

const (
	ExpireAlways ExpireCond = iota
	ExpireNX
	ExpireXX
	ExpireGT
	ExpireLT
)

func (k *Keyspace) Expire(ctx context.Context, db int, key string, atMillis int64, cond ExpireCond) (applied bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil || rec == nil {
			return err
		}
		switch cond {
		case ExpireNX:
			if rec.ExpireAt != nil {
				return nil
			}
		case ExpireXX:
			if rec.ExpireAt == nil {
				return nil
			}
		case ExpireGT:
			if rec.ExpireAt != nil && atMillis <= *rec.ExpireAt {
				return nil
			}
		case ExpireLT:
			if rec.ExpireAt != nil && atMillis >= *rec.ExpireAt {
				return nil
			}
		}
		if atMillis <= o.tx.Now() {
			// Expiring into the past is equivalent to an immediate delete.
			applied = true
			return o.deleteKey(rec)
		}
		if _, e := o.tx.Exec(`UPDATE keys SET expire_at = ?, updated_at = ? WHERE id = ?`, atMillis, o.tx.Now(), rec.ID); e != nil {
			return apperr.Storage(e)
		}
		o.notify(key, notify.KindExpire)
		applied = true
		return nil
	})
	return applied, err
}

// TTL/PTTL implement TTL/PTTL: -2 if the key doesn't exist, -1 if it exists
// without a TTL, else the remaining duration in the requested unit.
func (k *Keyspace) TTL(ctx context.Context, db int, key string, millis bool) (result int64, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec == nil {
			result = -2
			return nil
		}
		if rec.ExpireAt == nil {
			result = -1
			return nil
		}
		remaining := *rec.ExpireAt - o.tx.Now()
		if remaining < 0 {
			remaining = 0
		}
		if millis {
			result = remaining
		} else {
			result = remaining / 1000
		}
		return nil
	})
	return result, err
}

// Persist implements PERSIST.
func (k *Keyspace) Persist(ctx context.Context, db int, key string) (applied bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil || rec == nil || rec.ExpireAt == nil {
			return err
		}
		if _, e := o.tx.Exec(`UPDATE keys SET expire_at = NULL, updated_at = ? WHERE id = ?`, o.tx.Now(), rec.ID); e != nil {
			return apperr.Storage(e)
		}
		o.notify(key, notify.KindPersist)
		applied = true
		return nil
	})
	return applied, err
}

// Rename implements RENAME (overwrites dst) and RenameNX implements
// RENAMENX (fails if dst exists).
func (k *Keyspace) Rename(ctx context.Context, db int, src, dst string) error {
	return k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(src)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.New(apperr.KindOutOfRange, "no such key")
		}
		if existing, err := o.lookup(dst); err != nil {
			return err
		} else if existing != nil {
			if err := o.deleteKey(existing); err != nil {
				return err
			}
		}
		if _, e := o.tx.Exec(`UPDATE keys SET key = ?, version = version + 1, updated_at = ? WHERE id = ?`, dst, o.tx.Now(), rec.ID); e != nil {
			return apperr.Storage(e)
		}
		o.notify(src, notify.KindRename)
		o.notify(dst, notify.KindSet)
		return nil
	})
}

func (k *Keyspace) RenameNX(ctx context.Context, db int, src, dst string) (renamed bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(src)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.New(apperr.KindOutOfRange, "no such key")
		}
		existing, err := o.lookup(dst)
		if err != nil {
			return err
		}
		if existing != nil {
			renamed = false
			return nil
		}
		if _, e := o.tx.Exec(`UPDATE keys SET key = ?, version = version + 1, updated_at = ? WHERE id = ?`, dst, o.tx.Now(), rec.ID); e != nil {
			return apperr.Storage(e)
		}
		o.notify(src, notify.KindRename)
		o.notify(dst, notify.KindSet)
		renamed = true
		return nil
	})
	return renamed, err
}

// RandomKey implements RANDOMKEY. SQLite's RANDOM() ordering over a
// (typically small) key count is adequate; this is diagnostic tooling, not a
// hot path.
func (k *Keyspace) RandomKey(ctx context.Context, db int) (key string, ok bool, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		row := o.tx.QueryRow(`SELECT key FROM keys WHERE db = ? AND (expire_at IS NULL OR expire_at > ?)
			ORDER BY RANDOM() LIMIT 1`, o.db, o.tx.Now())
		if e := row.Scan(&key); e != nil {
			return nil // no rows: db is empty, ok stays false
		}
		ok = true
		return nil
	})
	return key, ok, err
}

// Keys implements KEYS: returns every live (non-expired) key matching
// pattern, applying lazy expiry to each row it walks past. Discouraged for
// production use (it's O(n) and blocks the single writer) but supported.
func (k *Keyspace) Keys(ctx context.Context, db int, pattern string) (out []string, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rows, err := o.tx.Query(`SELECT key FROM keys WHERE db = ?`, o.db)
		if err != nil {
			return apperr.Storage(err)
		}
		var candidates []string
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return apperr.Storage(err)
			}
			candidates = append(candidates, key)
		}
		rows.Close()
		for _, key := range candidates {
			rec, err := o.lookup(key) // re-checks + applies lazy expiry
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			if pattern == "" || pattern == "*" || notify.Match(pattern, key) {
				out = append(out, key)
			}
		}
		return nil
	})
	return out, err
}

// DBSize implements DBSIZE, counting only non-expired keys.
func (k *Keyspace) DBSize(ctx context.Context, db int) (n int, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		row := o.tx.QueryRow(`SELECT COUNT(*) FROM keys WHERE db = ? AND (expire_at IS NULL OR expire_at > ?)`, o.db, o.tx.Now())
		if e := row.Scan(&n); e != nil {
			return apperr.Storage(e)
		}
		return nil
	})
	return n, err
}

// FlushDB implements FLUSHDB: delete every key in this logical db.
func (k *Keyspace) FlushDB(ctx context.Context, db int) error {
	return k.write(ctx, db, func(o *opCtx) error {
		if _, err := o.tx.Exec(`DELETE FROM keys WHERE db = ?`, o.db); err != nil {
			return apperr.Storage(err)
		}
		return nil
	})
}

// FlushAll implements FLUSHALL: delete every key across every logical db.
func (k *Keyspace) FlushAll(ctx context.Context) error {
	return k.write(ctx, 0, func(o *opCtx) error {
		if _, err := o.tx.Exec(`DELETE FROM keys`); err != nil {
			return apperr.Storage(err)
		}
		return nil
	})
}
