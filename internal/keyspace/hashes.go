package keyspace

import (
	"context"
	"strconv"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

// HSet implements HSET/HMSET (HMSET is HSET's pre-2.4 alias, reducible at
// dispatch). Returns the number of fields newly created (not updated).
func (k *Keyspace) HSet(ctx context.Context, db int, key string, fields map[string][]byte) (added int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec == nil {
			rec, err = o.createKey(key, storage.TypeHash)
			if err != nil {
				return err
			}
		} else if rec.Type != storage.TypeHash {
			return apperr.WrongType()
		}
		for field, val := range fields {
			var exists int
			if e := o.tx.QueryRow(`SELECT COUNT(*) FROM hashes WHERE key_id = ? AND field = ?`, rec.ID, field).Scan(&exists); e != nil {
				return apperr.Storage(e)
			}
			if _, e := o.tx.Exec(`INSERT INTO hashes(key_id, field, value) VALUES (?, ?, ?)
				ON CONFLICT(key_id, field) DO UPDATE SET value = excluded.value`, rec.ID, field, val); e != nil {
				return apperr.Storage(e)
			}
			if exists == 0 {
				added++
			}
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindHSet)
		return nil
	})
	return added, err
}

// HSetNX implements HSETNX.
func (k *Keyspace) HSetNX(ctx context.Context, db int, key, field string, value []byte) (set bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec != nil && rec.Type != storage.TypeHash {
			return apperr.WrongType()
		}
		if rec != nil {
			var exists int
			if e := o.tx.QueryRow(`SELECT COUNT(*) FROM hashes WHERE key_id = ? AND field = ?`, rec.ID, field).Scan(&exists); e != nil {
				return apperr.Storage(e)
			}
			if exists > 0 {
				return nil
			}
		} else {
			rec, err = o.createKey(key, storage.TypeHash)
			if err != nil {
				return err
			}
		}
		if _, e := o.tx.Exec(`INSERT INTO hashes(key_id, field, value) VALUES (?, ?, ?)`, rec.ID, field, value); e != nil {
			return apperr.Storage(e)
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindHSet)
		set = true
		return nil
	})
	return set, err
}

// HGet implements HGET.
func (k *Keyspace) HGet(ctx context.Context, db int, key, field string) (val []byte, ok bool, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeHash)
		if err != nil || rec == nil {
			return err
		}
		if e := o.tx.QueryRow(`SELECT value FROM hashes WHERE key_id = ? AND field = ?`, rec.ID, field).Scan(&val); e != nil {
			return nil // no such field: ok stays false
		}
		ok = true
		return nil
	})
	return val, ok, err
}

// HMGet implements HMGET.
func (k *Keyspace) HMGet(ctx context.Context, db int, key string, fields []string) (out [][]byte, err error) {
	out = make([][]byte, len(fields))
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeHash)
		if err != nil || rec == nil {
			return err
		}
		for i, f := range fields {
			var v []byte
			if e := o.tx.QueryRow(`SELECT value FROM hashes WHERE key_id = ? AND field = ?`, rec.ID, f).Scan(&v); e == nil {
				out[i] = v
			}
		}
		return nil
	})
	return out, err
}

// HDel implements HDEL, returning the number of fields actually removed.
func (k *Keyspace) HDel(ctx context.Context, db int, key string, fields []string) (removed int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeHash)
		if err != nil || rec == nil {
			return err
		}
		for _, f := range fields {
			res, e := o.tx.Exec(`DELETE FROM hashes WHERE key_id = ? AND field = ?`, rec.ID, f)
			if e != nil {
				return apperr.Storage(e)
			}
			n, _ := res.RowsAffected()
			removed += int(n)
		}
		if removed == 0 {
			return nil
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindHDel)
		_, err = o.collapseIfEmpty(rec, "hashes")
		return err
	})
	return removed, err
}

// HGetAll implements HGETALL.
func (k *Keyspace) HGetAll(ctx context.Context, db int, key string) (fields []string, values [][]byte, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeHash)
		if err != nil || rec == nil {
			return err
		}
		rows, err := o.tx.Query(`SELECT field, value FROM hashes WHERE key_id = ?`, rec.ID)
		if err != nil {
			return apperr.Storage(err)
		}
		defer rows.Close()
		for rows.Next() {
			var f string
			var v []byte
			if err := rows.Scan(&f, &v); err != nil {
				return apperr.Storage(err)
			}
			fields = append(fields, f)
			values = append(values, v)
		}
		return nil
	})
	return fields, values, err
}

// HKeys/HVals implement HKEYS/HVALS.
func (k *Keyspace) HKeys(ctx context.Context, db int, key string) ([]string, error) {
	fields, _, err := k.HGetAll(ctx, db, key)
	return fields, err
}

func (k *Keyspace) HVals(ctx context.Context, db int, key string) ([][]byte, error) {
	_, values, err := k.HGetAll(ctx, db, key)
	return values, err
}

// HLen implements HLEN.
func (k *Keyspace) HLen(ctx context.Context, db int, key string) (length int, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeHash)
		if err != nil || rec == nil {
			return err
		}
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM hashes WHERE key_id = ?`, rec.ID).Scan(&length); e != nil {
			return apperr.Storage(e)
		}
		return nil
	})
	return length, err
}

// HExists implements HEXISTS.
func (k *Keyspace) HExists(ctx context.Context, db int, key, field string) (exists bool, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeHash)
		if err != nil || rec == nil {
			return err
		}
		var n int
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM hashes WHERE key_id = ? AND field = ?`, rec.ID, field).Scan(&n); e != nil {
			return apperr.Storage(e)
		}
		exists = n > 0
		return nil
	})
	return exists, err
}

// HIncrBy implements HINCRBY.
func (k *Keyspace) HIncrBy(ctx context.Context, db int, key, field string, delta int64) (result int64, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec != nil && rec.Type != storage.TypeHash {
			return apperr.WrongType()
		}
		if rec == nil {
			rec, err = o.createKey(key, storage.TypeHash)
			if err != nil {
				return err
			}
		}
		var cur int64
		var v []byte
		if e := o.tx.QueryRow(`SELECT value FROM hashes WHERE key_id = ? AND field = ?`, rec.ID, field).Scan(&v); e == nil {
			if !isCanonicalInt(string(v)) {
				return apperr.NotInteger()
			}
			cur, err = strconv.ParseInt(string(v), 10, 64)
			if err != nil {
				return apperr.NotInteger()
			}
		}
		next := cur + delta
		if _, e := o.tx.Exec(`INSERT INTO hashes(key_id, field, value) VALUES (?, ?, ?)
			ON CONFLICT(key_id, field) DO UPDATE SET value = excluded.value`, rec.ID, field, []byte(strconv.FormatInt(next, 10))); e != nil {
			return apperr.Storage(e)
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindHSet)
		result = next
		return nil
	})
	return result, err
}

// HIncrByFloat implements HINCRBYFLOAT.
func (k *Keyspace) HIncrByFloat(ctx context.Context, db int, key, field string, delta float64) (result float64, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec != nil && rec.Type != storage.TypeHash {
			return apperr.WrongType()
		}
		if rec == nil {
			rec, err = o.createKey(key, storage.TypeHash)
			if err != nil {
				return err
			}
		}
		var cur float64
		var v []byte
		if e := o.tx.QueryRow(`SELECT value FROM hashes WHERE key_id = ? AND field = ?`, rec.ID, field).Scan(&v); e == nil {
			cur, err = strconv.ParseFloat(string(v), 64)
			if err != nil {
				return apperr.NotFloat()
			}
		}
		next := cur + delta
		formatted := strconv.FormatFloat(next, 'f', -1, 64)
		if _, e := o.tx.Exec(`INSERT INTO hashes(key_id, field, value) VALUES (?, ?, ?)
			ON CONFLICT(key_id, field) DO UPDATE SET value = excluded.value`, rec.ID, field, []byte(formatted)); e != nil {
			return apperr.Storage(e)
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindHSet)
		result = next
		return nil
	})
	return result, err
}
