package keyspace

import (
	"context"
	"strconv"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

func (o *opCtx) getString(key string) (*storage.Key, []byte, error) {
	rec, err := o.lookupType(key, storage.TypeString)
	if err != nil || rec == nil {
		return rec, nil, err
	}
	var val []byte
	if err := o.tx.QueryRow(`SELECT value FROM strings WHERE key_id = ?`, rec.ID).Scan(&val); err != nil {
		return nil, nil, apperr.Storage(err)
	}
	return rec, val, nil
}

// setString implements SET's core write (SETEX/PSETEX/SETNX/GETSET all
// funnel through this). expireAt is nil for no TTL.
func (o *opCtx) setString(key string, value []byte, expireAt *int64) error {
	rec, err := o.lookup(key)
	if err != nil {
		return err
	}
	if rec == nil {
		rec, err = o.createKey(key, storage.TypeString)
		if err != nil {
			return err
		}
		if _, err := o.tx.Exec(`INSERT INTO strings(key_id, value) VALUES (?, ?)`, rec.ID, value); err != nil {
			return apperr.Storage(err)
		}
	} else if rec.Type != storage.TypeString {
		// SET overwrites any type.
		if _, err := o.tx.Exec(`DELETE FROM keys WHERE id = ?`, rec.ID); err != nil {
			return apperr.Storage(err)
		}
		rec, err = o.createKey(key, storage.TypeString)
		if err != nil {
			return err
		}
		if _, err := o.tx.Exec(`INSERT INTO strings(key_id, value) VALUES (?, ?)`, rec.ID, value); err != nil {
			return apperr.Storage(err)
		}
	} else {
		if _, err := o.tx.Exec(`UPDATE strings SET value = ? WHERE key_id = ?`, value, rec.ID); err != nil {
			return apperr.Storage(err)
		}
	}
	if _, err := o.tx.Exec(`UPDATE keys SET expire_at = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		nullableInt64(expireAt), o.tx.Now(), rec.ID); err != nil {
		return apperr.Storage(err)
	}
	o.notify(key, notify.KindSet)
	return nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// SetOptions captures SET's NX/XX/KEEPTTL/GET/EX-family modifiers.
type SetOptions struct {
	NX, XX, KeepTTL, Get bool
	ExpireAtMillis       *int64 // absolute expiry; nil with KeepTTL means leave as-is, nil without means clear TTL
}

// Set implements SET, returning the previous value when opts.Get is set.
func (k *Keyspace) Set(ctx context.Context, db int, key string, value []byte, opts SetOptions) (prev []byte, set bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		exists := rec != nil
		if opts.Get {
			if exists && rec.Type != storage.TypeString {
				return apperr.WrongType()
			}
			if exists {
				if e := o.tx.QueryRow(`SELECT value FROM strings WHERE key_id = ?`, rec.ID).Scan(&prev); e != nil {
					return apperr.Storage(e)
				}
			}
		}
		if opts.NX && exists {
			set = false
			return nil
		}
		if opts.XX && !exists {
			set = false
			return nil
		}

		expireAt := opts.ExpireAtMillis
		if opts.KeepTTL && exists {
			expireAt = rec.ExpireAt
		}
		if err := o.setString(key, value, expireAt); err != nil {
			return err
		}
		set = true
		return nil
	})
	return prev, set, err
}

// Get implements GET.
func (k *Keyspace) Get(ctx context.Context, db int, key string) (val []byte, ok bool, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		_, v, err := o.getString(key)
		if err != nil {
			return err
		}
		val, ok = v, v != nil
		return nil
	})
	return val, ok, err
}

// GetSet implements GETSET: atomically set and return the prior value.
func (k *Keyspace) GetSet(ctx context.Context, db int, key string, value []byte) (prev []byte, hadPrev bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, v, err := o.getString(key)
		if err != nil {
			return err
		}
		if rec != nil {
			prev, hadPrev = v, true
		}
		return o.setString(key, value, nil)
	})
	return prev, hadPrev, err
}

// GetDel implements GETDEL: return the value and delete the key.
func (k *Keyspace) GetDel(ctx context.Context, db int, key string) (val []byte, ok bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, v, err := o.getString(key)
		if err != nil || rec == nil {
			return err
		}
		val, ok = v, true
		return o.deleteKey(rec)
	})
	return val, ok, err
}

// GetEx implements GETEX: return the value, optionally changing its TTL.
func (k *Keyspace) GetEx(ctx context.Context, db int, key string, expireAt *int64, persist bool) (val []byte, ok bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, v, err := o.getString(key)
		if err != nil || rec == nil {
			return err
		}
		val, ok = v, true
		if persist {
			if _, e := o.tx.Exec(`UPDATE keys SET expire_at = NULL, updated_at = ? WHERE id = ?`, o.tx.Now(), rec.ID); e != nil {
				return apperr.Storage(e)
			}
			o.notify(key, notify.KindPersist)
		} else if expireAt != nil {
			if _, e := o.tx.Exec(`UPDATE keys SET expire_at = ?, updated_at = ? WHERE id = ?`, *expireAt, o.tx.Now(), rec.ID); e != nil {
				return apperr.Storage(e)
			}
			o.notify(key, notify.KindExpire)
		}
		return nil
	})
	return val, ok, err
}

// Append implements APPEND, creating the key as an empty string first if
// absent, and returns the resulting length.
func (k *Keyspace) Append(ctx context.Context, db int, key string, suffix []byte) (length int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, v, err := o.getString(key)
		if err != nil {
			return err
		}
		if rec == nil {
			if err := o.setString(key, suffix, nil); err != nil {
				return err
			}
			length = len(suffix)
			return nil
		}
		merged := append(append([]byte{}, v...), suffix...)
		if _, e := o.tx.Exec(`UPDATE strings SET value = ? WHERE key_id = ?`, merged, rec.ID); e != nil {
			return apperr.Storage(e)
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindSet)
		length = len(merged)
		return nil
	})
	return length, err
}

// StrLen implements STRLEN.
func (k *Keyspace) StrLen(ctx context.Context, db int, key string) (length int, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		_, v, err := o.getString(key)
		if err != nil {
			return err
		}
		length = len(v)
		return nil
	})
	return length, err
}

// SetRange implements SETRANGE: overwrite value at offset, zero-padding as
// needed, creating the key if absent.
func (k *Keyspace) SetRange(ctx context.Context, db int, key string, offset int, value []byte) (length int, err error) {
	if offset < 0 {
		return 0, apperr.OutOfRange("offset is out of range")
	}
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, v, err := o.getString(key)
		if err != nil {
			return err
		}
		needed := offset + len(value)
		if needed > len(v) {
			grown := make([]byte, needed)
			copy(grown, v)
			v = grown
		}
		copy(v[offset:], value)
		if rec == nil {
			if err := o.setString(key, v, nil); err != nil {
				return err
			}
		} else {
			if _, e := o.tx.Exec(`UPDATE strings SET value = ? WHERE key_id = ?`, v, rec.ID); e != nil {
				return apperr.Storage(e)
			}
			if err := o.touch(rec.ID); err != nil {
				return err
			}
			o.notify(key, notify.KindSet)
		}
		length = len(v)
		return nil
	})
	return length, err
}

// GetRange implements GETRANGE with Redis's negative-index and clamping
// semantics.
func (k *Keyspace) GetRange(ctx context.Context, db int, key string, start, end int) (out []byte, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		_, v, err := o.getString(key)
		if err != nil {
			return err
		}
		out = sliceRange(v, start, end)
		return nil
	})
	return out, err
}

func sliceRange(v []byte, start, end int) []byte {
	n := len(v)
	if n == 0 {
		return []byte{}
	}
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if start > end || start >= n {
		return []byte{}
	}
	return append([]byte{}, v[start:end+1]...)
}

// MSet implements MSET: unconditional, order-independent-per-key set.
func (k *Keyspace) MSet(ctx context.Context, db int, pairs map[string][]byte) error {
	return k.write(ctx, db, func(o *opCtx) error {
		for key, val := range pairs {
			if err := o.setString(key, val, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// MSetNX implements MSETNX: set all pairs only if none already exist.
func (k *Keyspace) MSetNX(ctx context.Context, db int, pairs map[string][]byte) (set bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		for key := range pairs {
			rec, err := o.lookup(key)
			if err != nil {
				return err
			}
			if rec != nil {
				set = false
				return nil
			}
		}
		for key, val := range pairs {
			if err := o.setString(key, val, nil); err != nil {
				return err
			}
		}
		set = true
		return nil
	})
	return set, err
}

// MGet implements MGET: absent keys or wrong-type keys both yield nil
// without aborting the whole command.
func (k *Keyspace) MGet(ctx context.Context, db int, keys []string) (out [][]byte, err error) {
	out = make([][]byte, len(keys))
	err = k.read(ctx, db, func(o *opCtx) error {
		for i, key := range keys {
			rec, err := o.lookup(key)
			if err != nil {
				return err
			}
			if rec == nil || rec.Type != storage.TypeString {
				continue
			}
			var v []byte
			if e := o.tx.QueryRow(`SELECT value FROM strings WHERE key_id = ?`, rec.ID).Scan(&v); e != nil {
				return apperr.Storage(e)
			}
			out[i] = v
		}
		return nil
	})
	return out, err
}

func preserveTTL(rec *storage.Key) *int64 {
	if rec == nil {
		return nil
	}
	return rec.ExpireAt
}

func (k *Keyspace) Incr(ctx context.Context, db int, key string) (int64, error) {
	return k.incrBy(ctx, db, key, 1)
}
func (k *Keyspace) Decr(ctx context.Context, db int, key string) (int64, error) {
	return k.incrBy(ctx, db, key, -1)
}
func (k *Keyspace) IncrBy(ctx context.Context, db int, key string, delta int64) (int64, error) {
	return k.incrBy(ctx, db, key, delta)
}
func (k *Keyspace) DecrBy(ctx context.Context, db int, key string, delta int64) (int64, error) {
	return k.incrBy(ctx, db, key, -delta)
}

// incrBy backs INCR/DECR/INCRBY/DECRBY. The new value is computed inside the
// write closure, stored in a local, and returned explicitly afterwards.
func (k *Keyspace) incrBy(ctx context.Context, db int, key string, delta int64) (int64, error) {
	var result int64
	err := k.write(ctx, db, func(o *opCtx) error {
		rec, v, err := o.getString(key)
		if err != nil {
			return err
		}
		var cur int64
		if rec != nil {
			if !isCanonicalInt(string(v)) {
				return apperr.NotInteger()
			}
			cur, err = strconv.ParseInt(string(v), 10, 64)
			if err != nil {
				return apperr.NotInteger()
			}
		}
		next := cur + delta
		if (delta > 0 && next < cur) || (delta < 0 && next > cur) {
			return apperr.OutOfRange("increment or decrement would overflow")
		}
		if err := o.setString(key, []byte(strconv.FormatInt(next, 10)), preserveTTL(rec)); err != nil {
			return err
		}
		result = next
		return nil
	})
	return result, err
}

// IncrByFloat implements INCRBYFLOAT.
func (k *Keyspace) IncrByFloat(ctx context.Context, db int, key string, delta float64) (result float64, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, v, err := o.getString(key)
		if err != nil {
			return err
		}
		var cur float64
		if rec != nil {
			cur, err = strconv.ParseFloat(string(v), 64)
			if err != nil {
				return apperr.NotFloat()
			}
		}
		next := cur + delta
		formatted := strconv.FormatFloat(next, 'f', -1, 64)
		if err := o.setString(key, []byte(formatted), preserveTTL(rec)); err != nil {
			return err
		}
		result = next
		return nil
	})
	return result, err
}

// SetNX implements SETNX.
func (k *Keyspace) SetNX(ctx context.Context, db int, key string, value []byte) (set bool, err error) {
	_, set, err = k.Set(ctx, db, key, value, SetOptions{NX: true})
	return set, err
}

// SetEx/PSetEx implement SETEX/PSETEX (always succeed, overwrite).
func (k *Keyspace) SetEx(ctx context.Context, db int, key string, value []byte, expireAtMillis int64) error {
	_, _, err := k.Set(ctx, db, key, value, SetOptions{ExpireAtMillis: &expireAtMillis})
	return err
}
