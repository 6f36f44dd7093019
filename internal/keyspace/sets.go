package keyspace

import (
	"context"
	"math/rand"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

// SAdd implements SADD, returning the count of members newly added.
func (k *Keyspace) SAdd(ctx context.Context, db int, key string, members [][]byte) (added int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec == nil {
			rec, err = o.createKey(key, storage.TypeSet)
			if err != nil {
				return err
			}
		} else if rec.Type != storage.TypeSet {
			return apperr.WrongType()
		}
		for _, m := range members {
			res, e := o.tx.Exec(`INSERT OR IGNORE INTO sets(key_id, member) VALUES (?, ?)`, rec.ID, m)
			if e != nil {
				return apperr.Storage(e)
			}
			n, _ := res.RowsAffected()
			added += int(n)
		}
		if added == 0 {
			return nil
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindSAdd)
		return nil
	})
	return added, err
}

// SRem implements SREM.
func (k *Keyspace) SRem(ctx context.Context, db int, key string, members [][]byte) (removed int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeSet)
		if err != nil || rec == nil {
			return err
		}
		for _, m := range members {
			res, e := o.tx.Exec(`DELETE FROM sets WHERE key_id = ? AND member = ?`, rec.ID, m)
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
		o.notify(key, notify.KindSRem)
		_, err = o.collapseIfEmpty(rec, "sets")
		return err
	})
	return removed, err
}

// SCard implements SCARD.
func (k *Keyspace) SCard(ctx context.Context, db int, key string) (n int, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeSet)
		if err != nil || rec == nil {
			return err
		}
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM sets WHERE key_id = ?`, rec.ID).Scan(&n); e != nil {
			return apperr.Storage(e)
		}
		return nil
	})
	return n, err
}

// SIsMember implements SISMEMBER.
func (k *Keyspace) SIsMember(ctx context.Context, db int, key string, member []byte) (ok bool, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeSet)
		if err != nil || rec == nil {
			return err
		}
		var n int
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM sets WHERE key_id = ? AND member = ?`, rec.ID, member).Scan(&n); e != nil {
			return apperr.Storage(e)
		}
		ok = n > 0
		return nil
	})
	return ok, err
}

// SMIsMember implements SMISMEMBER.
func (k *Keyspace) SMIsMember(ctx context.Context, db int, key string, members [][]byte) (out []bool, err error) {
	out = make([]bool, len(members))
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeSet)
		if err != nil || rec == nil {
			return err
		}
		for i, m := range members {
			var n int
			if e := o.tx.QueryRow(`SELECT COUNT(*) FROM sets WHERE key_id = ? AND member = ?`, rec.ID, m).Scan(&n); e != nil {
				return apperr.Storage(e)
			}
			out[i] = n > 0
		}
		return nil
	})
	return out, err
}

// SMembers implements SMEMBERS.
func (k *Keyspace) SMembers(ctx context.Context, db int, key string) (out [][]byte, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeSet)
		if err != nil || rec == nil {
			return err
		}
		out, err = o.setMembers(rec.ID)
		return err
	})
	return out, err
}

func (o *opCtx) setMembers(keyID int64) ([][]byte, error) {
	rows, err := o.tx.Query(`SELECT member FROM sets WHERE key_id = ?`, keyID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var m []byte
		if err := rows.Scan(&m); err != nil {
			return nil, apperr.Storage(err)
		}
		out = append(out, m)
	}
	return out, nil
}

// SPop implements SPOP with an optional count.
func (k *Keyspace) SPop(ctx context.Context, db int, key string, count int, hasCount bool) (out [][]byte, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeSet)
		if err != nil || rec == nil {
			return err
		}
		n := 1
		if hasCount {
			n = count
		}
		members, err := o.setMembers(rec.ID)
		if err != nil {
			return err
		}
		rand.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		if n > len(members) {
			n = len(members)
		}
		out = members[:n]
		for _, m := range out {
			if _, e := o.tx.Exec(`DELETE FROM sets WHERE key_id = ? AND member = ?`, rec.ID, m); e != nil {
				return apperr.Storage(e)
			}
		}
		if len(out) == 0 {
			return nil
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindSPop)
		_, err = o.collapseIfEmpty(rec, "sets")
		return err
	})
	return out, err
}

// SRandMember implements SRANDMEMBER. count==0,!hasCount means "one member,
// plain bulk reply" at the dispatch layer; here it always returns a slice.
// A negative count allows repeats (Redis semantics); a positive count caps
// at the set's size without repeats.
func (k *Keyspace) SRandMember(ctx context.Context, db int, key string, count int, hasCount bool) (out [][]byte, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeSet)
		if err != nil || rec == nil {
			return err
		}
		members, err := o.setMembers(rec.ID)
		if err != nil || len(members) == 0 {
			return err
		}
		if !hasCount {
			out = [][]byte{members[rand.Intn(len(members))]}
			return nil
		}
		if count < 0 {
			n := -count
			out = make([][]byte, n)
			for i := 0; i < n; i++ {
				out[i] = members[rand.Intn(len(members))]
			}
			return nil
		}
		rand.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		if count > len(members) {
			count = len(members)
		}
		out = members[:count]
		return nil
	})
	return out, err
}

// SMove implements SMOVE.
func (k *Keyspace) SMove(ctx context.Context, db int, src, dst string, member []byte) (moved bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		srcRec, err := o.lookupType(src, storage.TypeSet)
		if err != nil || srcRec == nil {
			return err
		}
		var n int
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM sets WHERE key_id = ? AND member = ?`, srcRec.ID, member).Scan(&n); e != nil {
			return apperr.Storage(e)
		}
		if n == 0 {
			return nil
		}
		dstRec, err := o.lookup(dst)
		if err != nil {
			return err
		}
		if dstRec == nil {
			dstRec, err = o.createKey(dst, storage.TypeSet)
			if err != nil {
				return err
			}
		} else if dstRec.Type != storage.TypeSet {
			return apperr.WrongType()
		}
		if _, e := o.tx.Exec(`DELETE FROM sets WHERE key_id = ? AND member = ?`, srcRec.ID, member); e != nil {
			return apperr.Storage(e)
		}
		if _, e := o.tx.Exec(`INSERT OR IGNORE INTO sets(key_id, member) VALUES (?, ?)`, dstRec.ID, member); e != nil {
			return apperr.Storage(e)
		}
		o.notify(src, notify.KindSRem)
		o.notify(dst, notify.KindSAdd)
		if err := o.touch(srcRec.ID); err != nil {
			return err
		}
		if err := o.touch(dstRec.ID); err != nil {
			return err
		}
		_, err = o.collapseIfEmpty(srcRec, "sets")
		if err != nil {
			return err
		}
		moved = true
		return nil
	})
	return moved, err
}

// SetOp selects which boolean combination a multi-set command performs.
type SetOp int

const (
	OpDiff SetOp = iota
	OpInter
	OpUnion
)

// combine computes keys[0] op keys[1] op ... in the reading transaction.
func (o *opCtx) combine(op SetOp, keys []string) ([][]byte, error) {
	sets := make([]map[string]struct{}, 0, len(keys))
	for _, key := range keys {
		rec, err := o.lookup(key)
		if err != nil {
			return nil, err
		}
		m := make(map[string]struct{})
		if rec != nil {
			if rec.Type != storage.TypeSet {
				return nil, apperr.WrongType()
			}
			members, err := o.setMembers(rec.ID)
			if err != nil {
				return nil, err
			}
			for _, v := range members {
				m[string(v)] = struct{}{}
			}
		}
		sets = append(sets, m)
	}
	if len(sets) == 0 {
		return nil, nil
	}

	result := sets[0]
	switch op {
	case OpDiff:
		for _, other := range sets[1:] {
			for m := range other {
				delete(result, m)
			}
		}
	case OpInter:
		for _, other := range sets[1:] {
			for m := range result {
				if _, ok := other[m]; !ok {
					delete(result, m)
				}
			}
		}
	case OpUnion:
		for _, other := range sets[1:] {
			for m := range other {
				result[m] = struct{}{}
			}
		}
	}
	out := make([][]byte, 0, len(result))
	for m := range result {
		out = append(out, []byte(m))
	}
	return out, nil
}

// SDiff/SInter/SUnion implement the read-only set-combination commands.
func (k *Keyspace) SCombine(ctx context.Context, db int, op SetOp, keys []string) (out [][]byte, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		out, err = o.combine(op, keys)
		return err
	})
	return out, err
}

// SCombineStore implements SDIFFSTORE/SINTERSTORE/SUNIONSTORE: compute then
// overwrite dst, deleting it if the result is empty.
func (k *Keyspace) SCombineStore(ctx context.Context, db int, op SetOp, dst string, keys []string) (n int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		result, err := o.combine(op, keys)
		if err != nil {
			return err
		}
		existing, err := o.lookup(dst)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := o.deleteKey(existing); err != nil {
				return err
			}
		}
		if len(result) == 0 {
			return nil
		}
		rec, err := o.createKey(dst, storage.TypeSet)
		if err != nil {
			return err
		}
		for _, m := range result {
			if _, e := o.tx.Exec(`INSERT OR IGNORE INTO sets(key_id, member) VALUES (?, ?)`, rec.ID, m); e != nil {
				return apperr.Storage(e)
			}
		}
		o.notify(dst, notify.KindSAdd)
		n = len(result)
		return nil
	})
	return n, err
}
