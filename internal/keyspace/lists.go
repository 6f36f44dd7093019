package keyspace

import (
	"context"
	"database/sql"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

// Lists use sparse integer positions (the `lists.pos` column) instead of a
// dense 0..n-1 index so LPUSH/RPUSH/LINSERT never have to renumber the
// whole list: a push just allocates a position beyond the current min/max,
// and an insert allocates a position in the gap between two existing
// neighbors. Gaps start wide (listPosGap) and are only collapsed by a full
// renumber when they run out, which is rare in practice.
const listPosGap = 1 << 20

func (o *opCtx) listBounds(keyID int64) (min, max int64, err error) {
	var nmin, nmax sql.NullInt64
	row := o.tx.QueryRow(`SELECT MIN(pos), MAX(pos) FROM lists WHERE key_id = ?`, keyID)
	if e := row.Scan(&nmin, &nmax); e != nil {
		return 0, 0, apperr.Storage(e)
	}
	if nmin.Valid {
		min = nmin.Int64
	}
	if nmax.Valid {
		max = nmax.Int64
	}
	return min, max, nil
}

// renumber spreads every element of the list evenly across fresh positions,
// used when a gap between two neighbors has been exhausted by repeated
// LINSERTs at the same spot.
func (o *opCtx) listRenumber(keyID int64) error {
	rows, err := o.tx.Query(`SELECT rowid, value FROM lists WHERE key_id = ? ORDER BY pos ASC`, keyID)
	if err != nil {
		return apperr.Storage(err)
	}
	type row struct {
		rowid int64
		value []byte
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.rowid, &r.value); err != nil {
			rows.Close()
			return apperr.Storage(err)
		}
		all = append(all, r)
	}
	rows.Close()

	if _, err := o.tx.Exec(`DELETE FROM lists WHERE key_id = ?`, keyID); err != nil {
		return apperr.Storage(err)
	}
	pos := int64(0)
	for _, r := range all {
		if _, err := o.tx.Exec(`INSERT INTO lists(key_id, pos, value) VALUES (?, ?, ?)`, keyID, pos, r.value); err != nil {
			return apperr.Storage(err)
		}
		pos += listPosGap
	}
	return nil
}

// Push implements LPUSH/RPUSH (and their X variants via requireExists).
// Multiple values are pushed in argv order, each ending up adjacent to the
// head/tail in the order LPUSH/RPUSH would leave them in a dense list.
func (k *Keyspace) Push(ctx context.Context, db int, key string, values [][]byte, left, requireExists bool) (length int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec == nil {
			if requireExists {
				return nil
			}
			rec, err = o.createKey(key, storage.TypeList)
			if err != nil {
				return err
			}
		} else if rec.Type != storage.TypeList {
			return apperr.WrongType()
		}

		min, max, err := o.listBounds(rec.ID)
		if err != nil {
			return err
		}
		for _, v := range values {
			var pos int64
			if left {
				min -= listPosGap
				pos = min
			} else {
				max += listPosGap
				pos = max
			}
			if _, e := o.tx.Exec(`INSERT INTO lists(key_id, pos, value) VALUES (?, ?, ?)`, rec.ID, pos, v); e != nil {
				return apperr.Storage(e)
			}
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		kind := notify.KindRPush
		if left {
			kind = notify.KindLPush
		}
		o.notify(key, kind)

		var n int
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM lists WHERE key_id = ?`, rec.ID).Scan(&n); e != nil {
			return apperr.Storage(e)
		}
		length = n
		return nil
	})
	return length, err
}

// Pop implements LPOP/RPOP with an optional count (absent count pops one
// element and returns a single value; spec.md's COUNT form pops up to count).
func (k *Keyspace) Pop(ctx context.Context, db int, key string, left bool, count int, hasCount bool) (values [][]byte, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeList)
		if err != nil || rec == nil {
			return err
		}
		n := count
		if !hasCount {
			n = 1
		}
		order := "ASC"
		if !left {
			order = "DESC"
		}
		rows, err := o.tx.Query(`SELECT pos, value FROM lists WHERE key_id = ? ORDER BY pos `+order+` LIMIT ?`, rec.ID, n)
		if err != nil {
			return apperr.Storage(err)
		}
		var positions []int64
		for rows.Next() {
			var pos int64
			var v []byte
			if err := rows.Scan(&pos, &v); err != nil {
				rows.Close()
				return apperr.Storage(err)
			}
			positions = append(positions, pos)
			values = append(values, v)
		}
		rows.Close()
		for _, pos := range positions {
			if _, e := o.tx.Exec(`DELETE FROM lists WHERE key_id = ? AND pos = ?`, rec.ID, pos); e != nil {
				return apperr.Storage(e)
			}
		}
		if len(values) == 0 {
			return nil
		}
		kind := notify.KindRPop
		if left {
			kind = notify.KindLPop
		}
		o.notify(key, kind)
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		_, err = o.collapseIfEmpty(rec, "lists")
		return err
	})
	return values, err
}

// LLen implements LLEN.
func (k *Keyspace) LLen(ctx context.Context, db int, key string) (length int, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeList)
		if err != nil || rec == nil {
			return err
		}
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM lists WHERE key_id = ?`, rec.ID).Scan(&length); e != nil {
			return apperr.Storage(e)
		}
		return nil
	})
	return length, err
}

// LRange implements LRANGE with Redis's inclusive, negative-indexable
// bounds.
func (k *Keyspace) LRange(ctx context.Context, db int, key string, start, stop int) (out [][]byte, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeList)
		if err != nil || rec == nil {
			return err
		}
		all, err := o.listValues(rec.ID)
		if err != nil {
			return err
		}
		lo, hi := normalizeRange(len(all), start, stop)
		if lo > hi {
			return nil
		}
		out = append([][]byte{}, all[lo:hi+1]...)
		return nil
	})
	return out, err
}

func (o *opCtx) listValues(keyID int64) ([][]byte, error) {
	rows, err := o.tx.Query(`SELECT value FROM lists WHERE key_id = ? ORDER BY pos ASC`, keyID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, apperr.Storage(err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (o *opCtx) listPositions(keyID int64) ([]int64, error) {
	rows, err := o.tx.Query(`SELECT pos FROM lists WHERE key_id = ? ORDER BY pos ASC`, keyID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var p int64
		if err := rows.Scan(&p); err != nil {
			return nil, apperr.Storage(err)
		}
		out = append(out, p)
	}
	return out, nil
}

func normalizeRange(n, start, stop int) (int, int) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

// LIndex implements LINDEX.
func (k *Keyspace) LIndex(ctx context.Context, db int, key string, index int) (val []byte, ok bool, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeList)
		if err != nil || rec == nil {
			return err
		}
		all, err := o.listValues(rec.ID)
		if err != nil {
			return err
		}
		if index < 0 {
			index += len(all)
		}
		if index < 0 || index >= len(all) {
			return nil
		}
		val, ok = all[index], true
		return nil
	})
	return val, ok, err
}

// LSet implements LSET.
func (k *Keyspace) LSet(ctx context.Context, db int, key string, index int, value []byte) error {
	return k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeList)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.New(apperr.KindOutOfRange, "no such key")
		}
		positions, err := o.listPositions(rec.ID)
		if err != nil {
			return err
		}
		if index < 0 {
			index += len(positions)
		}
		if index < 0 || index >= len(positions) {
			return apperr.OutOfRange("index out of range")
		}
		if _, e := o.tx.Exec(`UPDATE lists SET value = ? WHERE key_id = ? AND pos = ?`, value, rec.ID, positions[index]); e != nil {
			return apperr.Storage(e)
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindLPush)
		return nil
	})
}

// LInsert implements LINSERT BEFORE|AFTER. Allocates a position in the
// midpoint of the gap between the pivot and its neighbor, falling back to a
// full renumber if that gap leaves no free position (neighbors 1 apart).
func (k *Keyspace) LInsert(ctx context.Context, db int, key string, before bool, pivot, value []byte) (length int, err error) {
	length = -1
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeList)
		if err != nil || rec == nil {
			return err
		}
		rows, err := o.tx.Query(`SELECT pos, value FROM lists WHERE key_id = ? ORDER BY pos ASC`, rec.ID)
		if err != nil {
			return apperr.Storage(err)
		}
		type entry struct {
			pos int64
			val []byte
		}
		var all []entry
		for rows.Next() {
			var e entry
			if err := rows.Scan(&e.pos, &e.val); err != nil {
				rows.Close()
				return apperr.Storage(err)
			}
			all = append(all, e)
		}
		rows.Close()

		idx := -1
		for i, e := range all {
			if bytesEqual(e.val, pivot) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil // length stays -1: pivot not found
		}

		var newPos int64
		needRenumber := false
		if before {
			if idx == 0 {
				newPos = all[0].pos - listPosGap
			} else {
				gap := all[idx].pos - all[idx-1].pos
				if gap < 2 {
					needRenumber = true
				} else {
					newPos = all[idx-1].pos + gap/2
				}
			}
		} else {
			if idx == len(all)-1 {
				newPos = all[idx].pos + listPosGap
			} else {
				gap := all[idx+1].pos - all[idx].pos
				if gap < 2 {
					needRenumber = true
				} else {
					newPos = all[idx].pos + gap/2
				}
			}
		}

		if needRenumber {
			if err := o.listRenumber(rec.ID); err != nil {
				return err
			}
			return k.lInsertAfterRenumber(o, rec.ID, before, pivot, value, &length)
		}

		if _, e := o.tx.Exec(`INSERT INTO lists(key_id, pos, value) VALUES (?, ?, ?)`, rec.ID, newPos, value); e != nil {
			return apperr.Storage(e)
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindLPush)
		length = len(all) + 1
		return nil
	})
	return length, err
}

// lInsertAfterRenumber retries the position search once after a renumber has
// given every element fresh, evenly spaced positions.
func (k *Keyspace) lInsertAfterRenumber(o *opCtx, keyID int64, before bool, pivot, value []byte, length *int) error {
	rows, err := o.tx.Query(`SELECT pos, value FROM lists WHERE key_id = ? ORDER BY pos ASC`, keyID)
	if err != nil {
		return apperr.Storage(err)
	}
	type entry struct {
		pos int64
		val []byte
	}
	var all []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.pos, &e.val); err != nil {
			rows.Close()
			return apperr.Storage(err)
		}
		all = append(all, e)
	}
	rows.Close()
	idx := -1
	for i, e := range all {
		if bytesEqual(e.val, pivot) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	var newPos int64
	if before {
		if idx == 0 {
			newPos = all[0].pos - listPosGap
		} else {
			newPos = all[idx-1].pos + (all[idx].pos-all[idx-1].pos)/2
		}
	} else {
		if idx == len(all)-1 {
			newPos = all[idx].pos + listPosGap
		} else {
			newPos = all[idx].pos + (all[idx+1].pos-all[idx].pos)/2
		}
	}
	if _, e := o.tx.Exec(`INSERT INTO lists(key_id, pos, value) VALUES (?, ?, ?)`, keyID, newPos, value); e != nil {
		return apperr.Storage(e)
	}
	if err := o.touch(keyID); err != nil {
		return err
	}
	*length = len(all) + 1
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LRem implements LREM: count>0 removes from head, count<0 from tail,
// count==0 removes every match.
func (k *Keyspace) LRem(ctx context.Context, db int, key string, count int, value []byte) (removed int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeList)
		if err != nil || rec == nil {
			return err
		}
		order := "ASC"
		if count < 0 {
			order = "DESC"
		}
		rows, err := o.tx.Query(`SELECT pos, value FROM lists WHERE key_id = ? ORDER BY pos `+order, rec.ID)
		if err != nil {
			return apperr.Storage(err)
		}
		limit := count
		if limit < 0 {
			limit = -limit
		}
		var toDelete []int64
		for rows.Next() {
			var pos int64
			var v []byte
			if err := rows.Scan(&pos, &v); err != nil {
				rows.Close()
				return apperr.Storage(err)
			}
			if bytesEqual(v, value) {
				toDelete = append(toDelete, pos)
				if limit > 0 && len(toDelete) >= limit {
					break
				}
			}
		}
		rows.Close()
		for _, pos := range toDelete {
			if _, e := o.tx.Exec(`DELETE FROM lists WHERE key_id = ? AND pos = ?`, rec.ID, pos); e != nil {
				return apperr.Storage(e)
			}
		}
		removed = len(toDelete)
		if removed > 0 {
			if err := o.touch(rec.ID); err != nil {
				return err
			}
			o.notify(key, notify.KindLPop)
			_, err = o.collapseIfEmpty(rec, "lists")
			return err
		}
		return nil
	})
	return removed, err
}

// LTrim implements LTRIM: keep only the [start,stop] inclusive window.
func (k *Keyspace) LTrim(ctx context.Context, db int, key string, start, stop int) error {
	return k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeList)
		if err != nil || rec == nil {
			return err
		}
		positions, err := o.listPositions(rec.ID)
		if err != nil {
			return err
		}
		lo, hi := normalizeRange(len(positions), start, stop)
		var keep map[int64]struct{}
		if lo <= hi {
			keep = make(map[int64]struct{}, hi-lo+1)
			for _, p := range positions[lo : hi+1] {
				keep[p] = struct{}{}
			}
		}
		for _, p := range positions {
			if _, ok := keep[p]; !ok {
				if _, e := o.tx.Exec(`DELETE FROM lists WHERE key_id = ? AND pos = ?`, rec.ID, p); e != nil {
					return apperr.Storage(e)
				}
			}
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		_, err = o.collapseIfEmpty(rec, "lists")
		return err
	})
}

// LMove implements LMOVE/RPOPLPUSH (RPOPLPUSH is LMove(src,dst,right,left)).
// src==dst is handled correctly: the popped element is re-pushed onto the
// same list, rotating it.
func (k *Keyspace) LMove(ctx context.Context, db int, src, dst string, srcLeft, dstLeft bool) (val []byte, ok bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		srcRec, err := o.lookupType(src, storage.TypeList)
		if err != nil || srcRec == nil {
			return err
		}
		order := "ASC"
		if !srcLeft {
			order = "DESC"
		}
		var pos int64
		row := o.tx.QueryRow(`SELECT pos, value FROM lists WHERE key_id = ? ORDER BY pos `+order+` LIMIT 1`, srcRec.ID)
		if e := row.Scan(&pos, &val); e != nil {
			return nil // empty list: ok stays false
		}
		if _, e := o.tx.Exec(`DELETE FROM lists WHERE key_id = ? AND pos = ?`, srcRec.ID, pos); e != nil {
			return apperr.Storage(e)
		}
		popKind := notify.KindRPop
		if srcLeft {
			popKind = notify.KindLPop
		}
		o.notify(src, popKind)
		if err := o.touch(srcRec.ID); err != nil {
			return err
		}

		dstRec, err := o.lookup(dst)
		if err != nil {
			return err
		}
		if dstRec == nil {
			dstRec, err = o.createKey(dst, storage.TypeList)
			if err != nil {
				return err
			}
		} else if dstRec.Type != storage.TypeList {
			return apperr.WrongType()
		}
		min, max, err := o.listBounds(dstRec.ID)
		if err != nil {
			return err
		}
		var newPos int64
		if dstLeft {
			newPos = min - listPosGap
		} else {
			newPos = max + listPosGap
		}
		if _, e := o.tx.Exec(`INSERT INTO lists(key_id, pos, value) VALUES (?, ?, ?)`, dstRec.ID, newPos, val); e != nil {
			return apperr.Storage(e)
		}
		pushKind := notify.KindRPush
		if dstLeft {
			pushKind = notify.KindLPush
		}
		o.notify(dst, pushKind)
		if err := o.touch(dstRec.ID); err != nil {
			return err
		}
		_, err = o.collapseIfEmpty(srcRec, "lists")
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	return val, ok, err
}

// LPos implements LPOS (without the RANK/COUNT combinatorics beyond a single
// forward or reverse match, which covers the common case).
func (k *Keyspace) LPos(ctx context.Context, db int, key string, value []byte, rank int) (index int, ok bool, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeList)
		if err != nil || rec == nil {
			return err
		}
		all, err := o.listValues(rec.ID)
		if err != nil {
			return err
		}
		if rank >= 0 {
			skip := rank
			if skip == 0 {
				skip = 1
			}
			for i, v := range all {
				if bytesEqual(v, value) {
					skip--
					if skip == 0 {
						index, ok = i, true
						return nil
					}
				}
			}
			return nil
		}
		skip := -rank
		for i := len(all) - 1; i >= 0; i-- {
			if bytesEqual(all[i], value) {
				skip--
				if skip == 0 {
					index, ok = i, true
					return nil
				}
			}
		}
		return nil
	})
	return index, ok, err
}
