package keyspace

import (
	"context"
	"strconv"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

// The SCAN family's cursor is simply the last-seen keys.id (or child-table
// rowid for HSCAN/SSCAN/ZSCAN), encoded as a decimal string; "0" means
// "start from the beginning" and is also returned once iteration is
// exhausted. Because a live row's keys.id or child-table rowid never changes
// and a new row always gets an id above every existing one in its table
// (keys.id is AUTOINCREMENT and never reused; a child-table rowid can reuse
// the number of a deleted highest row), this gives the same full-iteration guarantee
// spec.md §4.1 asks for (every key present for the whole scan is seen at
// least once) without needing an opaque server-side cursor table.
func decodeCursor(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, apperr.InvalidCursor()
	}
	return n, nil
}

func encodeCursor(n int64) string {
	return strconv.FormatInt(n, 10)
}

const defaultScanCount = 10

// Scan implements SCAN over the keys table for one logical db.
func (k *Keyspace) Scan(ctx context.Context, db int, cursor string, pattern string, count int, typeFilter string) (nextCursor string, keys []string, err error) {
	startID, err := decodeCursor(cursor)
	if err != nil {
		return "", nil, err
	}
	if count <= 0 {
		count = defaultScanCount
	}
	err = k.write(ctx, db, func(o *opCtx) error {
		rows, e := o.tx.Query(`SELECT id, key, type FROM keys WHERE db = ? AND id > ? ORDER BY id ASC LIMIT ?`,
			o.db, startID, count)
		if e != nil {
			return apperr.Storage(e)
		}
		type row struct {
			id   int64
			key  string
			typ  int
		}
		var batch []row
		for rows.Next() {
			var r row
			if e := rows.Scan(&r.id, &r.key, &r.typ); e != nil {
				rows.Close()
				return apperr.Storage(e)
			}
			batch = append(batch, r)
		}
		rows.Close()

		lastID := startID
		for _, r := range batch {
			lastID = r.id
			rec, e := o.lookup(r.key) // applies lazy expiry
			if e != nil {
				return e
			}
			if rec == nil {
				continue
			}
			if typeFilter != "" && rec.Type.String() != typeFilter {
				continue
			}
			if pattern != "" && pattern != "*" && !notify.Match(pattern, r.key) {
				continue
			}
			keys = append(keys, r.key)
		}

		if len(batch) < count {
			nextCursor = encodeCursor(0)
		} else {
			nextCursor = encodeCursor(lastID)
		}
		return nil
	})
	return nextCursor, keys, err
}

// HScan implements HSCAN.
func (k *Keyspace) HScan(ctx context.Context, db int, key, cursor, pattern string, count int) (nextCursor string, fields []string, values [][]byte, err error) {
	startRowID, err := decodeCursor(cursor)
	if err != nil {
		return "", nil, nil, err
	}
	if count <= 0 {
		count = defaultScanCount
	}
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeHash)
		if err != nil || rec == nil {
			nextCursor = encodeCursor(0)
			return err
		}
		rows, e := o.tx.Query(`SELECT rowid, field, value FROM hashes WHERE key_id = ? AND rowid > ? ORDER BY rowid ASC LIMIT ?`,
			rec.ID, startRowID, count)
		if e != nil {
			return apperr.Storage(e)
		}
		defer rows.Close()
		n := 0
		lastRowID := startRowID
		for rows.Next() {
			var rowID int64
			var f string
			var v []byte
			if e := rows.Scan(&rowID, &f, &v); e != nil {
				return apperr.Storage(e)
			}
			n++
			lastRowID = rowID
			if pattern != "" && pattern != "*" && !notify.Match(pattern, f) {
				continue
			}
			fields = append(fields, f)
			values = append(values, v)
		}
		if n < count {
			nextCursor = encodeCursor(0)
		} else {
			nextCursor = encodeCursor(lastRowID)
		}
		return nil
	})
	return nextCursor, fields, values, err
}

// SScan implements SSCAN.
func (k *Keyspace) SScan(ctx context.Context, db int, key, cursor, pattern string, count int) (nextCursor string, members [][]byte, err error) {
	startRowID, err := decodeCursor(cursor)
	if err != nil {
		return "", nil, err
	}
	if count <= 0 {
		count = defaultScanCount
	}
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeSet)
		if err != nil || rec == nil {
			nextCursor = encodeCursor(0)
			return err
		}
		rows, e := o.tx.Query(`SELECT rowid, member FROM sets WHERE key_id = ? AND rowid > ? ORDER BY rowid ASC LIMIT ?`,
			rec.ID, startRowID, count)
		if e != nil {
			return apperr.Storage(e)
		}
		defer rows.Close()
		n := 0
		lastRowID := startRowID
		for rows.Next() {
			var rowID int64
			var m []byte
			if e := rows.Scan(&rowID, &m); e != nil {
				return apperr.Storage(e)
			}
			n++
			lastRowID = rowID
			if pattern != "" && pattern != "*" && !notify.Match(pattern, string(m)) {
				continue
			}
			members = append(members, m)
		}
		if n < count {
			nextCursor = encodeCursor(0)
		} else {
			nextCursor = encodeCursor(lastRowID)
		}
		return nil
	})
	return nextCursor, members, err
}

// ZScan implements ZSCAN.
func (k *Keyspace) ZScan(ctx context.Context, db int, key, cursor, pattern string, count int) (nextCursor string, out []ZMember, err error) {
	startRowID, err := decodeCursor(cursor)
	if err != nil {
		return "", nil, err
	}
	if count <= 0 {
		count = defaultScanCount
	}
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeZSet)
		if err != nil || rec == nil {
			nextCursor = encodeCursor(0)
			return err
		}
		rows, e := o.tx.Query(`SELECT rowid, member, score FROM zsets WHERE key_id = ? AND rowid > ? ORDER BY rowid ASC LIMIT ?`,
			rec.ID, startRowID, count)
		if e != nil {
			return apperr.Storage(e)
		}
		defer rows.Close()
		n := 0
		lastRowID := startRowID
		for rows.Next() {
			var rowID int64
			var m ZMember
			if e := rows.Scan(&rowID, &m.Member, &m.Score); e != nil {
				return apperr.Storage(e)
			}
			n++
			lastRowID = rowID
			if pattern != "" && pattern != "*" && !notify.Match(pattern, string(m.Member)) {
				continue
			}
			out = append(out, m)
		}
		if n < count {
			nextCursor = encodeCursor(0)
		} else {
			nextCursor = encodeCursor(lastRowID)
		}
		return nil
	})
	return nextCursor, out, err
}
