package keyspace

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

// StreamID is a stream entry ID: milliseconds since epoch plus a sequence
// number disambiguating entries added within the same millisecond.
type StreamID struct {
	MS  int64
	Seq int64
}

func (id StreamID) String() string { return fmt.Sprintf("%d-%d", id.MS, id.Seq) }

func (id StreamID) Less(other StreamID) bool {
	if id.MS != other.MS {
		return id.MS < other.MS
	}
	return id.Seq < other.Seq
}

// ParseStreamID parses "ms-seq" or bare "ms" (seq defaults to seqDefault).
func ParseStreamID(s string, seqDefault int64) (StreamID, error) {
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return StreamID{}, apperr.New(apperr.KindSyntaxError, "Invalid stream ID specified as stream command argument")
	}
	if len(parts) == 1 {
		return StreamID{MS: ms, Seq: seqDefault}, nil
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return StreamID{}, apperr.New(apperr.KindSyntaxError, "Invalid stream ID specified as stream command argument")
	}
	return StreamID{MS: ms, Seq: seq}, nil
}

// XAdd implements XADD. idSpec is "*" for fully automatic IDs, "ms-*" for an
// auto sequence within a given millisecond, or a fully explicit "ms-seq".
// maxLen/minID (mutually exclusive, maxLen<0/minID=nil meaning "unset")
// apply the corresponding MAXLEN/MINID trim after the append, per spec.md's
// XADD/XTRIM invariants.
func (k *Keyspace) XAdd(ctx context.Context, db int, key, idSpec string, fields [][2][]byte, maxLen int64, minID *StreamID) (assigned StreamID, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec != nil && rec.Type != storage.TypeStream {
			return apperr.WrongType()
		}
		if rec == nil {
			rec, err = o.createKey(key, storage.TypeStream)
			if err != nil {
				return err
			}
		}

		var lastMS, lastSeq int64
		hasLast := false
		if e := o.tx.QueryRow(`SELECT entry_ms, entry_seq FROM streams WHERE key_id = ?
			ORDER BY entry_ms DESC, entry_seq DESC LIMIT 1`, rec.ID).Scan(&lastMS, &lastSeq); e == nil {
			hasLast = true
		}

		id, err := resolveXAddID(idSpec, o.tx.Now(), lastMS, lastSeq, hasLast)
		if err != nil {
			return err
		}
		if hasLast && !(StreamID{MS: lastMS, Seq: lastSeq}).Less(id) {
			return apperr.New(apperr.KindOutOfRange, "The ID specified in XADD is equal or smaller than the target stream top item")
		}

		data := encodeStreamFields(fields)
		if _, e := o.tx.Exec(`INSERT INTO streams(key_id, entry_ms, entry_seq, data, created_at) VALUES (?, ?, ?, ?, ?)`,
			rec.ID, id.MS, id.Seq, data, o.tx.Now()); e != nil {
			return apperr.Storage(e)
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindXAdd)

		if maxLen >= 0 {
			if err := o.xtrimMaxLen(rec.ID, maxLen); err != nil {
				return err
			}
		}
		if minID != nil {
			if err := o.xtrimMinID(rec.ID, *minID); err != nil {
				return err
			}
		}
		assigned = id
		return nil
	})
	return assigned, err
}

func resolveXAddID(spec string, nowMS, lastMS, lastSeq int64, hasLast bool) (StreamID, error) {
	if spec == "*" {
		ms := nowMS
		seq := int64(0)
		if hasLast && lastMS == ms {
			seq = lastSeq + 1
		} else if hasLast && lastMS > ms {
			ms, seq = lastMS, lastSeq+1
		}
		return StreamID{MS: ms, Seq: seq}, nil
	}
	if strings.HasSuffix(spec, "-*") {
		msPart := strings.TrimSuffix(spec, "-*")
		ms, err := strconv.ParseInt(msPart, 10, 64)
		if err != nil {
			return StreamID{}, apperr.New(apperr.KindSyntaxError, "Invalid stream ID specified as stream command argument")
		}
		seq := int64(0)
		if hasLast && lastMS == ms {
			seq = lastSeq + 1
		}
		return StreamID{MS: ms, Seq: seq}, nil
	}
	return ParseStreamID(spec, 0)
}

// encodeStreamFields flattens field/value pairs into the `streams.data` blob
// using a simple length-prefixed frame (not JSON: field/value content is
// arbitrary bytes, not necessarily valid UTF-8).
func encodeStreamFields(fields [][2][]byte) []byte {
	var buf []byte
	putUint32 := func(n int) {
		buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
	for _, kv := range fields {
		putUint32(len(kv[0]))
		buf = append(buf, kv[0]...)
		putUint32(len(kv[1]))
		buf = append(buf, kv[1]...)
	}
	return buf
}

func decodeStreamFields(data []byte) [][2][]byte {
	var out [][2][]byte
	readUint32 := func() int {
		n := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
		data = data[4:]
		return n
	}
	for len(data) > 0 {
		flen := readUint32()
		field := data[:flen]
		data = data[flen:]
		vlen := readUint32()
		value := data[:vlen]
		data = data[vlen:]
		out = append(out, [2][]byte{field, value})
	}
	return out
}

// StreamEntry is one returned XRANGE/XREAD/XCLAIM row.
type StreamEntry struct {
	ID     StreamID
	Fields [][2][]byte
}

// XLen implements XLEN.
func (k *Keyspace) XLen(ctx context.Context, db int, key string) (n int, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeStream)
		if err != nil || rec == nil {
			return err
		}
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM streams WHERE key_id = ?`, rec.ID).Scan(&n); e != nil {
			return apperr.Storage(e)
		}
		return nil
	})
	return n, err
}

// XRange implements XRANGE/XREVRANGE (desc selects XREVRANGE's traversal
// order). count<0 means unbounded.
func (k *Keyspace) XRange(ctx context.Context, db int, key string, min, max StreamID, desc bool, count int) (out []StreamEntry, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeStream)
		if err != nil || rec == nil {
			return err
		}
		order := "ASC"
		if desc {
			order = "DESC"
		}
		query := `SELECT entry_ms, entry_seq, data FROM streams WHERE key_id = ?
			AND (entry_ms > ? OR (entry_ms = ? AND entry_seq >= ?))
			AND (entry_ms < ? OR (entry_ms = ? AND entry_seq <= ?))
			ORDER BY entry_ms ` + order + `, entry_seq ` + order
		if count >= 0 {
			query += fmt.Sprintf(" LIMIT %d", count)
		}
		rows, e := o.tx.Query(query, rec.ID, min.MS, min.MS, min.Seq, max.MS, max.MS, max.Seq)
		if e != nil {
			return apperr.Storage(e)
		}
		defer rows.Close()
		for rows.Next() {
			var ms, seq int64
			var data []byte
			if e := rows.Scan(&ms, &seq, &data); e != nil {
				return apperr.Storage(e)
			}
			out = append(out, StreamEntry{ID: StreamID{MS: ms, Seq: seq}, Fields: decodeStreamFields(data)})
		}
		return nil
	})
	return out, err
}

// XDel implements XDEL.
func (k *Keyspace) XDel(ctx context.Context, db int, key string, ids []StreamID) (removed int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeStream)
		if err != nil || rec == nil {
			return err
		}
		for _, id := range ids {
			res, e := o.tx.Exec(`DELETE FROM streams WHERE key_id = ? AND entry_ms = ? AND entry_seq = ?`, rec.ID, id.MS, id.Seq)
			if e != nil {
				return apperr.Storage(e)
			}
			n, _ := res.RowsAffected()
			removed += int(n)
		}
		if removed > 0 {
			if err := o.touch(rec.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

func (o *opCtx) xtrimMaxLen(keyID, maxLen int64) error {
	var n int64
	if e := o.tx.QueryRow(`SELECT COUNT(*) FROM streams WHERE key_id = ?`, keyID).Scan(&n); e != nil {
		return apperr.Storage(e)
	}
	if n <= maxLen {
		return nil
	}
	toDrop := n - maxLen
	if _, e := o.tx.Exec(`DELETE FROM streams WHERE id IN (
		SELECT id FROM streams WHERE key_id = ? ORDER BY entry_ms ASC, entry_seq ASC LIMIT ?)`, keyID, toDrop); e != nil {
		return apperr.Storage(e)
	}
	return nil
}

func (o *opCtx) xtrimMinID(keyID int64, minID StreamID) error {
	if _, e := o.tx.Exec(`DELETE FROM streams WHERE key_id = ? AND (entry_ms < ? OR (entry_ms = ? AND entry_seq < ?))`,
		keyID, minID.MS, minID.MS, minID.Seq); e != nil {
		return apperr.Storage(e)
	}
	return nil
}

// XTrim implements XTRIM, returning the number of entries removed.
func (k *Keyspace) XTrim(ctx context.Context, db int, key string, maxLen int64, minID *StreamID) (removed int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeStream)
		if err != nil || rec == nil {
			return err
		}
		var before int
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM streams WHERE key_id = ?`, rec.ID).Scan(&before); e != nil {
			return apperr.Storage(e)
		}
		if maxLen >= 0 {
			if err := o.xtrimMaxLen(rec.ID, maxLen); err != nil {
				return err
			}
		}
		if minID != nil {
			if err := o.xtrimMinID(rec.ID, *minID); err != nil {
				return err
			}
		}
		var after int
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM streams WHERE key_id = ?`, rec.ID).Scan(&after); e != nil {
			return apperr.Storage(e)
		}
		removed = before - after
		if removed > 0 {
			o.notify(key, notify.KindXTrim)
			if err := o.touch(rec.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// XRead implements XREAD: read every entry strictly after `after[key]` for
// each listed stream. It never waits; internal/dispatch ignores XREAD's
// BLOCK option and replies with whatever this returns.
func (k *Keyspace) XRead(ctx context.Context, db int, streams map[string]StreamID, count int) (out map[string][]StreamEntry, err error) {
	out = make(map[string][]StreamEntry)
	err = k.read(ctx, db, func(o *opCtx) error {
		for key, after := range streams {
			rec, err := o.lookupType(key, storage.TypeStream)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			query := `SELECT entry_ms, entry_seq, data FROM streams WHERE key_id = ?
				AND (entry_ms > ? OR (entry_ms = ? AND entry_seq > ?)) ORDER BY entry_ms ASC, entry_seq ASC`
			if count > 0 {
				query += fmt.Sprintf(" LIMIT %d", count)
			}
			rows, e := o.tx.Query(query, rec.ID, after.MS, after.MS, after.Seq)
			if e != nil {
				return apperr.Storage(e)
			}
			var entries []StreamEntry
			for rows.Next() {
				var ms, seq int64
				var data []byte
				if e := rows.Scan(&ms, &seq, &data); e != nil {
					rows.Close()
					return apperr.Storage(e)
				}
				entries = append(entries, StreamEntry{ID: StreamID{MS: ms, Seq: seq}, Fields: decodeStreamFields(data)})
			}
			rows.Close()
			if len(entries) > 0 {
				out[key] = entries
			}
		}
		return nil
	})
	return out, err
}

// XGroupCreate implements XGROUP CREATE. mkstream creates the stream if it
// doesn't already exist, matching the MKSTREAM flag.
func (k *Keyspace) XGroupCreate(ctx context.Context, db int, key, group string, startID StreamID, mkstream bool) error {
	return k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec != nil && rec.Type != storage.TypeStream {
			return apperr.WrongType()
		}
		if rec == nil {
			if !mkstream {
				return apperr.NoGroup("The XGROUP subcommand requires the key to exist. Note that for CREATE you may want to use the MKSTREAM option to create an empty stream automatically.")
			}
			rec, err = o.createKey(key, storage.TypeStream)
			if err != nil {
				return err
			}
		}
		var exists int
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM stream_groups WHERE key_id = ? AND name = ?`, rec.ID, group).Scan(&exists); e != nil {
			return apperr.Storage(e)
		}
		if exists > 0 {
			return apperr.BusyGroup()
		}
		if _, e := o.tx.Exec(`INSERT INTO stream_groups(key_id, name, last_ms, last_seq) VALUES (?, ?, ?, ?)`,
			rec.ID, group, startID.MS, startID.Seq); e != nil {
			return apperr.Storage(e)
		}
		return nil
	})
}

func (o *opCtx) groupID(streamKeyID int64, group string) (int64, int64, int64, error) {
	var groupID, lastMS, lastSeq int64
	if e := o.tx.QueryRow(`SELECT id, last_ms, last_seq FROM stream_groups WHERE key_id = ? AND name = ?`, streamKeyID, group).
		Scan(&groupID, &lastMS, &lastSeq); e != nil {
		return 0, 0, 0, apperr.NoGroup("No such consumer group")
	}
	return groupID, lastMS, lastSeq, nil
}

// XReadGroup implements XREADGROUP for the ">" (new messages) form: reads
// past the group's last-delivered ID, advances it, and records each
// delivered entry as pending for consumer.
func (k *Keyspace) XReadGroup(ctx context.Context, db int, key, group, consumer string, count int) (out []StreamEntry, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeStream)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.NoGroup("No such key")
		}
		groupID, lastMS, lastSeq, err := o.groupID(rec.ID, group)
		if err != nil {
			return err
		}
		query := `SELECT id, entry_ms, entry_seq, data FROM streams WHERE key_id = ?
			AND (entry_ms > ? OR (entry_ms = ? AND entry_seq > ?)) ORDER BY entry_ms ASC, entry_seq ASC`
		if count > 0 {
			query += fmt.Sprintf(" LIMIT %d", count)
		}
		rows, e := o.tx.Query(query, rec.ID, lastMS, lastMS, lastSeq)
		if e != nil {
			return apperr.Storage(e)
		}
		var entryRowIDs []int64
		newMS, newSeq := lastMS, lastSeq
		for rows.Next() {
			var entryRowID, ms, seq int64
			var data []byte
			if e := rows.Scan(&entryRowID, &ms, &seq, &data); e != nil {
				rows.Close()
				return apperr.Storage(e)
			}
			out = append(out, StreamEntry{ID: StreamID{MS: ms, Seq: seq}, Fields: decodeStreamFields(data)})
			entryRowIDs = append(entryRowIDs, entryRowID)
			newMS, newSeq = ms, seq
		}
		rows.Close()
		if len(out) == 0 {
			return nil
		}

		var consumerID int64
		if e := o.tx.QueryRow(`INSERT INTO stream_consumers(group_id, name, seen_time) VALUES (?, ?, ?)
			ON CONFLICT(group_id, name) DO UPDATE SET seen_time = excluded.seen_time RETURNING id`,
			groupID, consumer, o.tx.Now()).Scan(&consumerID); e != nil {
			return apperr.Storage(e)
		}
		for _, entryRowID := range entryRowIDs {
			if _, e := o.tx.Exec(`INSERT INTO stream_pending(key_id, group_id, entry_id, consumer, delivered_at, delivery_count)
				VALUES (?, ?, ?, ?, ?, 1)
				ON CONFLICT(group_id, entry_id) DO UPDATE SET consumer = excluded.consumer,
					delivered_at = excluded.delivered_at, delivery_count = stream_pending.delivery_count + 1`,
				rec.ID, groupID, entryRowID, consumer, o.tx.Now()); e != nil {
				return apperr.Storage(e)
			}
		}
		if _, e := o.tx.Exec(`UPDATE stream_groups SET last_ms = ?, last_seq = ? WHERE id = ?`, newMS, newSeq, groupID); e != nil {
			return apperr.Storage(e)
		}
		return nil
	})
	return out, err
}

// XAck implements XACK.
func (k *Keyspace) XAck(ctx context.Context, db int, key, group string, ids []StreamID) (acked int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeStream)
		if err != nil || rec == nil {
			return err
		}
		groupID, _, _, err := o.groupID(rec.ID, group)
		if err != nil {
			return err
		}
		for _, id := range ids {
			res, e := o.tx.Exec(`DELETE FROM stream_pending WHERE group_id = ? AND entry_id = (
				SELECT id FROM streams WHERE key_id = ? AND entry_ms = ? AND entry_seq = ?)`,
				groupID, rec.ID, id.MS, id.Seq)
			if e != nil {
				return apperr.Storage(e)
			}
			n, _ := res.RowsAffected()
			acked += int(n)
		}
		return nil
	})
	return acked, err
}

// PendingEntry is one row of XPENDING's extended form.
type PendingEntry struct {
	ID            StreamID
	Consumer      string
	IdleMillis    int64
	DeliveryCount int
}

// XPending implements XPENDING's extended form (start/end/count/consumer).
// The summary form (no range) is left to the dispatcher: it can derive
// count/min/max/per-consumer totals by calling this with an unbounded range.
func (k *Keyspace) XPending(ctx context.Context, db int, key, group string, min, max StreamID, count int, consumer string) (out []PendingEntry, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeStream)
		if err != nil || rec == nil {
			return err
		}
		groupID, _, _, err := o.groupID(rec.ID, group)
		if err != nil {
			return err
		}
		query := `SELECT s.entry_ms, s.entry_seq, p.consumer, p.delivered_at, p.delivery_count
			FROM stream_pending p JOIN streams s ON s.id = p.entry_id
			WHERE p.group_id = ?
			AND (s.entry_ms > ? OR (s.entry_ms = ? AND s.entry_seq >= ?))
			AND (s.entry_ms < ? OR (s.entry_ms = ? AND s.entry_seq <= ?))`
		args := []any{groupID, min.MS, min.MS, min.Seq, max.MS, max.MS, max.Seq}
		if consumer != "" {
			query += " AND p.consumer = ?"
			args = append(args, consumer)
		}
		query += " ORDER BY s.entry_ms ASC, s.entry_seq ASC"
		if count > 0 {
			query += fmt.Sprintf(" LIMIT %d", count)
		}
		rows, e := o.tx.Query(query, args...)
		if e != nil {
			return apperr.Storage(e)
		}
		defer rows.Close()
		for rows.Next() {
			var ms, seq, deliveredAt int64
			var cons string
			var deliveryCount int
			if e := rows.Scan(&ms, &seq, &cons, &deliveredAt, &deliveryCount); e != nil {
				return apperr.Storage(e)
			}
			out = append(out, PendingEntry{
				ID:            StreamID{MS: ms, Seq: seq},
				Consumer:      cons,
				IdleMillis:    o.tx.Now() - deliveredAt,
				DeliveryCount: deliveryCount,
			})
		}
		return nil
	})
	return out, err
}

// XClaim implements XCLAIM: reassign pending entries idle at least
// minIdleMillis to a new consumer.
func (k *Keyspace) XClaim(ctx context.Context, db int, key, group, consumer string, minIdleMillis int64, ids []StreamID) (out []StreamEntry, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeStream)
		if err != nil || rec == nil {
			return err
		}
		groupID, _, _, err := o.groupID(rec.ID, group)
		if err != nil {
			return err
		}
		var consumerID int64
		if e := o.tx.QueryRow(`INSERT INTO stream_consumers(group_id, name, seen_time) VALUES (?, ?, ?)
			ON CONFLICT(group_id, name) DO UPDATE SET seen_time = excluded.seen_time RETURNING id`,
			groupID, consumer, o.tx.Now()).Scan(&consumerID); e != nil {
			return apperr.Storage(e)
		}
		for _, id := range ids {
			var entryRowID int64
			var data []byte
			if e := o.tx.QueryRow(`SELECT id, data FROM streams WHERE key_id = ? AND entry_ms = ? AND entry_seq = ?`,
				rec.ID, id.MS, id.Seq).Scan(&entryRowID, &data); e != nil {
				continue // entry no longer exists; XCLAIM silently skips it
			}
			var deliveredAt int64
			if e := o.tx.QueryRow(`SELECT delivered_at FROM stream_pending WHERE group_id = ? AND entry_id = ?`,
				groupID, entryRowID).Scan(&deliveredAt); e != nil {
				continue // not pending for this group
			}
			if o.tx.Now()-deliveredAt < minIdleMillis {
				continue
			}
			if _, e := o.tx.Exec(`UPDATE stream_pending SET consumer = ?, delivered_at = ?, delivery_count = delivery_count + 1
				WHERE group_id = ? AND entry_id = ?`, consumer, o.tx.Now(), groupID, entryRowID); e != nil {
				return apperr.Storage(e)
			}
			out = append(out, StreamEntry{ID: id, Fields: decodeStreamFields(data)})
		}
		return nil
	})
	return out, err
}

// StreamInfo is XINFO STREAM's summary payload.
type StreamInfo struct {
	Length       int
	LastID       StreamID
	FirstEntryID StreamID
	Groups       int
}

// XInfoStream implements XINFO STREAM.
func (k *Keyspace) XInfoStream(ctx context.Context, db int, key string) (info StreamInfo, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeStream)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.New(apperr.KindOutOfRange, "no such key")
		}
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM streams WHERE key_id = ?`, rec.ID).Scan(&info.Length); e != nil {
			return apperr.Storage(e)
		}
		var lastMS, lastSeq, firstMS, firstSeq int64
		_ = o.tx.QueryRow(`SELECT entry_ms, entry_seq FROM streams WHERE key_id = ? ORDER BY entry_ms DESC, entry_seq DESC LIMIT 1`, rec.ID).
			Scan(&lastMS, &lastSeq)
		_ = o.tx.QueryRow(`SELECT entry_ms, entry_seq FROM streams WHERE key_id = ? ORDER BY entry_ms ASC, entry_seq ASC LIMIT 1`, rec.ID).
			Scan(&firstMS, &firstSeq)
		info.LastID = StreamID{MS: lastMS, Seq: lastSeq}
		info.FirstEntryID = StreamID{MS: firstMS, Seq: firstSeq}
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM stream_groups WHERE key_id = ?`, rec.ID).Scan(&info.Groups); e != nil {
			return apperr.Storage(e)
		}
		return nil
	})
	return info, err
}

// GroupInfo is one row of XINFO GROUPS.
type GroupInfo struct {
	Name            string
	Consumers       int
	Pending         int
	LastDeliveredID StreamID
}

// XInfoGroups implements XINFO GROUPS.
func (k *Keyspace) XInfoGroups(ctx context.Context, db int, key string) (out []GroupInfo, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeStream)
		if err != nil || rec == nil {
			return err
		}
		rows, e := o.tx.Query(`SELECT id, name, last_ms, last_seq FROM stream_groups WHERE key_id = ?`, rec.ID)
		if e != nil {
			return apperr.Storage(e)
		}
		defer rows.Close()
		for rows.Next() {
			var groupID, lastMS, lastSeq int64
			var name string
			if e := rows.Scan(&groupID, &name, &lastMS, &lastSeq); e != nil {
				return apperr.Storage(e)
			}
			info := GroupInfo{Name: name, LastDeliveredID: StreamID{MS: lastMS, Seq: lastSeq}}
			_ = o.tx.QueryRow(`SELECT COUNT(*) FROM stream_consumers WHERE group_id = ?`, groupID).Scan(&info.Consumers)
			_ = o.tx.QueryRow(`SELECT COUNT(*) FROM stream_pending WHERE group_id = ?`, groupID).Scan(&info.Pending)
			out = append(out, info)
		}
		return nil
	})
	return out, err
}
