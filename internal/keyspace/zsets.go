package keyspace

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

// ZAddOptions captures ZADD's NX/XX/GT/LT/CH/INCR modifier set, per
// spec.md's ZADD invariants (NX and XX/GT/LT are mutually exclusive; GT/LT
// are mutually exclusive with each other; INCR restricts the command to a
// single member).
type ZAddOptions struct {
	NX, XX, GT, LT, CH, Incr bool
}

// ZAdd implements ZADD. When opts.Incr is set, members must contain exactly
// one pair and incrResult carries the new score (mirroring ZINCRBY's return
// shape); otherwise added/changed count members per opts.CH.
func (k *Keyspace) ZAdd(ctx context.Context, db int, key string, members []ZMember, opts ZAddOptions) (count int, incrResult float64, incrOK bool, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookup(key)
		if err != nil {
			return err
		}
		if rec != nil && rec.Type != storage.TypeZSet {
			return apperr.WrongType()
		}
		if rec == nil {
			if opts.XX {
				return nil
			}
			rec, err = o.createKey(key, storage.TypeZSet)
			if err != nil {
				return err
			}
		}

		changed := 0
		for _, m := range members {
			if math.IsNaN(m.Score) {
				return apperr.NotFloat()
			}

			var curScore float64
			var hasCur bool
			if e := o.tx.QueryRow(`SELECT score FROM zsets WHERE key_id = ? AND member = ?`, rec.ID, m.Member).Scan(&curScore); e == nil {
				hasCur = true
			}

			if opts.NX && hasCur {
				continue
			}
			if opts.XX && !hasCur {
				continue
			}

			newScore := m.Score
			if opts.Incr {
				newScore = curScore + m.Score
				if math.IsNaN(newScore) {
					return apperr.New(apperr.KindNotFloat, "resulting score is not a number (NaN)")
				}
			}
			if hasCur {
				if opts.GT && newScore <= curScore {
					continue
				}
				if opts.LT && newScore >= curScore {
					continue
				}
				if newScore == curScore && !opts.Incr {
					continue
				}
			}

			if _, e := o.tx.Exec(`INSERT INTO zsets(key_id, member, score) VALUES (?, ?, ?)
				ON CONFLICT(key_id, member) DO UPDATE SET score = excluded.score`, rec.ID, m.Member, newScore); e != nil {
				return apperr.Storage(e)
			}
			if !hasCur {
				count++
			}
			changed++
			if opts.Incr {
				incrResult, incrOK = newScore, true
			}
		}
		if changed > 0 {
			if err := o.touch(rec.ID); err != nil {
				return err
			}
			o.notify(key, notify.KindZAdd)
		}
		if opts.CH {
			count = changed
		}
		return nil
	})
	return count, incrResult, incrOK, err
}

// ZMember is one (member, score) pair for ZADD.
type ZMember struct {
	Member []byte
	Score  float64
}

// ZScore implements ZSCORE.
func (k *Keyspace) ZScore(ctx context.Context, db int, key string, member []byte) (score float64, ok bool, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeZSet)
		if err != nil || rec == nil {
			return err
		}
		if e := o.tx.QueryRow(`SELECT score FROM zsets WHERE key_id = ? AND member = ?`, rec.ID, member).Scan(&score); e != nil {
			return nil
		}
		ok = true
		return nil
	})
	return score, ok, err
}

// ZMScore implements ZMSCORE.
func (k *Keyspace) ZMScore(ctx context.Context, db int, key string, members [][]byte) (scores []float64, ok []bool, err error) {
	scores = make([]float64, len(members))
	ok = make([]bool, len(members))
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeZSet)
		if err != nil || rec == nil {
			return err
		}
		for i, m := range members {
			if e := o.tx.QueryRow(`SELECT score FROM zsets WHERE key_id = ? AND member = ?`, rec.ID, m).Scan(&scores[i]); e == nil {
				ok[i] = true
			}
		}
		return nil
	})
	return scores, ok, err
}

// ZIncrBy implements ZINCRBY, creating the key/member if absent.
func (k *Keyspace) ZIncrBy(ctx context.Context, db int, key string, delta float64, member []byte) (result float64, err error) {
	_, result, _, err = k.ZAdd(ctx, db, key, []ZMember{{Member: member, Score: delta}}, ZAddOptions{Incr: true})
	return result, err
}

// ZCard implements ZCARD.
func (k *Keyspace) ZCard(ctx context.Context, db int, key string) (n int, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeZSet)
		if err != nil || rec == nil {
			return err
		}
		if e := o.tx.QueryRow(`SELECT COUNT(*) FROM zsets WHERE key_id = ?`, rec.ID).Scan(&n); e != nil {
			return apperr.Storage(e)
		}
		return nil
	})
	return n, err
}

// ScoreBound is one endpoint of a ZRANGEBYSCORE/ZCOUNT range: Value of
// +/-Inf for unbounded, Exclusive for the "(" syntax.
type ScoreBound struct {
	Value     float64
	Exclusive bool
}

// ParseScoreBound parses Redis's "[(]score|-inf|+inf" bound syntax.
func ParseScoreBound(s string) (ScoreBound, error) {
	exclusive := false
	if strings.HasPrefix(s, "(") {
		exclusive = true
		s = s[1:]
	}
	switch s {
	case "-inf":
		return ScoreBound{Value: math.Inf(-1), Exclusive: exclusive}, nil
	case "+inf", "inf":
		return ScoreBound{Value: math.Inf(1), Exclusive: exclusive}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return ScoreBound{}, apperr.NotFloat()
	}
	return ScoreBound{Value: v, Exclusive: exclusive}, nil
}

// ZCount implements ZCOUNT.
func (k *Keyspace) ZCount(ctx context.Context, db int, key string, min, max ScoreBound) (n int, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeZSet)
		if err != nil || rec == nil {
			return err
		}
		members, err := o.zsetByScore(rec.ID, min, max, false)
		if err != nil {
			return err
		}
		n = len(members)
		return nil
	})
	return n, err
}

type zEntry struct {
	Member []byte
	Score  float64
}

func (o *opCtx) zsetAll(keyID int64, desc bool) ([]zEntry, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	rows, err := o.tx.Query(`SELECT member, score FROM zsets WHERE key_id = ? ORDER BY score `+order+`, member `+order, keyID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()
	var out []zEntry
	for rows.Next() {
		var e zEntry
		if err := rows.Scan(&e.Member, &e.Score); err != nil {
			return nil, apperr.Storage(err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (o *opCtx) zsetByScore(keyID int64, min, max ScoreBound, desc bool) ([]zEntry, error) {
	all, err := o.zsetAll(keyID, desc)
	if err != nil {
		return nil, err
	}
	var out []zEntry
	for _, e := range all {
		if min.Exclusive {
			if e.Score <= min.Value {
				continue
			}
		} else if e.Score < min.Value {
			continue
		}
		if max.Exclusive {
			if e.Score >= max.Value {
				continue
			}
		} else if e.Score > max.Value {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ZRange implements ZRANGE/ZREVRANGE by rank, with an optional WITHSCORES
// flag handled by the caller (this always returns scores; dispatch decides
// whether to include them in the reply).
func (k *Keyspace) ZRange(ctx context.Context, db int, key string, start, stop int, desc bool) (out []ZMember, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeZSet)
		if err != nil || rec == nil {
			return err
		}
		all, err := o.zsetAll(rec.ID, desc)
		if err != nil {
			return err
		}
		lo, hi := normalizeRange(len(all), start, stop)
		if lo > hi {
			return nil
		}
		for _, e := range all[lo : hi+1] {
			out = append(out, ZMember{Member: e.Member, Score: e.Score})
		}
		return nil
	})
	return out, err
}

// ZRangeByScore implements ZRANGEBYSCORE/ZREVRANGEBYSCORE with LIMIT
// offset/count (count<0 means "no limit").
func (k *Keyspace) ZRangeByScore(ctx context.Context, db int, key string, min, max ScoreBound, desc bool, offset, count int) (out []ZMember, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeZSet)
		if err != nil || rec == nil {
			return err
		}
		lo, hi := min, max
		if desc {
			lo, hi = max, min
		}
		members, err := o.zsetByScore(rec.ID, lo, hi, desc)
		if err != nil {
			return err
		}
		if offset > 0 {
			if offset >= len(members) {
				members = nil
			} else {
				members = members[offset:]
			}
		}
		if count >= 0 && count < len(members) {
			members = members[:count]
		}
		for _, e := range members {
			out = append(out, ZMember{Member: e.Member, Score: e.Score})
		}
		return nil
	})
	return out, err
}

// ZRank/ZRevRank implement ZRANK/ZREVRANK.
func (k *Keyspace) ZRank(ctx context.Context, db int, key string, member []byte, desc bool) (rank int, ok bool, err error) {
	err = k.read(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeZSet)
		if err != nil || rec == nil {
			return err
		}
		all, err := o.zsetAll(rec.ID, desc)
		if err != nil {
			return err
		}
		for i, e := range all {
			if bytesEqual(e.Member, member) {
				rank, ok = i, true
				return nil
			}
		}
		return nil
	})
	return rank, ok, err
}

// ZRem implements ZREM.
func (k *Keyspace) ZRem(ctx context.Context, db int, key string, members [][]byte) (removed int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeZSet)
		if err != nil || rec == nil {
			return err
		}
		for _, m := range members {
			res, e := o.tx.Exec(`DELETE FROM zsets WHERE key_id = ? AND member = ?`, rec.ID, m)
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
		o.notify(key, notify.KindZRem)
		_, err = o.collapseIfEmpty(rec, "zsets")
		return err
	})
	return removed, err
}

// ZRemRangeByRank implements ZREMRANGEBYRANK.
func (k *Keyspace) ZRemRangeByRank(ctx context.Context, db int, key string, start, stop int) (removed int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeZSet)
		if err != nil || rec == nil {
			return err
		}
		all, err := o.zsetAll(rec.ID, false)
		if err != nil {
			return err
		}
		lo, hi := normalizeRange(len(all), start, stop)
		if lo > hi {
			return nil
		}
		for _, e := range all[lo : hi+1] {
			if _, e2 := o.tx.Exec(`DELETE FROM zsets WHERE key_id = ? AND member = ?`, rec.ID, e.Member); e2 != nil {
				return apperr.Storage(e2)
			}
			removed++
		}
		if removed == 0 {
			return nil
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindZRem)
		_, err = o.collapseIfEmpty(rec, "zsets")
		return err
	})
	return removed, err
}

// ZRemRangeByScore implements ZREMRANGEBYSCORE.
func (k *Keyspace) ZRemRangeByScore(ctx context.Context, db int, key string, min, max ScoreBound) (removed int, err error) {
	err = k.write(ctx, db, func(o *opCtx) error {
		rec, err := o.lookupType(key, storage.TypeZSet)
		if err != nil || rec == nil {
			return err
		}
		members, err := o.zsetByScore(rec.ID, min, max, false)
		if err != nil {
			return err
		}
		for _, e := range members {
			if _, e2 := o.tx.Exec(`DELETE FROM zsets WHERE key_id = ? AND member = ?`, rec.ID, e.Member); e2 != nil {
				return apperr.Storage(e2)
			}
			removed++
		}
		if removed == 0 {
			return nil
		}
		if err := o.touch(rec.ID); err != nil {
			return err
		}
		o.notify(key, notify.KindZRem)
		_, err = o.collapseIfEmpty(rec, "zsets")
		return err
	})
	return removed, err
}
