package dispatch

import (
	"context"
	"strings"

	"github.com/redlite/redlite/internal/keyspace"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

func registerZSetCommands(t map[string]*Command) {
	add := func(c *Command) { t[c.Name] = c }

	add(&Command{Name: "zadd", Arity: -4, NeedsAuth: true, Handler: cmdZAdd})
	add(&Command{Name: "zscore", Arity: 3, NeedsAuth: true, Handler: cmdZScore})
	add(&Command{Name: "zmscore", Arity: -3, NeedsAuth: true, Handler: cmdZMScore})
	add(&Command{Name: "zincrby", Arity: 4, NeedsAuth: true, Handler: cmdZIncrBy})
	add(&Command{Name: "zcard", Arity: 2, NeedsAuth: true, Handler: cmdZCard})
	add(&Command{Name: "zcount", Arity: 4, NeedsAuth: true, Handler: cmdZCount})
	add(&Command{Name: "zrange", Arity: -4, NeedsAuth: true, Handler: cmdZRange})
	add(&Command{Name: "zrevrange", Arity: -4, NeedsAuth: true, Handler: cmdZRevRange})
	add(&Command{Name: "zrangebyscore", Arity: -4, NeedsAuth: true, Handler: cmdZRangeByScore})
	add(&Command{Name: "zrevrangebyscore", Arity: -4, NeedsAuth: true, Handler: cmdZRevRangeByScore})
	add(&Command{Name: "zrank", Arity: 3, NeedsAuth: true, Handler: cmdZRank})
	add(&Command{Name: "zrevrank", Arity: 3, NeedsAuth: true, Handler: cmdZRevRank})
	add(&Command{Name: "zrem", Arity: -3, NeedsAuth: true, Handler: cmdZRem})
	add(&Command{Name: "zremrangebyrank", Arity: 4, NeedsAuth: true, Handler: cmdZRemRangeByRank})
	add(&Command{Name: "zremrangebyscore", Arity: 4, NeedsAuth: true, Handler: cmdZRemRangeByScore})
}

func cmdZAdd(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	var opts keyspace.ZAddOptions
	i := 2
loop:
	for ; i < len(argv); i++ {
		switch strings.ToLower(string(argv[i])) {
		case "nx":
			opts.NX = true
		case "xx":
			opts.XX = true
		case "gt":
			opts.GT = true
		case "lt":
			opts.LT = true
		case "ch":
			opts.CH = true
		case "incr":
			opts.Incr = true
		default:
			break loop
		}
	}
	rest := argv[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return resp.Err("ERR", "syntax error")
	}
	members := make([]keyspace.ZMember, 0, len(rest)/2)
	for j := 0; j < len(rest); j += 2 {
		score, err := parseFloat(rest[j])
		if err != nil {
			return errValue(err)
		}
		members = append(members, keyspace.ZMember{Member: rest[j+1], Score: score})
	}
	if opts.Incr && len(members) != 1 {
		return resp.Err("ERR", "INCR option supports a single increment-element pair")
	}
	count, incrResult, incrOK, err := d.KS.ZAdd(ctx, s.DB(), string(argv[1]), members, opts)
	if err != nil {
		return errValue(err)
	}
	if opts.Incr {
		if !incrOK {
			return resp.NullBulk()
		}
		return resp.BulkString(formatFloat(incrResult))
	}
	return resp.Integer(int64(count))
}

func cmdZScore(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	score, ok, err := d.KS.ZScore(ctx, s.DB(), string(argv[1]), argv[2])
	if err != nil {
		return errValue(err)
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.BulkString(formatFloat(score))
}

func cmdZMScore(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	scores, ok, err := d.KS.ZMScore(ctx, s.DB(), string(argv[1]), argv[2:])
	if err != nil {
		return errValue(err)
	}
	out := make([]resp.Value, len(scores))
	for i := range scores {
		if ok[i] {
			out[i] = resp.BulkString(formatFloat(scores[i]))
		} else {
			out[i] = resp.NullBulk()
		}
	}
	return resp.ArrayOf(out)
}

func cmdZIncrBy(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	delta, err := parseFloat(argv[2])
	if err != nil {
		return errValue(err)
	}
	result, err := d.KS.ZIncrBy(ctx, s.DB(), string(argv[1]), delta, argv[3])
	if err != nil {
		return errValue(err)
	}
	return resp.BulkString(formatFloat(result))
}

func cmdZCard(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.ZCard(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdZCount(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	min, err := keyspace.ParseScoreBound(string(argv[2]))
	if err != nil {
		return errValue(err)
	}
	max, err := keyspace.ParseScoreBound(string(argv[3]))
	if err != nil {
		return errValue(err)
	}
	n, err := d.KS.ZCount(ctx, s.DB(), string(argv[1]), min, max)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func zMembersToReply(members []keyspace.ZMember, withScores bool) resp.Value {
	if !withScores {
		out := make([]resp.Value, len(members))
		for i, m := range members {
			out[i] = resp.Bulk(m.Member)
		}
		return resp.ArrayOf(out)
	}
	out := make([]resp.Value, 0, len(members)*2)
	for _, m := range members {
		out = append(out, resp.Bulk(m.Member), resp.BulkString(formatFloat(m.Score)))
	}
	return resp.ArrayOf(out)
}

func cmdZRange(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return zRangeByRank(ctx, d, s, argv, false)
}

func cmdZRevRange(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return zRangeByRank(ctx, d, s, argv, true)
}

func zRangeByRank(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte, desc bool) resp.Value {
	start, err := parseIntDefault(argv[2], 0)
	if err != nil {
		return errValue(err)
	}
	stop, err := parseIntDefault(argv[3], 0)
	if err != nil {
		return errValue(err)
	}
	withScores := false
	for i := 4; i < len(argv); i++ {
		if strings.EqualFold(string(argv[i]), "withscores") {
			withScores = true
		}
	}
	members, err := d.KS.ZRange(ctx, s.DB(), string(argv[1]), start, stop, desc)
	if err != nil {
		return errValue(err)
	}
	return zMembersToReply(members, withScores)
}

func cmdZRangeByScore(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return zRangeByScore(ctx, d, s, argv, false)
}

func cmdZRevRangeByScore(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return zRangeByScore(ctx, d, s, argv, true)
}

func zRangeByScore(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte, desc bool) resp.Value {
	minArg, maxArg := string(argv[2]), string(argv[3])
	if desc {
		minArg, maxArg = maxArg, minArg
	}
	min, err := keyspace.ParseScoreBound(minArg)
	if err != nil {
		return errValue(err)
	}
	max, err := keyspace.ParseScoreBound(maxArg)
	if err != nil {
		return errValue(err)
	}
	withScores := false
	offset, count := 0, -1
	for i := 4; i < len(argv); i++ {
		switch strings.ToLower(string(argv[i])) {
		case "withscores":
			withScores = true
		case "limit":
			if i+2 >= len(argv) {
				return resp.Err("ERR", "syntax error")
			}
			off, err := parseIntDefault(argv[i+1], 0)
			if err != nil {
				return errValue(err)
			}
			cnt, err := parseIntDefault(argv[i+2], -1)
			if err != nil {
				return errValue(err)
			}
			offset, count = off, cnt
			i += 2
		default:
			return resp.Err("ERR", "syntax error")
		}
	}
	members, err := d.KS.ZRangeByScore(ctx, s.DB(), string(argv[1]), min, max, desc, offset, count)
	if err != nil {
		return errValue(err)
	}
	return zMembersToReply(members, withScores)
}

func cmdZRank(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	rank, ok, err := d.KS.ZRank(ctx, s.DB(), string(argv[1]), argv[2], false)
	if err != nil {
		return errValue(err)
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Integer(int64(rank))
}

func cmdZRevRank(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	rank, ok, err := d.KS.ZRank(ctx, s.DB(), string(argv[1]), argv[2], true)
	if err != nil {
		return errValue(err)
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Integer(int64(rank))
}

func cmdZRem(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.ZRem(ctx, s.DB(), string(argv[1]), argv[2:])
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdZRemRangeByRank(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	start, err := parseIntDefault(argv[2], 0)
	if err != nil {
		return errValue(err)
	}
	stop, err := parseIntDefault(argv[3], 0)
	if err != nil {
		return errValue(err)
	}
	n, err := d.KS.ZRemRangeByRank(ctx, s.DB(), string(argv[1]), start, stop)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdZRemRangeByScore(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	min, err := keyspace.ParseScoreBound(string(argv[2]))
	if err != nil {
		return errValue(err)
	}
	max, err := keyspace.ParseScoreBound(string(argv[3]))
	if err != nil {
		return errValue(err)
	}
	n, err := d.KS.ZRemRangeByScore(ctx, s.DB(), string(argv[1]), min, max)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}
