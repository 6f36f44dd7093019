package dispatch

import (
	"context"
	"strings"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

func registerListCommands(t map[string]*Command) {
	add := func(c *Command) { t[c.Name] = c }

	add(&Command{Name: "lpush", Arity: -3, NeedsAuth: true, Handler: cmdLPush})
	add(&Command{Name: "rpush", Arity: -3, NeedsAuth: true, Handler: cmdRPush})
	add(&Command{Name: "lpushx", Arity: -3, NeedsAuth: true, Handler: cmdLPushX})
	add(&Command{Name: "rpushx", Arity: -3, NeedsAuth: true, Handler: cmdRPushX})
	add(&Command{Name: "lpop", Arity: -2, NeedsAuth: true, Handler: cmdLPop})
	add(&Command{Name: "rpop", Arity: -2, NeedsAuth: true, Handler: cmdRPop})
	add(&Command{Name: "llen", Arity: 2, NeedsAuth: true, Handler: cmdLLen})
	add(&Command{Name: "lrange", Arity: 4, NeedsAuth: true, Handler: cmdLRange})
	add(&Command{Name: "lindex", Arity: 3, NeedsAuth: true, Handler: cmdLIndex})
	add(&Command{Name: "lset", Arity: 4, NeedsAuth: true, Handler: cmdLSet})
	add(&Command{Name: "linsert", Arity: 5, NeedsAuth: true, Handler: cmdLInsert})
	add(&Command{Name: "lrem", Arity: 4, NeedsAuth: true, Handler: cmdLRem})
	add(&Command{Name: "ltrim", Arity: 4, NeedsAuth: true, Handler: cmdLTrim})
	add(&Command{Name: "lmove", Arity: 5, NeedsAuth: true, Handler: cmdLMove})
	add(&Command{Name: "rpoplpush", Arity: 3, NeedsAuth: true, Handler: cmdRPopLPush})
	add(&Command{Name: "lpos", Arity: -3, NeedsAuth: true, Handler: cmdLPos})
}

func cmdLPush(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.Push(ctx, s.DB(), string(argv[1]), argv[2:], true, false)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdRPush(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.Push(ctx, s.DB(), string(argv[1]), argv[2:], false, false)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdLPushX(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.Push(ctx, s.DB(), string(argv[1]), argv[2:], true, true)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdRPushX(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.Push(ctx, s.DB(), string(argv[1]), argv[2:], false, true)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdLPop(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return lpopRpop(ctx, d, s, argv, true)
}

func cmdRPop(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return lpopRpop(ctx, d, s, argv, false)
}

func lpopRpop(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte, left bool) resp.Value {
	hasCount := len(argv) == 3
	count := 0
	if hasCount {
		n, err := parseIntDefault(argv[2], 0)
		if err != nil {
			return errValue(err)
		}
		count = n
	}
	values, err := d.KS.Pop(ctx, s.DB(), string(argv[1]), left, count, hasCount)
	if err != nil {
		return errValue(err)
	}
	if !hasCount {
		if len(values) == 0 {
			return resp.NullBulk()
		}
		return resp.Bulk(values[0])
	}
	if values == nil {
		return resp.NullArray()
	}
	return bulkArray(values)
}

func cmdLLen(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.LLen(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdLRange(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	start, err := parseIntDefault(argv[2], 0)
	if err != nil {
		return errValue(err)
	}
	stop, err := parseIntDefault(argv[3], 0)
	if err != nil {
		return errValue(err)
	}
	out, err := d.KS.LRange(ctx, s.DB(), string(argv[1]), start, stop)
	if err != nil {
		return errValue(err)
	}
	return bulkArray(out)
}

func cmdLIndex(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	idx, err := parseIntDefault(argv[2], 0)
	if err != nil {
		return errValue(err)
	}
	v, ok, err := d.KS.LIndex(ctx, s.DB(), string(argv[1]), idx)
	if err != nil {
		return errValue(err)
	}
	return bulkOrNil(v, ok)
}

func cmdLSet(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	idx, err := parseIntDefault(argv[2], 0)
	if err != nil {
		return errValue(err)
	}
	if err := d.KS.LSet(ctx, s.DB(), string(argv[1]), idx, argv[3]); err != nil {
		return errValue(err)
	}
	return resp.OK()
}

func cmdLInsert(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	var before bool
	switch strings.ToLower(string(argv[2])) {
	case "before":
		before = true
	case "after":
		before = false
	default:
		return resp.Err("ERR", "syntax error")
	}
	n, err := d.KS.LInsert(ctx, s.DB(), string(argv[1]), before, argv[3], argv[4])
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdLRem(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	count, err := parseIntDefault(argv[2], 0)
	if err != nil {
		return errValue(err)
	}
	n, err := d.KS.LRem(ctx, s.DB(), string(argv[1]), count, argv[3])
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdLTrim(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	start, err := parseIntDefault(argv[2], 0)
	if err != nil {
		return errValue(err)
	}
	stop, err := parseIntDefault(argv[3], 0)
	if err != nil {
		return errValue(err)
	}
	if err := d.KS.LTrim(ctx, s.DB(), string(argv[1]), start, stop); err != nil {
		return errValue(err)
	}
	return resp.OK()
}

func cmdLMove(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	srcLeft, err := parseLeftRight(argv[3])
	if err != nil {
		return errValue(err)
	}
	dstLeft, err := parseLeftRight(argv[4])
	if err != nil {
		return errValue(err)
	}
	v, ok, err := d.KS.LMove(ctx, s.DB(), string(argv[1]), string(argv[2]), srcLeft, dstLeft)
	if err != nil {
		return errValue(err)
	}
	return bulkOrNil(v, ok)
}

func cmdRPopLPush(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	v, ok, err := d.KS.LMove(ctx, s.DB(), string(argv[1]), string(argv[2]), false, true)
	if err != nil {
		return errValue(err)
	}
	return bulkOrNil(v, ok)
}

func parseLeftRight(b []byte) (bool, error) {
	switch strings.ToLower(string(b)) {
	case "left":
		return true, nil
	case "right":
		return false, nil
	}
	return false, apperr.Syntax()
}

func cmdLPos(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	rank := 1
	for i := 3; i < len(argv); i++ {
		switch strings.ToLower(string(argv[i])) {
		case "rank":
			i++
			if i >= len(argv) {
				return resp.Err("ERR", "syntax error")
			}
			n, err := parseIntDefault(argv[i], 1)
			if err != nil {
				return errValue(err)
			}
			rank = n
		case "count", "maxlen":
			i++ // accepted but single-match semantics only; see keyspace.LPos doc.
		default:
			return resp.Err("ERR", "syntax error")
		}
	}
	idx, ok, err := d.KS.LPos(ctx, s.DB(), string(argv[1]), argv[2], rank)
	if err != nil {
		return errValue(err)
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Integer(int64(idx))
}
