package dispatch

import (
	"context"
	"strings"

	"github.com/redlite/redlite/internal/keyspace"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

func registerStringCommands(t map[string]*Command) {
	add := func(c *Command) { t[c.Name] = c }

	add(&Command{Name: "set", Arity: -3, NeedsAuth: true, Handler: cmdSet})
	add(&Command{Name: "get", Arity: 2, NeedsAuth: true, Handler: cmdGet})
	add(&Command{Name: "getset", Arity: 3, NeedsAuth: true, Handler: cmdGetSet})
	add(&Command{Name: "getdel", Arity: 2, NeedsAuth: true, Handler: cmdGetDel})
	add(&Command{Name: "getex", Arity: -2, NeedsAuth: true, Handler: cmdGetEx})
	add(&Command{Name: "append", Arity: 3, NeedsAuth: true, Handler: cmdAppend})
	add(&Command{Name: "strlen", Arity: 2, NeedsAuth: true, Handler: cmdStrLen})
	add(&Command{Name: "setrange", Arity: 4, NeedsAuth: true, Handler: cmdSetRange})
	add(&Command{Name: "getrange", Arity: 4, NeedsAuth: true, Handler: cmdGetRange})
	add(&Command{Name: "mset", Arity: -3, NeedsAuth: true, Handler: cmdMSet})
	add(&Command{Name: "mget", Arity: -2, NeedsAuth: true, Handler: cmdMGet})
	add(&Command{Name: "msetnx", Arity: -3, NeedsAuth: true, Handler: cmdMSetNX})
	add(&Command{Name: "setnx", Arity: 3, NeedsAuth: true, Handler: cmdSetNX})
	add(&Command{Name: "setex", Arity: 4, NeedsAuth: true, Handler: cmdSetEx})
	add(&Command{Name: "psetex", Arity: 4, NeedsAuth: true, Handler: cmdPSetEx})
	add(&Command{Name: "incr", Arity: 2, NeedsAuth: true, Handler: cmdIncr})
	add(&Command{Name: "incrby", Arity: 3, NeedsAuth: true, Handler: cmdIncrBy})
	add(&Command{Name: "decr", Arity: 2, NeedsAuth: true, Handler: cmdDecr})
	add(&Command{Name: "decrby", Arity: 3, NeedsAuth: true, Handler: cmdDecrBy})
	add(&Command{Name: "incrbyfloat", Arity: 3, NeedsAuth: true, Handler: cmdIncrByFloat})
}

func cmdSet(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	key, value := string(argv[1]), argv[2]
	var opts keyspace.SetOptions
	for i := 3; i < len(argv); i++ {
		switch strings.ToLower(string(argv[i])) {
		case "nx":
			opts.NX = true
		case "xx":
			opts.XX = true
		case "get":
			opts.Get = true
		case "keepttl":
			opts.KeepTTL = true
		case "ex":
			i++
			if i >= len(argv) {
				return resp.Err("ERR", "syntax error")
			}
			secs, err := parseInt(argv[i])
			if err != nil {
				return errValue(err)
			}
			at := nowMillis() + secs*1000
			opts.ExpireAtMillis = &at
		case "px":
			i++
			if i >= len(argv) {
				return resp.Err("ERR", "syntax error")
			}
			ms, err := parseInt(argv[i])
			if err != nil {
				return errValue(err)
			}
			at := nowMillis() + ms
			opts.ExpireAtMillis = &at
		case "exat":
			i++
			if i >= len(argv) {
				return resp.Err("ERR", "syntax error")
			}
			secs, err := parseInt(argv[i])
			if err != nil {
				return errValue(err)
			}
			at := secs * 1000
			opts.ExpireAtMillis = &at
		case "pxat":
			i++
			if i >= len(argv) {
				return resp.Err("ERR", "syntax error")
			}
			ms, err := parseInt(argv[i])
			if err != nil {
				return errValue(err)
			}
			opts.ExpireAtMillis = &ms
		default:
			return resp.Err("ERR", "syntax error")
		}
	}
	prev, set, err := d.KS.Set(ctx, s.DB(), key, value, opts)
	if err != nil {
		return errValue(err)
	}
	if opts.Get {
		if !set && !opts.NX && !opts.XX {
			return resp.NullBulk()
		}
		return bulkOrNil(prev, prev != nil)
	}
	if !set {
		return resp.NullBulk()
	}
	return resp.OK()
}

func cmdGet(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	v, ok, err := d.KS.Get(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return bulkOrNil(v, ok)
}

func cmdGetSet(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	v, ok, err := d.KS.GetSet(ctx, s.DB(), string(argv[1]), argv[2])
	if err != nil {
		return errValue(err)
	}
	return bulkOrNil(v, ok)
}

func cmdGetDel(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	v, ok, err := d.KS.GetDel(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return bulkOrNil(v, ok)
}

func cmdGetEx(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	var expireAt *int64
	persist := false
	for i := 2; i < len(argv); i++ {
		switch strings.ToLower(string(argv[i])) {
		case "persist":
			persist = true
		case "ex":
			i++
			secs, err := parseInt(argv[i])
			if err != nil {
				return errValue(err)
			}
			at := nowMillis() + secs*1000
			expireAt = &at
		case "px":
			i++
			ms, err := parseInt(argv[i])
			if err != nil {
				return errValue(err)
			}
			at := nowMillis() + ms
			expireAt = &at
		case "exat":
			i++
			secs, err := parseInt(argv[i])
			if err != nil {
				return errValue(err)
			}
			at := secs * 1000
			expireAt = &at
		case "pxat":
			i++
			ms, err := parseInt(argv[i])
			if err != nil {
				return errValue(err)
			}
			expireAt = &ms
		default:
			return resp.Err("ERR", "syntax error")
		}
	}
	v, ok, err := d.KS.GetEx(ctx, s.DB(), string(argv[1]), expireAt, persist)
	if err != nil {
		return errValue(err)
	}
	return bulkOrNil(v, ok)
}

func cmdAppend(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.Append(ctx, s.DB(), string(argv[1]), argv[2])
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdStrLen(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.StrLen(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdSetRange(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	offset, err := parseIntDefault(argv[2], 0)
	if err != nil {
		return errValue(err)
	}
	n, err := d.KS.SetRange(ctx, s.DB(), string(argv[1]), offset, argv[3])
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdGetRange(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	start, err := parseIntDefault(argv[2], 0)
	if err != nil {
		return errValue(err)
	}
	end, err := parseIntDefault(argv[3], 0)
	if err != nil {
		return errValue(err)
	}
	v, err := d.KS.GetRange(ctx, s.DB(), string(argv[1]), start, end)
	if err != nil {
		return errValue(err)
	}
	return resp.Bulk(v)
}

func cmdMSet(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if (len(argv)-1)%2 != 0 {
		return resp.Err("ERR", "wrong number of arguments for 'mset' command")
	}
	pairs := make(map[string][]byte)
	for i := 1; i < len(argv); i += 2 {
		pairs[string(argv[i])] = argv[i+1]
	}
	if err := d.KS.MSet(ctx, s.DB(), pairs); err != nil {
		return errValue(err)
	}
	return resp.OK()
}

func cmdMGet(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	keys := make([]string, len(argv)-1)
	for i, a := range argv[1:] {
		keys[i] = string(a)
	}
	out, err := d.KS.MGet(ctx, s.DB(), keys)
	if err != nil {
		return errValue(err)
	}
	return bulkArray(out)
}

func cmdMSetNX(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if (len(argv)-1)%2 != 0 {
		return resp.Err("ERR", "wrong number of arguments for 'msetnx' command")
	}
	pairs := make(map[string][]byte)
	for i := 1; i < len(argv); i += 2 {
		pairs[string(argv[i])] = argv[i+1]
	}
	set, err := d.KS.MSetNX(ctx, s.DB(), pairs)
	if err != nil {
		return errValue(err)
	}
	if set {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdSetNX(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	set, err := d.KS.SetNX(ctx, s.DB(), string(argv[1]), argv[2])
	if err != nil {
		return errValue(err)
	}
	if set {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdSetEx(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	secs, err := parseInt(argv[2])
	if err != nil {
		return errValue(err)
	}
	if err := d.KS.SetEx(ctx, s.DB(), string(argv[1]), argv[3], nowMillis()+secs*1000); err != nil {
		return errValue(err)
	}
	return resp.OK()
}

func cmdPSetEx(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	ms, err := parseInt(argv[2])
	if err != nil {
		return errValue(err)
	}
	if err := d.KS.SetEx(ctx, s.DB(), string(argv[1]), argv[3], nowMillis()+ms); err != nil {
		return errValue(err)
	}
	return resp.OK()
}

func cmdIncr(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.Incr(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(n)
}

func cmdDecr(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.Decr(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(n)
}

func cmdIncrBy(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	delta, err := parseInt(argv[2])
	if err != nil {
		return errValue(err)
	}
	n, err := d.KS.IncrBy(ctx, s.DB(), string(argv[1]), delta)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(n)
}

func cmdDecrBy(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	delta, err := parseInt(argv[2])
	if err != nil {
		return errValue(err)
	}
	n, err := d.KS.DecrBy(ctx, s.DB(), string(argv[1]), delta)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(n)
}

func cmdIncrByFloat(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	delta, err := parseFloat(argv[2])
	if err != nil {
		return errValue(err)
	}
	n, err := d.KS.IncrByFloat(ctx, s.DB(), string(argv[1]), delta)
	if err != nil {
		return errValue(err)
	}
	return resp.BulkString(formatFloat(n))
}
