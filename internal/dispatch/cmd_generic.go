package dispatch

import (
	"context"
	"strings"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/keyspace"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

func registerGenericCommands(t map[string]*Command) {
	add := func(c *Command) { t[c.Name] = c }

	add(&Command{Name: "del", Arity: -2, NeedsAuth: true, Handler: cmdDel})
	add(&Command{Name: "unlink", Arity: -2, NeedsAuth: true, Handler: cmdDel})
	add(&Command{Name: "exists", Arity: -2, NeedsAuth: true, Handler: cmdExists})
	add(&Command{Name: "type", Arity: 2, NeedsAuth: true, Handler: cmdType})
	add(&Command{Name: "expire", Arity: -3, NeedsAuth: true, Handler: cmdExpire})
	add(&Command{Name: "pexpire", Arity: -3, NeedsAuth: true, Handler: cmdPExpire})
	add(&Command{Name: "expireat", Arity: -3, NeedsAuth: true, Handler: cmdExpireAt})
	add(&Command{Name: "pexpireat", Arity: -3, NeedsAuth: true, Handler: cmdPExpireAt})
	add(&Command{Name: "ttl", Arity: 2, NeedsAuth: true, Handler: cmdTTL})
	add(&Command{Name: "pttl", Arity: 2, NeedsAuth: true, Handler: cmdPTTL})
	add(&Command{Name: "persist", Arity: 2, NeedsAuth: true, Handler: cmdPersist})
	add(&Command{Name: "rename", Arity: 3, NeedsAuth: true, Handler: cmdRename})
	add(&Command{Name: "renamenx", Arity: 3, NeedsAuth: true, Handler: cmdRenameNX})
	add(&Command{Name: "randomkey", Arity: 1, NeedsAuth: true, Handler: cmdRandomKey})
	add(&Command{Name: "keys", Arity: 2, NeedsAuth: true, Handler: cmdKeys})
	add(&Command{Name: "dbsize", Arity: 1, NeedsAuth: true, Handler: cmdDBSize})
	add(&Command{Name: "flushdb", Arity: -1, NeedsAuth: true, Handler: cmdFlushDB})
	add(&Command{Name: "flushall", Arity: -1, NeedsAuth: true, Handler: cmdFlushAll})
	add(&Command{Name: "scan", Arity: -2, NeedsAuth: true, Handler: cmdScan})
}

func cmdDel(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.Del(ctx, s.DB(), argsToKeys(argv[1:]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdExists(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.Exists(ctx, s.DB(), argsToKeys(argv[1:]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdType(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	t, err := d.KS.TypeOf(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return resp.SimpleString(t.String())
}

func expireCondFromArgs(argv [][]byte, from int) (keyspace.ExpireCond, error) {
	if from >= len(argv) {
		return keyspace.ExpireAlways, nil
	}
	switch strings.ToLower(string(argv[from])) {
	case "nx":
		return keyspace.ExpireNX, nil
	case "xx":
		return keyspace.ExpireXX, nil
	case "gt":
		return keyspace.ExpireGT, nil
	case "lt":
		return keyspace.ExpireLT, nil
	}
	return keyspace.ExpireAlways, apperr.New(apperr.KindSyntaxError, "Unsupported option")
}

func cmdExpire(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	secs, err := parseInt(argv[2])
	if err != nil {
		return errValue(err)
	}
	cond, cerr := expireCondFromArgs(argv, 3)
	if cerr != nil {
		return errValue(cerr)
	}
	applied, err := d.KS.Expire(ctx, s.DB(), string(argv[1]), nowMillis()+secs*1000, cond)
	if err != nil {
		return errValue(err)
	}
	return boolInt(applied)
}

func cmdPExpire(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	ms, err := parseInt(argv[2])
	if err != nil {
		return errValue(err)
	}
	cond, cerr := expireCondFromArgs(argv, 3)
	if cerr != nil {
		return errValue(cerr)
	}
	applied, err := d.KS.Expire(ctx, s.DB(), string(argv[1]), nowMillis()+ms, cond)
	if err != nil {
		return errValue(err)
	}
	return boolInt(applied)
}

func cmdExpireAt(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	secs, err := parseInt(argv[2])
	if err != nil {
		return errValue(err)
	}
	cond, cerr := expireCondFromArgs(argv, 3)
	if cerr != nil {
		return errValue(cerr)
	}
	applied, err := d.KS.Expire(ctx, s.DB(), string(argv[1]), secs*1000, cond)
	if err != nil {
		return errValue(err)
	}
	return boolInt(applied)
}

func cmdPExpireAt(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	ms, err := parseInt(argv[2])
	if err != nil {
		return errValue(err)
	}
	cond, cerr := expireCondFromArgs(argv, 3)
	if cerr != nil {
		return errValue(cerr)
	}
	applied, err := d.KS.Expire(ctx, s.DB(), string(argv[1]), ms, cond)
	if err != nil {
		return errValue(err)
	}
	return boolInt(applied)
}

func boolInt(b bool) resp.Value {
	if b {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdTTL(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.TTL(ctx, s.DB(), string(argv[1]), false)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(n)
}

func cmdPTTL(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.TTL(ctx, s.DB(), string(argv[1]), true)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(n)
}

func cmdPersist(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	applied, err := d.KS.Persist(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return boolInt(applied)
}

func cmdRename(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if err := d.KS.Rename(ctx, s.DB(), string(argv[1]), string(argv[2])); err != nil {
		return errValue(err)
	}
	return resp.OK()
}

func cmdRenameNX(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	renamed, err := d.KS.RenameNX(ctx, s.DB(), string(argv[1]), string(argv[2]))
	if err != nil {
		return errValue(err)
	}
	return boolInt(renamed)
}

func cmdRandomKey(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	key, ok, err := d.KS.RandomKey(ctx, s.DB())
	if err != nil {
		return errValue(err)
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.BulkString(key)
}

func cmdKeys(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	out, err := d.KS.Keys(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	vals := make([]resp.Value, len(out))
	for i, k := range out {
		vals[i] = resp.BulkString(k)
	}
	return resp.ArrayOf(vals)
}

func cmdDBSize(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.DBSize(ctx, s.DB())
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdFlushDB(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if err := d.KS.FlushDB(ctx, s.DB()); err != nil {
		return errValue(err)
	}
	return resp.OK()
}

func cmdFlushAll(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if err := d.KS.FlushAll(ctx); err != nil {
		return errValue(err)
	}
	return resp.OK()
}

func cmdScan(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	cursor := string(argv[1])
	pattern, typeFilter := "", ""
	count := 0
	for i := 2; i < len(argv); i++ {
		switch strings.ToLower(string(argv[i])) {
		case "match":
			i++
			if i >= len(argv) {
				return resp.Err("ERR", "syntax error")
			}
			pattern = string(argv[i])
		case "count":
			i++
			if i >= len(argv) {
				return resp.Err("ERR", "syntax error")
			}
			n, err := parseIntDefault(argv[i], 0)
			if err != nil {
				return errValue(err)
			}
			count = n
		case "type":
			i++
			if i >= len(argv) {
				return resp.Err("ERR", "syntax error")
			}
			typeFilter = strings.ToLower(string(argv[i]))
		default:
			return resp.Err("ERR", "syntax error")
		}
	}
	next, keys, err := d.KS.Scan(ctx, s.DB(), cursor, pattern, count, typeFilter)
	if err != nil {
		return errValue(err)
	}
	vals := make([]resp.Value, len(keys))
	for i, k := range keys {
		vals[i] = resp.BulkString(k)
	}
	return resp.Array(resp.BulkString(next), resp.ArrayOf(vals))
}
