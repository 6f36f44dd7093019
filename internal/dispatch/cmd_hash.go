package dispatch

import (
	"context"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

func registerHashCommands(t map[string]*Command) {
	add := func(c *Command) { t[c.Name] = c }

	add(&Command{Name: "hset", Arity: -4, NeedsAuth: true, Handler: cmdHSet})
	add(&Command{Name: "hmset", Arity: -4, NeedsAuth: true, Handler: cmdHMSet})
	add(&Command{Name: "hsetnx", Arity: 4, NeedsAuth: true, Handler: cmdHSetNX})
	add(&Command{Name: "hget", Arity: 3, NeedsAuth: true, Handler: cmdHGet})
	add(&Command{Name: "hmget", Arity: -3, NeedsAuth: true, Handler: cmdHMGet})
	add(&Command{Name: "hdel", Arity: -3, NeedsAuth: true, Handler: cmdHDel})
	add(&Command{Name: "hgetall", Arity: 2, NeedsAuth: true, Handler: cmdHGetAll})
	add(&Command{Name: "hkeys", Arity: 2, NeedsAuth: true, Handler: cmdHKeys})
	add(&Command{Name: "hvals", Arity: 2, NeedsAuth: true, Handler: cmdHVals})
	add(&Command{Name: "hlen", Arity: 2, NeedsAuth: true, Handler: cmdHLen})
	add(&Command{Name: "hexists", Arity: 3, NeedsAuth: true, Handler: cmdHExists})
	add(&Command{Name: "hincrby", Arity: 4, NeedsAuth: true, Handler: cmdHIncrBy})
	add(&Command{Name: "hincrbyfloat", Arity: 4, NeedsAuth: true, Handler: cmdHIncrByFloat})
}

func hsetArgsToFields(argv [][]byte) (map[string][]byte, error) {
	if (len(argv)-2)%2 != 0 {
		return nil, apperr.Syntax()
	}
	fields := make(map[string][]byte, (len(argv)-2)/2)
	for i := 2; i < len(argv); i += 2 {
		fields[string(argv[i])] = argv[i+1]
	}
	return fields, nil
}

func cmdHSet(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	fields, err := hsetArgsToFields(argv)
	if err != nil {
		return errValue(err)
	}
	added, err := d.KS.HSet(ctx, s.DB(), string(argv[1]), fields)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(added))
}

func cmdHMSet(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	fields, err := hsetArgsToFields(argv)
	if err != nil {
		return errValue(err)
	}
	if _, err := d.KS.HSet(ctx, s.DB(), string(argv[1]), fields); err != nil {
		return errValue(err)
	}
	return resp.OK()
}

func cmdHSetNX(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	set, err := d.KS.HSetNX(ctx, s.DB(), string(argv[1]), string(argv[2]), argv[3])
	if err != nil {
		return errValue(err)
	}
	if set {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdHGet(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	v, ok, err := d.KS.HGet(ctx, s.DB(), string(argv[1]), string(argv[2]))
	if err != nil {
		return errValue(err)
	}
	return bulkOrNil(v, ok)
}

func cmdHMGet(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	fields := make([]string, len(argv)-2)
	for i, a := range argv[2:] {
		fields[i] = string(a)
	}
	out, err := d.KS.HMGet(ctx, s.DB(), string(argv[1]), fields)
	if err != nil {
		return errValue(err)
	}
	return bulkArray(out)
}

func cmdHDel(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	fields := make([]string, len(argv)-2)
	for i, a := range argv[2:] {
		fields[i] = string(a)
	}
	n, err := d.KS.HDel(ctx, s.DB(), string(argv[1]), fields)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdHGetAll(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	fields, values, err := d.KS.HGetAll(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	out := make([]resp.Value, 0, len(fields)*2)
	for i, f := range fields {
		out = append(out, resp.BulkString(f), resp.Bulk(values[i]))
	}
	return resp.ArrayOf(out)
}

func cmdHKeys(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	fields, err := d.KS.HKeys(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	out := make([]resp.Value, len(fields))
	for i, f := range fields {
		out[i] = resp.BulkString(f)
	}
	return resp.ArrayOf(out)
}

func cmdHVals(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	values, err := d.KS.HVals(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return bulkArray(values)
}

func cmdHLen(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.HLen(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdHExists(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	ok, err := d.KS.HExists(ctx, s.DB(), string(argv[1]), string(argv[2]))
	if err != nil {
		return errValue(err)
	}
	if ok {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdHIncrBy(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	delta, err := parseInt(argv[3])
	if err != nil {
		return errValue(err)
	}
	n, err := d.KS.HIncrBy(ctx, s.DB(), string(argv[1]), string(argv[2]), delta)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(n)
}

func cmdHIncrByFloat(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	delta, err := parseFloat(argv[3])
	if err != nil {
		return errValue(err)
	}
	n, err := d.KS.HIncrByFloat(ctx, s.DB(), string(argv[1]), string(argv[2]), delta)
	if err != nil {
		return errValue(err)
	}
	return resp.BulkString(formatFloat(n))
}
