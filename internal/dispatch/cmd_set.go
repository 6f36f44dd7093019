package dispatch

import (
	"context"

	"github.com/redlite/redlite/internal/keyspace"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

func registerSetCommands(t map[string]*Command) {
	add := func(c *Command) { t[c.Name] = c }

	add(&Command{Name: "sadd", Arity: -3, NeedsAuth: true, Handler: cmdSAdd})
	add(&Command{Name: "srem", Arity: -3, NeedsAuth: true, Handler: cmdSRem})
	add(&Command{Name: "scard", Arity: 2, NeedsAuth: true, Handler: cmdSCard})
	add(&Command{Name: "sismember", Arity: 3, NeedsAuth: true, Handler: cmdSIsMember})
	add(&Command{Name: "smismember", Arity: -3, NeedsAuth: true, Handler: cmdSMIsMember})
	add(&Command{Name: "smembers", Arity: 2, NeedsAuth: true, Handler: cmdSMembers})
	add(&Command{Name: "spop", Arity: -2, NeedsAuth: true, Handler: cmdSPop})
	add(&Command{Name: "srandmember", Arity: -2, NeedsAuth: true, Handler: cmdSRandMember})
	add(&Command{Name: "smove", Arity: 4, NeedsAuth: true, Handler: cmdSMove})
	add(&Command{Name: "sdiff", Arity: -2, NeedsAuth: true, Handler: cmdSDiff})
	add(&Command{Name: "sinter", Arity: -2, NeedsAuth: true, Handler: cmdSInter})
	add(&Command{Name: "sunion", Arity: -2, NeedsAuth: true, Handler: cmdSUnion})
	add(&Command{Name: "sdiffstore", Arity: -3, NeedsAuth: true, Handler: cmdSDiffStore})
	add(&Command{Name: "sinterstore", Arity: -3, NeedsAuth: true, Handler: cmdSInterStore})
	add(&Command{Name: "sunionstore", Arity: -3, NeedsAuth: true, Handler: cmdSUnionStore})
}

func cmdSAdd(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.SAdd(ctx, s.DB(), string(argv[1]), argv[2:])
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdSRem(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.SRem(ctx, s.DB(), string(argv[1]), argv[2:])
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdSCard(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.SCard(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdSIsMember(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	ok, err := d.KS.SIsMember(ctx, s.DB(), string(argv[1]), argv[2])
	if err != nil {
		return errValue(err)
	}
	if ok {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdSMIsMember(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	out, err := d.KS.SMIsMember(ctx, s.DB(), string(argv[1]), argv[2:])
	if err != nil {
		return errValue(err)
	}
	vals := make([]resp.Value, len(out))
	for i, b := range out {
		if b {
			vals[i] = resp.Integer(1)
		} else {
			vals[i] = resp.Integer(0)
		}
	}
	return resp.ArrayOf(vals)
}

func cmdSMembers(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	out, err := d.KS.SMembers(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return bulkArray(out)
}

func cmdSPop(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	hasCount := len(argv) == 3
	count := 0
	if hasCount {
		n, err := parseIntDefault(argv[2], 0)
		if err != nil {
			return errValue(err)
		}
		count = n
	}
	out, err := d.KS.SPop(ctx, s.DB(), string(argv[1]), count, hasCount)
	if err != nil {
		return errValue(err)
	}
	if !hasCount {
		if len(out) == 0 {
			return resp.NullBulk()
		}
		return resp.Bulk(out[0])
	}
	return bulkArray(out)
}

func cmdSRandMember(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	hasCount := len(argv) == 3
	count := 0
	if hasCount {
		n, err := parseIntDefault(argv[2], 0)
		if err != nil {
			return errValue(err)
		}
		count = n
	}
	out, err := d.KS.SRandMember(ctx, s.DB(), string(argv[1]), count, hasCount)
	if err != nil {
		return errValue(err)
	}
	if !hasCount {
		if len(out) == 0 {
			return resp.NullBulk()
		}
		return resp.Bulk(out[0])
	}
	return bulkArray(out)
}

func cmdSMove(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	moved, err := d.KS.SMove(ctx, s.DB(), string(argv[1]), string(argv[2]), argv[3])
	if err != nil {
		return errValue(err)
	}
	if moved {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func argsToKeys(argv [][]byte) []string {
	keys := make([]string, len(argv))
	for i, a := range argv {
		keys[i] = string(a)
	}
	return keys
}

func cmdSDiff(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	out, err := d.KS.SCombine(ctx, s.DB(), keyspace.OpDiff, argsToKeys(argv[1:]))
	if err != nil {
		return errValue(err)
	}
	return bulkArray(out)
}

func cmdSInter(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	out, err := d.KS.SCombine(ctx, s.DB(), keyspace.OpInter, argsToKeys(argv[1:]))
	if err != nil {
		return errValue(err)
	}
	return bulkArray(out)
}

func cmdSUnion(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	out, err := d.KS.SCombine(ctx, s.DB(), keyspace.OpUnion, argsToKeys(argv[1:]))
	if err != nil {
		return errValue(err)
	}
	return bulkArray(out)
}

func cmdSDiffStore(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.SCombineStore(ctx, s.DB(), keyspace.OpDiff, string(argv[1]), argsToKeys(argv[2:]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdSInterStore(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.SCombineStore(ctx, s.DB(), keyspace.OpInter, string(argv[1]), argsToKeys(argv[2:]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdSUnionStore(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.SCombineStore(ctx, s.DB(), keyspace.OpUnion, string(argv[1]), argsToKeys(argv[2:]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}
