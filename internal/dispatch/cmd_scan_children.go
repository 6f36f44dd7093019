package dispatch

import (
	"context"
	"strings"

	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

func registerChildScanCommands(t map[string]*Command) {
	add := func(c *Command) { t[c.Name] = c }

	add(&Command{Name: "hscan", Arity: -3, NeedsAuth: true, Handler: cmdHScan})
	add(&Command{Name: "sscan", Arity: -3, NeedsAuth: true, Handler: cmdSScan})
	add(&Command{Name: "zscan", Arity: -3, NeedsAuth: true, Handler: cmdZScan})
}

func scanModifiers(argv [][]byte, from int) (pattern string, count int, err error) {
	for i := from; i < len(argv); i++ {
		switch strings.ToLower(string(argv[i])) {
		case "match":
			i++
			if i >= len(argv) {
				return "", 0, apperrSyntax()
			}
			pattern = string(argv[i])
		case "count":
			i++
			if i >= len(argv) {
				return "", 0, apperrSyntax()
			}
			count, err = parseIntDefault(argv[i], 0)
			if err != nil {
				return "", 0, err
			}
		default:
			return "", 0, apperrSyntax()
		}
	}
	return pattern, count, nil
}

func cmdHScan(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	pattern, count, err := scanModifiers(argv, 3)
	if err != nil {
		return errValue(err)
	}
	next, fields, values, err := d.KS.HScan(ctx, s.DB(), string(argv[1]), string(argv[2]), pattern, count)
	if err != nil {
		return errValue(err)
	}
	out := make([]resp.Value, 0, len(fields)*2)
	for i, f := range fields {
		out = append(out, resp.BulkString(f), resp.Bulk(values[i]))
	}
	return resp.Array(resp.BulkString(next), resp.ArrayOf(out))
}

func cmdSScan(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	pattern, count, err := scanModifiers(argv, 3)
	if err != nil {
		return errValue(err)
	}
	next, members, err := d.KS.SScan(ctx, s.DB(), string(argv[1]), string(argv[2]), pattern, count)
	if err != nil {
		return errValue(err)
	}
	return resp.Array(resp.BulkString(next), bulkArray(members))
}

func cmdZScan(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	pattern, count, err := scanModifiers(argv, 3)
	if err != nil {
		return errValue(err)
	}
	next, members, err := d.KS.ZScan(ctx, s.DB(), string(argv[1]), string(argv[2]), pattern, count)
	if err != nil {
		return errValue(err)
	}
	out := make([]resp.Value, 0, len(members)*2)
	for _, m := range members {
		out = append(out, resp.Bulk(m.Member), resp.BulkString(formatFloat(m.Score)))
	}
	return resp.Array(resp.BulkString(next), resp.ArrayOf(out))
}
