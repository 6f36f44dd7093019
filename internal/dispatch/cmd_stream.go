package dispatch

import (
	"context"
	"strings"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/keyspace"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

func registerStreamCommands(t map[string]*Command) {
	add := func(c *Command) { t[c.Name] = c }

	add(&Command{Name: "xadd", Arity: -5, NeedsAuth: true, Handler: cmdXAdd})
	add(&Command{Name: "xlen", Arity: 2, NeedsAuth: true, Handler: cmdXLen})
	add(&Command{Name: "xrange", Arity: -4, NeedsAuth: true, Handler: cmdXRange})
	add(&Command{Name: "xrevrange", Arity: -4, NeedsAuth: true, Handler: cmdXRevRange})
	add(&Command{Name: "xdel", Arity: -3, NeedsAuth: true, Handler: cmdXDel})
	add(&Command{Name: "xtrim", Arity: -4, NeedsAuth: true, Handler: cmdXTrim})
	add(&Command{Name: "xread", Arity: -4, NeedsAuth: true, Handler: cmdXRead})
	add(&Command{Name: "xgroup", Arity: -2, NeedsAuth: true, Handler: cmdXGroup})
	add(&Command{Name: "xreadgroup", Arity: -7, NeedsAuth: true, Handler: cmdXReadGroup})
	add(&Command{Name: "xack", Arity: -4, NeedsAuth: true, Handler: cmdXAck})
	add(&Command{Name: "xpending", Arity: -3, NeedsAuth: true, Handler: cmdXPending})
	add(&Command{Name: "xclaim", Arity: -6, NeedsAuth: true, Handler: cmdXClaim})
	add(&Command{Name: "xinfo", Arity: -2, NeedsAuth: true, Handler: cmdXInfo})
}

func streamEntriesToReply(entries []keyspace.StreamEntry) resp.Value {
	out := make([]resp.Value, len(entries))
	for i, e := range entries {
		fv := make([]resp.Value, 0, len(e.Fields)*2)
		for _, kv := range e.Fields {
			fv = append(fv, resp.Bulk(kv[0]), resp.Bulk(kv[1]))
		}
		out[i] = resp.Array(resp.BulkString(e.ID.String()), resp.ArrayOf(fv))
	}
	return resp.ArrayOf(out)
}

func cmdXAdd(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	i := 2
	var maxLen int64 = -1
	var minID *keyspace.StreamID
	for {
		switch strings.ToLower(string(argv[i])) {
		case "maxlen":
			i++
			if i < len(argv) && (argv[i][0] == '~' || argv[i][0] == '=') {
				i++
			}
			n, err := parseInt(argv[i])
			if err != nil {
				return errValue(err)
			}
			maxLen = n
			i++
		case "minid":
			i++
			if i < len(argv) && (argv[i][0] == '~' || argv[i][0] == '=') {
				i++
			}
			id, err := keyspace.ParseStreamID(string(argv[i]), 0)
			if err != nil {
				return errValue(err)
			}
			minID = &id
			i++
		case "limit":
			i += 2
		default:
			goto parsed
		}
	}
parsed:
	idSpec := string(argv[i])
	i++
	rest := argv[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return resp.Err("ERR", "wrong number of arguments for 'xadd' command")
	}
	fields := make([][2][]byte, len(rest)/2)
	for j := 0; j < len(rest); j += 2 {
		fields[j/2] = [2][]byte{rest[j], rest[j+1]}
	}
	id, err := d.KS.XAdd(ctx, s.DB(), string(argv[1]), idSpec, fields, maxLen, minID)
	if err != nil {
		return errValue(err)
	}
	return resp.BulkString(id.String())
}

func cmdXLen(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := d.KS.XLen(ctx, s.DB(), string(argv[1]))
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func parseRangeID(s string, defaultSeq int64) (keyspace.StreamID, error) {
	switch s {
	case "-":
		return keyspace.StreamID{MS: 0, Seq: 0}, nil
	case "+":
		return keyspace.StreamID{MS: 1<<63 - 1, Seq: 1<<63 - 1}, nil
	}
	return keyspace.ParseStreamID(s, defaultSeq)
}

func xRangeCommon(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte, desc bool) resp.Value {
	startArg, endArg := string(argv[2]), string(argv[3])
	if desc {
		startArg, endArg = endArg, startArg
	}
	min, err := parseRangeID(startArg, 0)
	if err != nil {
		return errValue(err)
	}
	max, err := parseRangeID(endArg, 1<<63-1)
	if err != nil {
		return errValue(err)
	}
	count := -1
	if len(argv) >= 6 && strings.EqualFold(string(argv[4]), "count") {
		n, err := parseIntDefault(argv[5], -1)
		if err != nil {
			return errValue(err)
		}
		count = n
	}
	entries, err := d.KS.XRange(ctx, s.DB(), string(argv[1]), min, max, desc, count)
	if err != nil {
		return errValue(err)
	}
	return streamEntriesToReply(entries)
}

func cmdXRange(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return xRangeCommon(ctx, d, s, argv, false)
}

func cmdXRevRange(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return xRangeCommon(ctx, d, s, argv, true)
}

func cmdXDel(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	ids := make([]keyspace.StreamID, len(argv)-2)
	for i, a := range argv[2:] {
		id, err := keyspace.ParseStreamID(string(a), 0)
		if err != nil {
			return errValue(err)
		}
		ids[i] = id
	}
	n, err := d.KS.XDel(ctx, s.DB(), string(argv[1]), ids)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdXTrim(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	i := 2
	var maxLen int64 = -1
	var minID *keyspace.StreamID
	switch strings.ToLower(string(argv[i])) {
	case "maxlen":
		i++
		if i < len(argv) && (argv[i][0] == '~' || argv[i][0] == '=') {
			i++
		}
		n, err := parseInt(argv[i])
		if err != nil {
			return errValue(err)
		}
		maxLen = n
	case "minid":
		i++
		if i < len(argv) && (argv[i][0] == '~' || argv[i][0] == '=') {
			i++
		}
		id, err := keyspace.ParseStreamID(string(argv[i]), 0)
		if err != nil {
			return errValue(err)
		}
		minID = &id
	default:
		return resp.Err("ERR", "syntax error")
	}
	n, err := d.KS.XTrim(ctx, s.DB(), string(argv[1]), maxLen, minID)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

// parseXReadStreams splits XREAD/XREADGROUP's trailing "STREAMS key... id..."
// clause into the key list and their paired after-IDs.
func parseXReadStreams(argv [][]byte, streamsIdx int) (map[string]keyspace.StreamID, []string, error) {
	rest := argv[streamsIdx+1:]
	if len(rest)%2 != 0 {
		return nil, nil, apperr.Syntax()
	}
	n := len(rest) / 2
	keys := make([]string, n)
	out := make(map[string]keyspace.StreamID, n)
	for i := 0; i < n; i++ {
		keys[i] = string(rest[i])
		idArg := string(rest[n+i])
		if idArg == "$" {
			out[keys[i]] = keyspace.StreamID{MS: 1<<63 - 1, Seq: 1<<63 - 1}
			continue
		}
		if idArg == ">" {
			continue // XREADGROUP's ">" handled by caller, not an after-ID
		}
		id, err := keyspace.ParseStreamID(idArg, 0)
		if err != nil {
			return nil, nil, err
		}
		out[keys[i]] = id
	}
	return out, keys, nil
}

func findArgIndex(argv [][]byte, name string) int {
	for i, a := range argv {
		if strings.EqualFold(string(a), name) {
			return i
		}
	}
	return -1
}

func cmdXRead(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	count := 0
	idx := findArgIndex(argv, "count")
	if idx > 0 && idx+1 < len(argv) {
		n, err := parseIntDefault(argv[idx+1], 0)
		if err != nil {
			return errValue(err)
		}
		count = n
	}
	streamsIdx := findArgIndex(argv, "streams")
	if streamsIdx < 0 {
		return resp.Err("ERR", "syntax error")
	}
	streams, keys, err := parseXReadStreams(argv, streamsIdx)
	if err != nil {
		return errValue(err)
	}
	// For "$", resolve to the stream's current last ID up front so the read
	// has a concrete cursor. A BLOCK argument is ignored: XREAD never waits.
	for _, key := range keys {
		if id, ok := streams[key]; ok && id.MS == 1<<63-1 {
			info, err := d.KS.XInfoStream(ctx, s.DB(), key)
			if err != nil {
				streams[key] = keyspace.StreamID{MS: 0, Seq: 0}
				continue
			}
			streams[key] = info.LastID
		}
	}
	results, err := d.KS.XRead(ctx, s.DB(), streams, count)
	if err != nil {
		return errValue(err)
	}
	if len(results) == 0 {
		return resp.NullArray()
	}
	out := make([]resp.Value, 0, len(keys))
	for _, key := range keys {
		entries, ok := results[key]
		if !ok {
			continue
		}
		out = append(out, resp.Array(resp.BulkString(key), streamEntriesToReply(entries)))
	}
	return resp.ArrayOf(out)
}

func cmdXGroup(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if len(argv) < 2 {
		return resp.Err("ERR", "wrong number of arguments for 'xgroup' command")
	}
	switch strings.ToLower(string(argv[1])) {
	case "create":
		if len(argv) < 5 {
			return resp.Err("ERR", "wrong number of arguments for 'xgroup create'")
		}
		mkstream := len(argv) >= 6 && strings.EqualFold(string(argv[5]), "mkstream")
		startID, err := parseRangeID(string(argv[4]), 0)
		if err != nil {
			return errValue(err)
		}
		if err := d.KS.XGroupCreate(ctx, s.DB(), string(argv[2]), string(argv[3]), startID, mkstream); err != nil {
			return errValue(err)
		}
		return resp.OK()
	default:
		return resp.Err("ERR", "unknown XGROUP subcommand")
	}
}

func cmdXReadGroup(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if !strings.EqualFold(string(argv[1]), "group") {
		return resp.Err("ERR", "syntax error")
	}
	group, consumer := string(argv[2]), string(argv[3])
	count := 0
	if idx := findArgIndex(argv, "count"); idx > 0 && idx+1 < len(argv) {
		n, err := parseIntDefault(argv[idx+1], 0)
		if err != nil {
			return errValue(err)
		}
		count = n
	}
	streamsIdx := findArgIndex(argv, "streams")
	if streamsIdx < 0 {
		return resp.Err("ERR", "syntax error")
	}
	rest := argv[streamsIdx+1:]
	if len(rest)%2 != 0 {
		return resp.Err("ERR", "syntax error")
	}
	n := len(rest) / 2
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = string(rest[i])
	}
	out := make([]resp.Value, 0, n)
	for _, key := range keys {
		entries, err := d.KS.XReadGroup(ctx, s.DB(), key, group, consumer, count)
		if err != nil {
			return errValue(err)
		}
		out = append(out, resp.Array(resp.BulkString(key), streamEntriesToReply(entries)))
	}
	return resp.ArrayOf(out)
}

func cmdXAck(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	ids := make([]keyspace.StreamID, len(argv)-3)
	for i, a := range argv[3:] {
		id, err := keyspace.ParseStreamID(string(a), 0)
		if err != nil {
			return errValue(err)
		}
		ids[i] = id
	}
	n, err := d.KS.XAck(ctx, s.DB(), string(argv[1]), string(argv[2]), ids)
	if err != nil {
		return errValue(err)
	}
	return resp.Integer(int64(n))
}

func cmdXPending(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	key, group := string(argv[1]), string(argv[2])
	min, max := keyspace.StreamID{MS: 0, Seq: 0}, keyspace.StreamID{MS: 1<<63 - 1, Seq: 1<<63 - 1}
	count := -1
	consumer := ""
	if len(argv) >= 6 {
		var err error
		min, err = parseRangeID(string(argv[3]), 0)
		if err != nil {
			return errValue(err)
		}
		max, err = parseRangeID(string(argv[4]), 1<<63-1)
		if err != nil {
			return errValue(err)
		}
		count, err = parseIntDefault(argv[5], -1)
		if err != nil {
			return errValue(err)
		}
		if len(argv) >= 7 {
			consumer = string(argv[6])
		}
	}
	entries, err := d.KS.XPending(ctx, s.DB(), key, group, min, max, count, consumer)
	if err != nil {
		return errValue(err)
	}
	if len(argv) < 6 {
		// Summary form: count, min id, max id, per-consumer counts.
		if len(entries) == 0 {
			return resp.Array(resp.Integer(0), resp.NullBulk(), resp.NullBulk(), resp.NullArray())
		}
		byConsumer := map[string]int{}
		for _, e := range entries {
			byConsumer[e.Consumer]++
		}
		consumers := make([]resp.Value, 0, len(byConsumer))
		for name, n := range byConsumer {
			consumers = append(consumers, resp.Array(resp.BulkString(name), resp.BulkString(formatInt(n))))
		}
		return resp.Array(
			resp.Integer(int64(len(entries))),
			resp.BulkString(entries[0].ID.String()),
			resp.BulkString(entries[len(entries)-1].ID.String()),
			resp.ArrayOf(consumers),
		)
	}
	out := make([]resp.Value, len(entries))
	for i, e := range entries {
		out[i] = resp.Array(
			resp.BulkString(e.ID.String()),
			resp.BulkString(e.Consumer),
			resp.Integer(e.IdleMillis),
			resp.Integer(int64(e.DeliveryCount)),
		)
	}
	return resp.ArrayOf(out)
}

func cmdXClaim(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	key, group, consumer := string(argv[1]), string(argv[2]), string(argv[3])
	minIdle, err := parseInt(argv[4])
	if err != nil {
		return errValue(err)
	}
	var ids []keyspace.StreamID
	for _, a := range argv[5:] {
		id, perr := keyspace.ParseStreamID(string(a), 0)
		if perr != nil {
			break // trailing option flags (JUSTID etc.), not IDs
		}
		ids = append(ids, id)
	}
	entries, err := d.KS.XClaim(ctx, s.DB(), key, group, consumer, minIdle, ids)
	if err != nil {
		return errValue(err)
	}
	return streamEntriesToReply(entries)
}

func cmdXInfo(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if len(argv) < 3 {
		return resp.Err("ERR", "wrong number of arguments for 'xinfo' command")
	}
	key := string(argv[2])
	switch strings.ToLower(string(argv[1])) {
	case "stream":
		info, err := d.KS.XInfoStream(ctx, s.DB(), key)
		if err != nil {
			return errValue(err)
		}
		return resp.Array(
			resp.BulkString("length"), resp.Integer(int64(info.Length)),
			resp.BulkString("last-generated-id"), resp.BulkString(info.LastID.String()),
			resp.BulkString("first-entry-id"), resp.BulkString(info.FirstEntryID.String()),
			resp.BulkString("groups"), resp.Integer(int64(info.Groups)),
		)
	case "groups":
		groups, err := d.KS.XInfoGroups(ctx, s.DB(), key)
		if err != nil {
			return errValue(err)
		}
		out := make([]resp.Value, len(groups))
		for i, g := range groups {
			out[i] = resp.Array(
				resp.BulkString("name"), resp.BulkString(g.Name),
				resp.BulkString("consumers"), resp.Integer(int64(g.Consumers)),
				resp.BulkString("pending"), resp.Integer(int64(g.Pending)),
				resp.BulkString("last-delivered-id"), resp.BulkString(g.LastDeliveredID.String()),
			)
		}
		return resp.ArrayOf(out)
	default:
		return resp.Err("ERR", "unknown XINFO subcommand")
	}
}
