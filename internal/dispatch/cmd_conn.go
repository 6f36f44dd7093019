package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/registry"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

func registerConnCommands(t map[string]*Command) {
	add := func(c *Command) { t[c.Name] = c }

	add(&Command{Name: "ping", Arity: -1, Handler: cmdPing, PubSubOnly: true})
	add(&Command{Name: "echo", Arity: 2, NeedsAuth: true, Handler: cmdEcho})
	add(&Command{Name: "select", Arity: 2, NeedsAuth: true, Handler: cmdSelect})
	add(&Command{Name: "auth", Arity: -2, Handler: cmdAuth})
	add(&Command{Name: "hello", Arity: -1, Handler: cmdHello})
	add(&Command{Name: "quit", Arity: -1, Handler: cmdQuit, PubSubOnly: true})
	add(&Command{Name: "reset", Arity: 1, Handler: cmdReset, PubSubOnly: true})
	add(&Command{Name: "client", Arity: -2, NeedsAuth: true, Handler: cmdClient})
	add(&Command{Name: "multi", Arity: 1, NeedsAuth: true, Handler: cmdMulti})
	add(&Command{Name: "exec", Arity: 1, NeedsAuth: true, Handler: cmdExec})
	add(&Command{Name: "discard", Arity: 1, NeedsAuth: true, Handler: cmdDiscard})
	add(&Command{Name: "watch", Arity: -2, NeedsAuth: true, Handler: cmdWatch})
	add(&Command{Name: "unwatch", Arity: 1, NeedsAuth: true, Handler: cmdUnwatch})
	add(&Command{Name: "subscribe", Arity: -2, Handler: cmdSubscribe, PubSubOnly: true})
	add(&Command{Name: "unsubscribe", Arity: -1, Handler: cmdUnsubscribe, PubSubOnly: true})
	add(&Command{Name: "psubscribe", Arity: -2, Handler: cmdPSubscribe, PubSubOnly: true})
	add(&Command{Name: "punsubscribe", Arity: -1, Handler: cmdPUnsubscribe, PubSubOnly: true})
	add(&Command{Name: "publish", Arity: 3, NeedsAuth: true, Handler: cmdPublish})
	add(&Command{Name: "config", Arity: -2, NeedsAuth: true, Handler: cmdConfig})
	add(&Command{Name: "info", Arity: -1, NeedsAuth: true, Handler: cmdInfo})
}

func cmdPing(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if len(argv) == 2 {
		return resp.Bulk(argv[1])
	}
	return resp.SimpleString("PONG")
}

func cmdEcho(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return resp.Bulk(argv[1])
}

func cmdSelect(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	n, err := parseIntDefault(argv[1], 0)
	if err != nil {
		return errValue(err)
	}
	if n < 0 || n >= 16 {
		return resp.Err("ERR", "DB index is out of range")
	}
	s.SetDB(n)
	return resp.OK()
}

func cmdAuth(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if d.Password == "" {
		return resp.Err("ERR", "Client sent AUTH, but no password is set. Did you mean AUTH <username> <password>?")
	}
	pass := string(argv[len(argv)-1])
	if pass != d.Password {
		return resp.Err("WRONGPASS", "invalid username-password pair or user is disabled.")
	}
	s.SetAuthenticated(true)
	return resp.OK()
}

func cmdHello(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if len(argv) >= 2 {
		if _, err := parseIntDefault(argv[1], 2); err != nil {
			return resp.Err("NOPROTO", "unsupported protocol version")
		}
	}
	for i := 2; i < len(argv); i++ {
		if strings.EqualFold(string(argv[i]), "auth") && i+2 < len(argv) {
			if reply := cmdAuth(ctx, d, s, [][]byte{argv[i], argv[i+1], argv[i+2]}); reply.Type == resp.TypeError {
				return reply
			}
			i += 2
		}
	}
	return resp.Array(
		resp.BulkString("server"), resp.BulkString("redlite"),
		resp.BulkString("proto"), resp.Integer(2),
		resp.BulkString("id"), resp.Integer(int64(s.ID)),
		resp.BulkString("mode"), resp.BulkString("standalone"),
		resp.BulkString("role"), resp.BulkString("master"),
		resp.BulkString("modules"), resp.ArrayOf(nil),
	)
}

func cmdQuit(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	s.Kill()
	return resp.OK()
}

func cmdReset(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	for _, c := range s.Channels() {
		s.Unsubscribe(c)
	}
	for _, p := range s.Patterns() {
		s.PUnsubscribe(p)
	}
	s.Discard()
	s.Unwatch()
	s.SetDB(0)
	s.SetAuthenticated(false)
	return resp.SimpleString("RESET")
}

func cmdClient(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if len(argv) < 2 {
		return resp.Err("ERR", "wrong number of arguments for 'client' command")
	}
	switch strings.ToLower(string(argv[1])) {
	case "id":
		return resp.Integer(int64(s.ID))
	case "getname":
		name := s.Name()
		if name == "" {
			return resp.NullBulk()
		}
		return resp.BulkString(name)
	case "setname":
		if len(argv) != 3 {
			return resp.Err("ERR", "wrong number of arguments")
		}
		s.SetName(string(argv[2]))
		return resp.OK()
	case "list":
		infos := d.Registry.List()
		var sb strings.Builder
		for _, sess := range infos {
			ci := registry.Describe(sess)
			fmt.Fprintf(&sb, "id=%d addr=%s name=%s db=%d cmd_count=%d age=%d idle=%d flags=%s\n",
				ci.ID, ci.Addr, ci.Name, ci.DB, ci.CmdCount, int64(ci.Age.Seconds()), int64(ci.Idle.Seconds()), ci.Kind)
		}
		return resp.BulkString(sb.String())
	case "info":
		ci := registry.Describe(s)
		return resp.BulkString(fmt.Sprintf("id=%d addr=%s name=%s db=%d cmd_count=%d age=%d idle=%d flags=%s\n",
			ci.ID, ci.Addr, ci.Name, ci.DB, ci.CmdCount, int64(ci.Age.Seconds()), int64(ci.Idle.Seconds()), ci.Kind))
	case "kill":
		return cmdClientKill(d, s, argv)
	case "no-evict", "no-touch", "reply":
		return resp.OK()
	default:
		return resp.Err("ERR", "unknown CLIENT subcommand")
	}
}

func cmdClientKill(d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	var filter registry.KillFilter
	filter.HasSkipMe = true
	filter.SkipMe = s.ID
	if len(argv) == 3 {
		filter.HasAddr = true
		filter.Addr = string(argv[2])
		n := d.Registry.Kill(filter)
		if n == 0 {
			return resp.Err("ERR", "No such client")
		}
		return resp.OK()
	}
	for i := 2; i < len(argv); i += 2 {
		if i+1 >= len(argv) {
			return resp.Err("ERR", "syntax error")
		}
		switch strings.ToLower(string(argv[i])) {
		case "id":
			id, err := strconv.ParseUint(string(argv[i+1]), 10, 64)
			if err != nil {
				return resp.Err("ERR", "client-id should be greater than 0")
			}
			filter.HasID = true
			filter.ID = &id
		case "addr":
			filter.HasAddr = true
			filter.Addr = string(argv[i+1])
		case "skipme":
			filter.HasSkipMe = strings.EqualFold(string(argv[i+1]), "yes")
			filter.SkipMe = s.ID
		default:
			return resp.Err("ERR", "syntax error")
		}
	}
	n := d.Registry.Kill(filter)
	return resp.Integer(int64(n))
}

func cmdMulti(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if !s.Multi() {
		return resp.Err("ERR", "MULTI calls can not be nested")
	}
	return resp.OK()
}

func cmdDiscard(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if !s.Discard() {
		return resp.Err("ERR", "DISCARD without MULTI")
	}
	return resp.OK()
}

func cmdExec(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	watch := s.WatchSnapshot()
	queue, dirty, ok := s.Exec()
	if !ok {
		return resp.Err("ERR", "EXEC without MULTI")
	}
	if dirty {
		return resp.Err("EXECABORT", "Transaction discarded because of previous errors.")
	}
	for wk, version := range watch {
		cur, exists, err := d.KS.KeyVersion(ctx, wk.DB, wk.Key)
		if err != nil {
			return errValue(err)
		}
		if !exists {
			cur = absentVersion
		}
		if cur != version {
			return resp.NullArray()
		}
	}
	out := make([]resp.Value, len(queue))
	for i, qc := range queue {
		out[i] = d.Dispatch(ctx, s, qc.Argv)
	}
	return resp.ArrayOf(out)
}

// absentVersion is the watch snapshot recorded for a key that does not exist,
// so a key absent at both WATCH and EXEC does not abort the transaction.
const absentVersion = -1

func cmdWatch(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if s.InTx() {
		return resp.Err("ERR", "WATCH inside MULTI is not allowed")
	}
	for _, key := range argv[1:] {
		version, exists, err := d.KS.KeyVersion(ctx, s.DB(), string(key))
		if err != nil {
			return errValue(err)
		}
		if !exists {
			version = absentVersion
		}
		s.Watch(s.DB(), string(key), version)
	}
	return resp.OK()
}

func cmdUnwatch(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	s.Unwatch()
	return resp.OK()
}

func cmdSubscribe(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	// Individual confirmations are written by the connection loop (one per
	// channel); Dispatch returns only the last one since Handler yields a
	// single reply. See internal/server for the per-channel fan-out.
	var last resp.Value
	for _, c := range argv[1:] {
		n := s.Subscribe(string(c))
		last = resp.Array(resp.BulkString("subscribe"), resp.BulkString(string(c)), resp.Integer(int64(n)))
	}
	return last
}

func cmdUnsubscribe(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	channels := argv[1:]
	if len(channels) == 0 {
		channels = toByteSlices(s.Channels())
	}
	var last resp.Value
	for _, c := range channels {
		n := s.Unsubscribe(string(c))
		last = resp.Array(resp.BulkString("unsubscribe"), resp.BulkString(string(c)), resp.Integer(int64(n)))
	}
	if last.Type == 0 {
		last = resp.Array(resp.BulkString("unsubscribe"), resp.NullBulk(), resp.Integer(0))
	}
	return last
}

func cmdPSubscribe(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	var last resp.Value
	for _, p := range argv[1:] {
		n := s.PSubscribe(string(p))
		last = resp.Array(resp.BulkString("psubscribe"), resp.BulkString(string(p)), resp.Integer(int64(n)))
	}
	return last
}

func cmdPUnsubscribe(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	patterns := argv[1:]
	if len(patterns) == 0 {
		patterns = toByteSlices(s.Patterns())
	}
	var last resp.Value
	for _, p := range patterns {
		n := s.PUnsubscribe(string(p))
		last = resp.Array(resp.BulkString("punsubscribe"), resp.BulkString(string(p)), resp.Integer(int64(n)))
	}
	if last.Type == 0 {
		last = resp.Array(resp.BulkString("punsubscribe"), resp.NullBulk(), resp.Integer(0))
	}
	return last
}

func toByteSlices(ss []string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func cmdPublish(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	channel, message := string(argv[1]), argv[2]
	n := d.Bus.Publish(notify.Event{DB: s.DB(), Key: channel, Kind: notify.KindMessage, Payload: message})
	return resp.Integer(int64(n))
}

func cmdConfig(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	if len(argv) < 2 {
		return resp.Err("ERR", "wrong number of arguments for 'config' command")
	}
	switch strings.ToLower(string(argv[1])) {
	case "get":
		return resp.ArrayOf(nil)
	case "set":
		return resp.OK()
	default:
		return resp.Err("ERR", "unknown CONFIG subcommand")
	}
}

func cmdInfo(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	var sb strings.Builder
	sb.WriteString("# Server\r\nredis_version:7.4.0\r\nredlite_version:1.0.0\r\n")
	sb.WriteString("# Clients\r\nconnected_clients:")
	sb.WriteString(strconv.Itoa(d.Registry.Len()))
	sb.WriteString("\r\n# Keyspace\r\n")
	return resp.BulkString(sb.String())
}
