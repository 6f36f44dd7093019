// Package dispatch implements the command dispatcher (M in spec.md §4.8): a
// lowercase-command-name lookup table of handlers with declared arity and
// auth requirements, grounded on the teacher's Gin route table in
// cmd/zmux-server/main.go (one entry per verb, validated before business
// logic runs, structured errors attached rather than panicking).
package dispatch

import (
	"bytes"
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/keyspace"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/registry"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

// Command describes one RESP verb's dispatch contract.
type Command struct {
	Name string
	// Arity mirrors Redis's own convention: positive means exactly that many
	// arguments (including the verb), negative means "at least abs(Arity)".
	Arity       int
	NeedsAuth   bool
	PubSubOnly  bool // allowed while the connection is in subscribe mode
	Handler     func(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value
}

// Dispatcher owns the command table and the shared subsystem handles every
// handler closes over.
type Dispatcher struct {
	KS       *keyspace.Keyspace
	Bus      *notify.Bus
	Registry *registry.Registry
	Log      *zap.Logger
	Password string // empty means AUTH is not required

	table map[string]*Command
}

func New(ks *keyspace.Keyspace, bus *notify.Bus, reg *registry.Registry, password string, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{KS: ks, Bus: bus, Registry: reg, Password: password, Log: log.Named("dispatch")}
	d.table = buildTable()
	return d
}

// subscribeModeAllowed is the fixed command set permitted while a connection
// has active channel/pattern subscriptions, per spec.md §4.8.
var subscribeModeAllowed = map[string]struct{}{
	"subscribe": {}, "unsubscribe": {}, "psubscribe": {}, "punsubscribe": {},
	"ping": {}, "quit": {}, "reset": {},
}

// Dispatch executes one command for session s and returns the RESP reply to
// write back. It never panics: any error from a handler or from apperr is
// translated to a RESP error reply here.
func (d *Dispatcher) Dispatch(ctx context.Context, s *session.Session, argv [][]byte) resp.Value {
	if len(argv) == 0 {
		return resp.Value{} // empty inline line: caller skips writing a reply
	}
	name := strings.ToLower(string(argv[0]))

	if s.InSubscribeMode() {
		if _, ok := subscribeModeAllowed[name]; !ok {
			return resp.Err("ERR", "Can't execute '"+name+"': only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT / RESET are allowed in this context")
		}
	}

	// Transaction queuing: once MULTI has been issued, every command except
	// the control verbs below is queued rather than executed immediately. A
	// command that fails validation (unknown name, wrong arity) is not
	// queued: it gets its error reply and, inside MULTI, also marks the
	// transaction dirty so that EXEC aborts.
	queuing := s.InTx() && !isTxControl(name)

	cmd, ok := d.table[name]
	if !ok {
		if queuing {
			s.MarkDirty()
		}
		return resp.Err("ERR", "unknown command '"+name+"'")
	}
	if !arityOK(cmd.Arity, len(argv)) {
		if queuing {
			s.MarkDirty()
		}
		return resp.Err("ERR", "wrong number of arguments for '"+name+"' command")
	}
	if cmd.NeedsAuth && d.Password != "" && !s.Authenticated() {
		return resp.Err("NOAUTH", "Authentication required.")
	}

	if queuing {
		s.Queue(argv)
		return resp.SimpleString("QUEUED")
	}

	s.Touch()
	reply := cmd.Handler(ctx, d, s, argv)
	if reply.Type == resp.TypeError {
		// no-op: handlers already format apperr values into wire errors via
		// errValue below; this branch exists so future handlers that return
		// raw errors get a consistent log line instead of silent mismatch.
		d.Log.Debug("command error", zap.String("cmd", name), zap.String("reply", reply.Str))
	}
	return reply
}

func isTxControl(name string) bool {
	switch name {
	case "multi", "exec", "discard", "watch", "unwatch":
		return true
	}
	return false
}

func arityOK(arity, got int) bool {
	if arity >= 0 {
		return got == arity
	}
	return got >= -arity
}

// errValue translates any error into a RESP error reply: apperr.Error values
// use their WireMessage(), everything else becomes a generic ERR.
func errValue(err error) resp.Value {
	if ae, ok := err.(*apperr.Error); ok {
		prefix, text := ae.WireMessage()
		return resp.Err(prefix, text)
	}
	return resp.Err("ERR", err.Error())
}

func bulkOrNil(v []byte, ok bool) resp.Value {
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(v)
}

func bulkArray(vs [][]byte) resp.Value {
	out := make([]resp.Value, len(vs))
	for i, v := range vs {
		out[i] = resp.Bulk(v)
	}
	return resp.ArrayOf(out)
}

func argvTail(argv [][]byte) [][]byte {
	if len(argv) <= 1 {
		return nil
	}
	return argv[1:]
}

func equalFold(a []byte, s string) bool {
	return bytes.EqualFold(a, []byte(s))
}
