package dispatch

import (
	"context"
	"time"

	"github.com/redlite/redlite/internal/blocking"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

// registerBlockingCommands wires BLPOP/BRPOP/BLMOVE/BRPOPLPUSH to the
// adaptive poller (B in spec.md §4.4): try the non-blocking keyspace op,
// and on a miss wait on a DB-scoped notification subscription before
// retrying. See internal/blocking for the wait/backoff state machine.
func registerBlockingCommands(t map[string]*Command) {
	add := func(c *Command) { t[c.Name] = c }

	add(&Command{Name: "blpop", Arity: -3, NeedsAuth: true, Handler: cmdBLPop})
	add(&Command{Name: "brpop", Arity: -3, NeedsAuth: true, Handler: cmdBRPop})
	add(&Command{Name: "blmove", Arity: 6, NeedsAuth: true, Handler: cmdBLMove})
	add(&Command{Name: "brpoplpush", Arity: 4, NeedsAuth: true, Handler: cmdBRPopLPush})
}

// parseTimeoutSeconds parses the trailing BLPOP/BRPOP-style timeout
// argument: a non-negative number of seconds, fractional, 0 meaning
// wait forever.
func parseTimeoutSeconds(b []byte) (time.Duration, error) {
	secs, err := parseFloat(b)
	if err != nil {
		return 0, err
	}
	if secs < 0 {
		return 0, apperrSyntax()
	}
	return time.Duration(secs * float64(time.Second)), nil
}

type blpopResult struct {
	key   string
	value []byte
}

func cmdBLPop(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return blockingPopList(ctx, d, s, argv, true)
}

func cmdBRPop(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return blockingPopList(ctx, d, s, argv, false)
}

func blockingPopList(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte, left bool) resp.Value {
	keys := argv[1 : len(argv)-1]
	timeout, err := parseTimeoutSeconds(argv[len(argv)-1])
	if err != nil {
		return errValue(err)
	}

	db := s.DB()
	sub := d.Bus.Subscribe(notify.Filter{DB: &db})
	defer d.Bus.Unsubscribe(sub)

	attempt := func() (blpopResult, bool, error) {
		for _, k := range keys {
			values, err := d.KS.Pop(ctx, db, string(k), left, 0, false)
			if err != nil {
				return blpopResult{}, false, err
			}
			if len(values) > 0 {
				return blpopResult{key: string(k), value: values[0]}, true, nil
			}
		}
		return blpopResult{}, false, nil
	}

	res, outcome, err := blocking.Wait(ctx, sub, blocking.Default, timeout, attempt)
	if err != nil {
		return errValue(err)
	}
	switch outcome {
	case blocking.OutcomeSuccess:
		return resp.Array(resp.BulkString(res.key), resp.Bulk(res.value))
	case blocking.OutcomeTimeout:
		return resp.NullArray()
	default: // OutcomeCanceled
		return resp.NullArray()
	}
}

func cmdBLMove(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return blockingMove(ctx, d, s, argv[1], argv[2], argv[3], argv[4], argv[5])
}

func cmdBRPopLPush(ctx context.Context, d *Dispatcher, s *session.Session, argv [][]byte) resp.Value {
	return blockingMove(ctx, d, s, argv[1], argv[2], []byte("right"), []byte("left"), argv[3])
}

func blockingMove(ctx context.Context, d *Dispatcher, s *session.Session, src, dst, whereFrom, whereTo, timeoutArg []byte) resp.Value {
	srcLeft, err := parseLeftRight(whereFrom)
	if err != nil {
		return errValue(err)
	}
	dstLeft, err := parseLeftRight(whereTo)
	if err != nil {
		return errValue(err)
	}
	timeout, err := parseTimeoutSeconds(timeoutArg)
	if err != nil {
		return errValue(err)
	}

	db := s.DB()
	sub := d.Bus.Subscribe(notify.Filter{DB: &db})
	defer d.Bus.Unsubscribe(sub)

	attempt := func() ([]byte, bool, error) {
		v, ok, err := d.KS.LMove(ctx, db, string(src), string(dst), srcLeft, dstLeft)
		return v, ok, err
	}

	val, outcome, err := blocking.Wait(ctx, sub, blocking.Default, timeout, attempt)
	if err != nil {
		return errValue(err)
	}
	if outcome != blocking.OutcomeSuccess {
		return resp.NullBulk()
	}
	return resp.Bulk(val)
}
