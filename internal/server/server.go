// Package server implements the connection listener (L in spec.md §2): it
// accepts TCP connections, frames RESP requests/replies with internal/resp,
// registers/unregisters each connection's internal/session.Session with the
// internal/registry.Registry, routes parsed commands through
// internal/dispatch, and fans pub/sub PUBLISH events back out to subscribed
// connections out-of-band from their request/response cycle.
//
// Grounded on golang.org/x/sync/errgroup's cooperative fan-out/fan-in
// pattern (used the same way by other_examples'
// eb71ec7a_Icinga-icinga-go-library__icingadb-runtime_updates.go.go) for
// unifying the listener loop, per-connection readers and the pub/sub pusher
// under one cancellation.
package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/dispatch"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/registry"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/session"
)

// Server owns the RESP TCP listener.
type Server struct {
	Addr     string
	Dispatch *dispatch.Dispatcher
	Bus      *notify.Bus
	Registry *registry.Registry
	Log      *zap.Logger

	nextID atomic.Uint64
	wg     sync.WaitGroup
}

// Run listens on s.Addr and serves connections until ctx is canceled. It
// returns nil on a clean shutdown, or the listen error (the caller maps that
// to spec.md §6's exit code 2).
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return err
	}
	s.Log.Info("listening", zap.String("addr", s.Addr))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// connWriter serializes writes to conn: both command replies and
// out-of-band pub/sub pushes go through the same mutex so their bytes never
// interleave on the wire.
type connWriter struct {
	mu sync.Mutex
	bw *bufio.Writer
}

func (w *connWriter) write(v resp.Value) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := resp.WriteValue(w.bw, v); err != nil {
		return err
	}
	return w.bw.Flush()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	id := s.nextID.Add(1)
	sess := session.New(id, conn, cancel)
	s.Registry.Register(sess)
	defer s.Registry.Unregister(id)

	log := s.Log.With(zap.Uint64("conn", id), zap.String("addr", sess.Addr))
	log.Debug("connection accepted")

	out := &connWriter{bw: bufio.NewWriter(conn)}

	sub := s.Bus.Subscribe(notify.Filter{Kinds: map[notify.Kind]struct{}{notify.KindMessage: {}}})
	defer s.Bus.Unsubscribe(sub)

	var pushWG sync.WaitGroup
	pushWG.Add(1)
	go func() {
		defer pushWG.Done()
		pumpPubSub(connCtx, sess, sub, out)
	}()

	reader := resp.NewReader(bufio.NewReader(conn))
	for {
		argv, err := reader.ReadCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) && connCtx.Err() == nil {
				log.Debug("read error", zap.Error(err))
			}
			break
		}
		if len(argv) == 0 {
			continue
		}

		reply := s.Dispatch.Dispatch(connCtx, sess, argv)
		if err := out.write(reply); err != nil {
			log.Debug("write error", zap.Error(err))
			break
		}
		if sess.Killed() {
			break
		}
	}

	cancel()
	pushWG.Wait()
	log.Debug("connection closed")
}

// pumpPubSub delivers PUBLISH events to this connection as out-of-band
// "message"/"pmessage" replies for every channel/pattern sess currently
// subscribes to. Runs until ctx is canceled (connection closed or killed).
func pumpPubSub(ctx context.Context, sess *session.Session, sub *notify.Subscriber, out *connWriter) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			deliverPubSub(sess, ev, out)
		}
	}
}

func deliverPubSub(sess *session.Session, ev notify.Event, out *connWriter) {
	for _, ch := range sess.Channels() {
		if ch == ev.Key {
			_ = out.write(resp.Array(
				resp.BulkString("message"),
				resp.BulkString(ev.Key),
				resp.Bulk(ev.Payload),
			))
		}
	}
	for _, pat := range sess.Patterns() {
		if notify.Match(pat, ev.Key) {
			_ = out.write(resp.Array(
				resp.BulkString("pmessage"),
				resp.BulkString(pat),
				resp.BulkString(ev.Key),
				resp.Bulk(ev.Payload),
			))
		}
	}
}
