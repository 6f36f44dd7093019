// Package oracle is the integration test harness (O in SPEC_FULL.md §2):
// go-redis/v9 used as a client driving Redlite's own RESP listener, the way
// the teacher's redis.Client wraps go-redis for its own service's use —
// here go-redis is the test double standing in for "a real Redis client
// talking to the real wire protocol" rather than a mocked dependency.
package oracle

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/redlite/redlite/internal/dispatch"
	"github.com/redlite/redlite/internal/keyspace"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/registry"
	"github.com/redlite/redlite/internal/server"
	"github.com/redlite/redlite/internal/storage"
)

// Harness runs a full Redlite stack (in-memory storage, real RESP listener)
// bound to an ephemeral loopback port, and exposes a ready-to-use go-redis
// client pointed at it.
type Harness struct {
	Client   *redis.Client
	Registry *registry.Registry
	Bus      *notify.Bus
	KS       *keyspace.Keyspace

	cancel context.CancelFunc
	eng    *storage.Engine
	done   chan struct{}
}

// New starts the harness and registers its teardown with t.Cleanup.
func New(t testing.TB, password string) *Harness {
	t.Helper()
	log := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))

	eng, err := storage.Open(context.Background(), storage.Options{Backend: storage.BackendMemory}, log)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}

	bus := notify.NewBus(0)
	reg := registry.New()
	ks := keyspace.New(eng, bus, log)
	disp := dispatch.New(ks, bus, reg, password, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	srv := &server.Server{Addr: addr, Dispatch: disp, Bus: bus, Registry: reg, Log: log}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()

	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	waitForReady(t, client)

	h := &Harness{Client: client, Registry: reg, Bus: bus, KS: ks, cancel: cancel, eng: eng, done: done}
	t.Cleanup(h.Close)
	return h
}

// waitForReady retries PING until the listener is accepting connections or
// the deadline passes: Run's goroutine takes an unbounded-but-short time to
// reach net.Listen after being scheduled.
func waitForReady(t testing.TB, client *redis.Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never became ready: %v", lastErr)
}

// Close stops the client and the in-process server.
func (h *Harness) Close() {
	_ = h.Client.Close()
	h.cancel()
	<-h.done
	_ = h.eng.Close()
}
