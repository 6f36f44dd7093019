package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/keyspace"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

func TestReaperSweepsExpiredKeys(t *testing.T) {
	eng, err := storage.Open(context.Background(), storage.Options{Backend: storage.BackendMemory}, zap.NewNop())
	require.NoError(t, err)
	defer eng.Close()

	bus := notify.NewBus(0)
	ks := keyspace.New(eng, bus, zap.NewNop())

	sub := bus.Subscribe(notify.Filter{Kinds: map[notify.Kind]struct{}{notify.KindExpired: {}}})
	defer bus.Unsubscribe(sub)

	ctx := context.Background()
	pastMillis := time.Now().Add(-time.Second).UnixMilli()
	_, _, err = ks.Set(ctx, 0, "stale", []byte("v"), keyspace.SetOptions{ExpireAtMillis: &pastMillis})
	require.NoError(t, err)

	r := New(ks, Config{Interval: 5 * time.Millisecond, BatchSize: 10}, zap.NewNop())
	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	go r.Run(runCtx)

	select {
	case ev := <-sub.Events():
		require.Equal(t, "stale", ev.Key)
		require.Equal(t, notify.KindExpired, ev.Kind)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("reaper never emitted an expired notification")
	}

	n, err := ks.DBSize(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
