package oracle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redlite/redlite/internal/oracle"
)

func TestStringRoundTrip(t *testing.T) {
	h := oracle.New(t, "")
	ctx := context.Background()

	require.NoError(t, h.Client.Set(ctx, "greeting", "hello", 0).Err())
	val, err := h.Client.Get(ctx, "greeting").Result()
	require.NoError(t, err)
	require.Equal(t, "hello", val)

	require.NoError(t, h.Client.Del(ctx, "greeting").Err())
	_, err = h.Client.Get(ctx, "greeting").Result()
	require.Error(t, err) // redis.Nil
}

func TestExpirePassiveAndLazy(t *testing.T) {
	h := oracle.New(t, "")
	ctx := context.Background()

	require.NoError(t, h.Client.Set(ctx, "ephemeral", "v", 20*time.Millisecond).Err())
	time.Sleep(60 * time.Millisecond)

	_, err := h.Client.Get(ctx, "ephemeral").Result()
	require.Error(t, err)

	n, err := h.Client.Exists(ctx, "ephemeral").Result()
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestAuthRequired(t *testing.T) {
	h := oracle.New(t, "s3cret")
	ctx := context.Background()

	_, err := h.Client.Get(ctx, "anything").Result()
	require.Error(t, err)
	require.Contains(t, err.Error(), "NOAUTH")

	require.NoError(t, h.Client.Do(ctx, "AUTH", "s3cret").Err())
	require.NoError(t, h.Client.Set(ctx, "k", "v", 0).Err())
}

func TestPublishSubscribe(t *testing.T) {
	h := oracle.New(t, "")
	ctx := context.Background()

	sub := h.Client.Subscribe(ctx, "news")
	defer sub.Close()
	_, err := sub.Receive(ctx) // consume the subscribe confirmation
	require.NoError(t, err)

	n, err := h.Client.Publish(ctx, "news", "hello world").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	msgCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(msgCtx)
	require.NoError(t, err)
	require.Equal(t, "news", msg.Channel)
	require.Equal(t, "hello world", msg.Payload)
}

func TestMultiExecWatchAbort(t *testing.T) {
	h := oracle.New(t, "")
	ctx := context.Background()

	require.NoError(t, h.Client.Set(ctx, "counter", "1", 0).Err())

	tx := h.Client.TxPipeline()
	// go-redis's TxPipeline issues MULTI/EXEC itself; to force a WATCH abort
	// we drive raw MULTI/WATCH/EXEC instead via Do.
	_ = tx

	require.NoError(t, h.Client.Do(ctx, "WATCH", "counter").Err())

	// A concurrent client changes the watched key between WATCH and EXEC.
	other := h.Client.Conn()
	defer other.Close()
	require.NoError(t, other.Set(ctx, "counter", "2", 0).Err())

	require.NoError(t, h.Client.Do(ctx, "MULTI").Err())
	require.NoError(t, h.Client.Do(ctx, "GET", "counter").Err())
	res, err := h.Client.Do(ctx, "EXEC").Result()
	require.NoError(t, err)
	require.Nil(t, res) // aborted: watched key changed
}

func TestIncrRejectsNonCanonicalInteger(t *testing.T) {
	h := oracle.New(t, "")
	ctx := context.Background()

	require.NoError(t, h.Client.Set(ctx, "padded", "007", 0).Err())
	_, err := h.Client.Incr(ctx, "padded").Result()
	require.Error(t, err)
	require.Contains(t, err.Error(), "not an integer")

	require.NoError(t, h.Client.Set(ctx, "canonical", "7", 0).Err())
	n, err := h.Client.Incr(ctx, "canonical").Result()
	require.NoError(t, err)
	require.EqualValues(t, 8, n)
}

func TestZAddRejectsNaNScore(t *testing.T) {
	h := oracle.New(t, "")
	ctx := context.Background()

	err := h.Client.Do(ctx, "ZADD", "z", "nan", "member").Err()
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a valid float")
}

func TestExecAbortsOnMalformedQueuedCommand(t *testing.T) {
	h := oracle.New(t, "")
	ctx := context.Background()

	require.NoError(t, h.Client.Do(ctx, "MULTI").Err())
	require.NoError(t, h.Client.Do(ctx, "SET", "k", "v").Err())

	// GET takes exactly one argument; queuing it with an extra arg must
	// reply with an immediate error and mark the transaction dirty.
	err := h.Client.Do(ctx, "GET", "k", "extra").Err()
	require.Error(t, err)
	require.Contains(t, err.Error(), "wrong number of arguments")

	_, err = h.Client.Do(ctx, "EXEC").Result()
	require.Error(t, err)
	require.Contains(t, err.Error(), "EXECABORT")

	// The queue was discarded, so the earlier SET never ran.
	n, err := h.Client.Exists(ctx, "k").Result()
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestBlockingPopWakesOnPush(t *testing.T) {
	h := oracle.New(t, "")
	ctx := context.Background()

	done := make(chan []string, 1)
	go func() {
		res, err := h.Client.BLPop(ctx, 2*time.Second, "queue").Result()
		require.NoError(t, err)
		done <- res
	}()

	time.Sleep(30 * time.Millisecond) // let BLPOP start waiting first
	require.NoError(t, h.Client.LPush(ctx, "queue", "item").Err())

	select {
	case res := <-done:
		require.Equal(t, []string{"queue", "item"}, res)
	case <-time.After(2 * time.Second):
		t.Fatal("BLPOP never woke up")
	}
}
