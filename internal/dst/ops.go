package dst

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/keyspace"
)

// KeySpaceSize bounds RandomKey's key space for the stock ops below: small
// enough that ops collide on the same keys often, which is what exercises
// concurrent/overlapping access instead of an always-miss workload.
const KeySpaceSize = 16

// StandardOps is a representative mix of string/list/set/expiry ops, each
// listed once and so drawn with equal probability; the small key space makes
// them interact (SET then EXPIRE then GET on the same key).
var StandardOps = []Op{
	OpSet,
	OpDel,
	OpPush,
	OpSAdd,
	OpExpire,
	OpGetIgnoreWrongType,
}

func OpSet(ctx context.Context, rng *rand.Rand, ks *keyspace.Keyspace, db int) error {
	key := RandomKey(rng, KeySpaceSize)
	_, _, err := ks.Set(ctx, db, key, RandomValue(rng), keyspace.SetOptions{})
	return ignoreWrongType(err)
}

func OpDel(ctx context.Context, rng *rand.Rand, ks *keyspace.Keyspace, db int) error {
	key := RandomKey(rng, KeySpaceSize)
	_, err := ks.Del(ctx, db, []string{key})
	return err
}

func OpPush(ctx context.Context, rng *rand.Rand, ks *keyspace.Keyspace, db int) error {
	key := RandomKey(rng, KeySpaceSize)
	_, err := ks.Push(ctx, db, key, [][]byte{RandomValue(rng)}, rng.Intn(2) == 0, false)
	return ignoreWrongType(err)
}

func OpSAdd(ctx context.Context, rng *rand.Rand, ks *keyspace.Keyspace, db int) error {
	key := RandomKey(rng, KeySpaceSize)
	_, err := ks.SAdd(ctx, db, key, [][]byte{RandomValue(rng)})
	return ignoreWrongType(err)
}

func OpExpire(ctx context.Context, rng *rand.Rand, ks *keyspace.Keyspace, db int) error {
	key := RandomKey(rng, KeySpaceSize)
	atMillis := time.Now().Add(time.Duration(rng.Intn(5)) * time.Millisecond).UnixMilli()
	_, err := ks.Expire(ctx, db, key, atMillis, keyspace.ExpireAlways)
	return err
}

func OpGetIgnoreWrongType(ctx context.Context, rng *rand.Rand, ks *keyspace.Keyspace, db int) error {
	key := RandomKey(rng, KeySpaceSize)
	_, _, err := ks.Get(ctx, db, key)
	return ignoreWrongType(err)
}

// ignoreWrongType lets a scenario mix type-incompatible ops on the same
// small key space without aborting the run: a WRONGTYPE race between two
// different-typed ops on one key is expected, not a bug.
func ignoreWrongType(err error) error {
	if ae, ok := err.(*apperr.Error); ok && ae.Kind == apperr.KindWrongType {
		return nil
	}
	return err
}

// DBSizeNonNegative is a trivial sanity invariant: DBSize never errors and
// is never negative. Scenarios compose richer invariants on top of this.
func DBSizeNonNegative(ctx context.Context, ks *keyspace.Keyspace, db int) error {
	n, err := ks.DBSize(ctx, db)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("dbsize is negative: %d", n)
	}
	return nil
}
