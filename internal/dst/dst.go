// Package dst is a small in-process scenario runner, carrying the idea (not
// the implementation) of original_source/redlite-dst: drive the server
// through a scripted sequence of operations from a seeded PRNG and assert
// invariants hold. Unlike the Rust original there is no separate binary, no
// MadSim deterministic-scheduler integration and no fault injection beyond
// what internal/blocking already tolerates (dropped/duplicate notifications)
// — per spec.md's Non-goals this stays a test helper, not a standalone
// simulation harness.
package dst

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/redlite/redlite/internal/keyspace"
)

// Op is one scripted action a scenario can take against a Keyspace.
type Op func(ctx context.Context, rng *rand.Rand, ks *keyspace.Keyspace, db int) error

// Scenario runs a fixed seed through a uniform random choice among Ops (an op
// listed more than once is drawn more often), checking an invariant after
// every op.
type Scenario struct {
	Seed      int64
	Ops       []Op
	MaxOps    int
	DB        int
	Invariant func(ctx context.Context, ks *keyspace.Keyspace, db int) error
}

// Result reports what happened, for the caller (a _test.go file) to assert
// on.
type Result struct {
	OpsExecuted int
	Err         error // first invariant violation or op error, if any
}

// Run executes the scenario deterministically: the same Seed, Ops and
// MaxOps always produce the same sequence of op indices since math/rand's
// *rand.Rand is a pure deterministic PRNG seeded once here.
func Run(ctx context.Context, ks *keyspace.Keyspace, sc Scenario) Result {
	rng := rand.New(rand.NewSource(sc.Seed))
	for i := 0; i < sc.MaxOps; i++ {
		op := sc.Ops[rng.Intn(len(sc.Ops))]
		if err := op(ctx, rng, ks, sc.DB); err != nil {
			return Result{OpsExecuted: i, Err: fmt.Errorf("op %d: %w", i, err)}
		}
		if sc.Invariant != nil {
			if err := sc.Invariant(ctx, ks, sc.DB); err != nil {
				return Result{OpsExecuted: i + 1, Err: fmt.Errorf("invariant after op %d: %w", i, err)}
			}
		}
	}
	return Result{OpsExecuted: sc.MaxOps}
}

// RandomKey picks one of a small fixed key space, the same way the Rust
// harness's SimContext.random_key biased toward collisions to exercise
// concurrent/overlapping access instead of always-fresh keys.
func RandomKey(rng *rand.Rand, space int) string {
	return fmt.Sprintf("key_%d", rng.Intn(space))
}

// RandomValue returns a short pseudo-random byte string.
func RandomValue(rng *rand.Rand) []byte {
	n := 1 + rng.Intn(32)
	b := make([]byte, n)
	rng.Read(b)
	return b
}
