package dst_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/dst"
	"github.com/redlite/redlite/internal/keyspace"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

func openMemoryKeyspace(t *testing.T) *keyspace.Keyspace {
	t.Helper()
	eng, err := storage.Open(context.Background(), storage.Options{Backend: storage.BackendMemory}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return keyspace.New(eng, notify.NewBus(0), zap.NewNop())
}

func TestScenarioDeterministic(t *testing.T) {
	ks1 := openMemoryKeyspace(t)
	ks2 := openMemoryKeyspace(t)

	sc := dst.Scenario{
		Seed:      42,
		Ops:       dst.StandardOps,
		MaxOps:    500,
		DB:        0,
		Invariant: dst.DBSizeNonNegative,
	}

	res1 := dst.Run(context.Background(), ks1, sc)
	res2 := dst.Run(context.Background(), ks2, sc)

	require.NoError(t, res1.Err)
	require.NoError(t, res2.Err)
	require.Equal(t, res1.OpsExecuted, res2.OpsExecuted)
}

func TestScenarioManyKeysNoWrongTypePanic(t *testing.T) {
	ks := openMemoryKeyspace(t)
	sc := dst.Scenario{
		Seed:      7,
		Ops:       dst.StandardOps,
		MaxOps:    2000,
		DB:        1,
		Invariant: dst.DBSizeNonNegative,
	}
	res := dst.Run(context.Background(), ks, sc)
	require.NoError(t, res.Err)
	require.Equal(t, sc.MaxOps, res.OpsExecuted)
}
