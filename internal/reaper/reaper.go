// Package reaper runs the active half of the expiration reaper (X in
// spec.md §4.2): a background task that deletes expired keys at a bounded
// cadence, independent of the lazy per-access check in internal/keyspace.
// Grounded on the teacher's internal/infrastructure/processmgr goroutine-
// per-loop supervision style — a context-cancellable select loop — retargeted
// from "supervise one OS process" to "supervise one DB-wide sweep."
package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/keyspace"
)

// Config controls the sweep cadence and batch size.
type Config struct {
	Interval  time.Duration // default 100ms, per spec.md §4.2
	BatchSize int           // default 200, per spec.md §4.2
}

func DefaultConfig() Config {
	return Config{Interval: 100 * time.Millisecond, BatchSize: 200}
}

// Reaper owns the background sweep loop.
type Reaper struct {
	ks  *keyspace.Keyspace
	cfg Config
	log *zap.Logger
}

func New(ks *keyspace.Keyspace, cfg Config, log *zap.Logger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Reaper{ks: ks, cfg: cfg, log: log.Named("reaper")}
}

// Run sweeps until ctx is canceled. Each tick deletes up to cfg.BatchSize
// expired rows; if the batch was full it retries immediately (the keyspace
// may be under a backlog), otherwise it sleeps for the remainder of the
// interval.
func (r *Reaper) Run(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		for {
			n, err := r.ks.Reap(ctx, r.cfg.BatchSize)
			if err != nil {
				r.log.Warn("sweep failed", zap.Error(err))
				break
			}
			if n > 0 {
				r.log.Debug("swept expired keys", zap.Int("count", n))
			}
			if n < r.cfg.BatchSize {
				break
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}

		timer.Reset(r.cfg.Interval)
	}
}
