// Command redlite-reap is a one-shot maintenance tool: open a database file
// and sweep every already-expired key without starting a RESP listener.
// Adapted from the teacher's cmd/bulk-delete, which iterated a channel-ID
// range deleting one resource per id; here the "range" is "every expired row
// in the file" and deletion goes through keyspace.Reap in batches instead of
// one id at a time.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/redlite/redlite/internal/keyspace"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

func main() {
	dbPath := flag.String("db", "", "path to the SQLite database file")
	batchSize := flag.Int("batch-size", 200, "rows deleted per transaction")
	flag.Parse()

	if *dbPath == "" {
		fmt.Println("Usage: ./redlite-reap -db=<path> [-batch-size=200]")
		os.Exit(1)
	}

	log := buildLogger()
	log = log.Named("reap")

	ctx := context.Background()
	eng, err := storage.Open(ctx, storage.Options{Path: *dbPath, Backend: storage.BackendFile}, log)
	if err != nil {
		log.Fatal("storage open failed", zap.Error(err))
	}
	defer eng.Close()

	bus := notify.NewBus(0)
	ks := keyspace.New(eng, bus, log)

	total := 0
	for {
		iterStart := time.Now()
		n, err := ks.Reap(ctx, *batchSize)
		if err != nil {
			log.Fatal("sweep failed", zap.Error(err))
		}
		total += n
		if n > 0 {
			log.Info("swept batch",
				zap.Int("deleted", n),
				zap.Int("total", total),
				zap.Duration("took", time.Since(iterStart)),
			)
		}
		if n < *batchSize {
			break
		}
	}

	log.Info("done", zap.Int("total_deleted", total))
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
