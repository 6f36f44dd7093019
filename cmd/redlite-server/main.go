// Command redlite-server is the single launcher named in spec.md §6: it
// wires storage, the notification bus, the keyspace adapter, the connection
// registry, the command dispatcher, the RESP listener, the active
// expiration reaper, and the admin HTTP sidecar together, then runs them
// under one errgroup until a shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/redlite/redlite/internal/adminhttp"
	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/config"
	"github.com/redlite/redlite/internal/dispatch"
	"github.com/redlite/redlite/internal/keyspace"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/reaper"
	"github.com/redlite/redlite/internal/registry"
	"github.com/redlite/redlite/internal/server"
	"github.com/redlite/redlite/internal/storage"
)

// Exit codes per spec.md §6.
const (
	exitOK              = 0
	exitMisconfigured   = 1
	exitListenFailure   = 2
	exitStorageOpenFail = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log := buildLogger()
	defer log.Sync()

	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "redlite-server:", err)
		return exitMisconfigured
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := storage.Open(ctx, storage.Options{
		Path:        cfg.DBPath,
		Backend:     cfg.Backend,
		CacheMB:     cfg.CacheMB,
		BusyTimeout: cfg.BusyTimeout,
	}, log)
	if err != nil {
		if cfg.DebugDumpErrors {
			apperr.DumpChainDebug(os.Stderr, err)
		} else {
			apperr.DumpChain(os.Stderr, err)
		}
		return exitStorageOpenFail
	}
	defer eng.Close()

	bus := notify.NewBus(0)
	reg := registry.New()
	ks := keyspace.New(eng, bus, log)
	disp := dispatch.New(ks, bus, reg, cfg.Password, log)

	srv := &server.Server{
		Addr:     cfg.Addr,
		Dispatch: disp,
		Bus:      bus,
		Registry: reg,
		Log:      log,
	}

	reap := reaper.New(ks, reaper.Config{Interval: cfg.ReapInterval, BatchSize: cfg.ReapBatchSize}, log)

	admin := adminhttp.NewServer(cfg.AdminAddr, log, adminhttp.Stats{Registry: reg, Bus: bus, Engine: eng})

	g, gctx := errgroup.WithContext(ctx)
	listenErrCh := make(chan error, 1)
	g.Go(func() error {
		err := srv.Run(gctx)
		listenErrCh <- err
		return err
	})
	g.Go(func() error { return reap.Run(gctx) })
	g.Go(func() error { return admin.Run(gctx) })

	waitErr := g.Wait()

	select {
	case lerr := <-listenErrCh:
		if lerr != nil {
			fmt.Fprintln(os.Stderr, "redlite-server: listen failed:", lerr)
			return exitListenFailure
		}
	default:
	}

	if waitErr != nil {
		fmt.Fprintln(os.Stderr, "redlite-server:", waitErr)
		return exitListenFailure
	}
	return exitOK
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	log := zap.Must(logConfig.Build())
	return log.Named("redlite")
}
