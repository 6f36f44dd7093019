// Package config assembles Redlite's runtime configuration from flags,
// environment variables, and an optional JSON config file, in that order of
// precedence (flags win). Grounded on the teacher's cmd/bulk-delete flag
// parsing and internal/env table-of-settings idiom, generalized from "a
// handful of CLI flags" to a layered loader with a config-file escape hatch.
package config

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redlite/redlite/internal/netutil"
	"github.com/redlite/redlite/internal/storage"
	"github.com/redlite/redlite/pkg/jsonx"
	"github.com/redlite/redlite/pkg/optfield"
)

// Config is the fully-resolved server configuration.
type Config struct {
	DBPath         string
	Backend        storage.Backend
	Addr           string
	Password       string
	CacheMB        int
	BusyTimeout    time.Duration
	AdminAddr      string
	DebugDumpErrors bool
	ReapInterval   time.Duration
	ReapBatchSize  int
}

// fileConfig mirrors Config's optional fields for JSON merging. Every field
// is an optfield.Field, which tells "absent", "null" and "set" apart;
// applyConfigFile applies only set values, so a null field leaves the setting
// as flags, env and defaults made it, the same as an absent one.
type fileConfig struct {
	DBPath        optfield.Field[string] `json:"db"`
	Backend       optfield.Field[string] `json:"storage"`
	Addr          optfield.Field[string] `json:"addr"`
	Password      optfield.Field[string] `json:"password"`
	CacheMB       optfield.Field[int]    `json:"cache_mb"`
	BusyTimeoutMS optfield.Field[int]    `json:"busy_timeout_ms"`
	AdminAddr     optfield.Field[string] `json:"admin_addr"`
	ReapIntervalMS optfield.Field[int]   `json:"reap_interval_ms"`
	ReapBatchSize optfield.Field[int]    `json:"reap_batch_size"`
}

// ExitMisconfiguration is the exit code for a Load failure per spec.md §6.
// Listen and storage-open failures are detected later by their own callers
// and use exit codes 2 and 3 respectively.
const ExitMisconfiguration = 1

// Load parses args against flag.CommandLine-equivalent flags, then layers
// environment variables and then an optional --config file over every
// setting whose flag was not given explicitly, so explicit flags always win.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("redlite-server", flag.ContinueOnError)

	dbPath := fs.String("db", "redlite.db", "path to the SQLite database file")
	backend := fs.String("storage", "file", "storage backend: file|memory")
	addr := fs.String("addr", "127.0.0.1:6379", "RESP listen address")
	password := fs.String("password", "", "require AUTH with this password")
	passwordFile := fs.String("password-file", "", "read the AUTH password from this file")
	cacheMB := fs.Int("cache", 0, "SQLite page cache size in MB (0 = engine default)")
	busyTimeoutMS := fs.Int("busy-timeout-ms", 5000, "SQLite busy timeout in milliseconds")
	adminAddr := fs.String("admin-addr", "127.0.0.1:6380", "admin/observability HTTP sidecar address")
	debugDumpErrors := fs.Bool("debug-dump-errors", false, "dump verbose error chains for storage errors to stderr")
	reapIntervalMS := fs.Int("reap-interval-ms", 100, "active expiration reaper cadence in milliseconds")
	reapBatchSize := fs.Int("reap-batch-size", 200, "max keys the reaper deletes per sweep")
	configPath := fs.String("config", "", "optional JSON config file merged under flags/env")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:          *dbPath,
		Backend:         storage.Backend(*backend),
		Addr:            *addr,
		Password:        *password,
		CacheMB:         *cacheMB,
		BusyTimeout:     time.Duration(*busyTimeoutMS) * time.Millisecond,
		AdminAddr:       *adminAddr,
		DebugDumpErrors: *debugDumpErrors,
		ReapInterval:    time.Duration(*reapIntervalMS) * time.Millisecond,
		ReapBatchSize:   *reapBatchSize,
	}

	applyEnv(&cfg, fs)

	if *passwordFile != "" {
		b, err := os.ReadFile(*passwordFile)
		if err != nil {
			return Config{}, fmt.Errorf("reading --password-file: %w", err)
		}
		cfg.Password = strings.TrimSpace(string(b))
	}

	if *configPath != "" {
		if err := applyConfigFile(&cfg, *configPath, fs); err != nil {
			return Config{}, err
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays REDIS_URL-style and direct environment overrides on top
// of the values already in cfg, skipping settings whose flag was explicit.
func applyEnv(cfg *Config, fs *flag.FlagSet) {
	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if v := os.Getenv("REDLITE_ADDR"); v != "" && !explicit["addr"] {
		cfg.Addr = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" && !explicit["addr"] {
		if host, ok := strings.CutPrefix(v, "redis://"); ok {
			cfg.Addr = host
		}
	}
	if v := os.Getenv("REDLITE_PASSWORD"); v != "" && !explicit["password"] && !explicit["password-file"] {
		cfg.Password = v
	}
	if v := os.Getenv("REDLITE_DB"); v != "" && !explicit["db"] {
		cfg.DBPath = v
	}
}

// applyConfigFile merges an optional JSON config file. A field the user
// never set on the command line is eligible for override by the file;
// fs.Visit tells us which flags were explicit.
func applyConfigFile(cfg *Config, path string, fs *flag.FlagSet) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading --config: %w", err)
	}
	var fc fileConfig
	if err := jsonx.ParseJSONObject(bytes.NewReader(b), &fc); err != nil {
		return fmt.Errorf("parsing --config: %w", err)
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if v, ok := fc.DBPath.Value(); ok && !explicit["db"] {
		cfg.DBPath = v
	}
	if v, ok := fc.Backend.Value(); ok && !explicit["storage"] {
		cfg.Backend = storage.Backend(v)
	}
	if v, ok := fc.Addr.Value(); ok && !explicit["addr"] {
		cfg.Addr = v
	}
	if v, ok := fc.Password.Value(); ok && !explicit["password"] && !explicit["password-file"] {
		cfg.Password = v
	}
	if v, ok := fc.CacheMB.Value(); ok && !explicit["cache"] {
		cfg.CacheMB = v
	}
	if v, ok := fc.BusyTimeoutMS.Value(); ok && !explicit["busy-timeout-ms"] {
		cfg.BusyTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := fc.AdminAddr.Value(); ok && !explicit["admin-addr"] {
		cfg.AdminAddr = v
	}
	if v, ok := fc.ReapIntervalMS.Value(); ok && !explicit["reap-interval-ms"] {
		cfg.ReapInterval = time.Duration(v) * time.Millisecond
	}
	if v, ok := fc.ReapBatchSize.Value(); ok && !explicit["reap-batch-size"] {
		cfg.ReapBatchSize = v
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.Backend != storage.BackendFile && cfg.Backend != storage.BackendMemory {
		return fmt.Errorf("--storage must be file or memory, got %q", cfg.Backend)
	}
	if cfg.Backend == storage.BackendFile && cfg.DBPath == "" {
		return fmt.Errorf("--db is required for --storage=file")
	}
	if host, _, err := netutil.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("--addr: %w", err)
	} else if host == "" {
		return fmt.Errorf("--addr: empty host")
	}
	if cfg.AdminAddr != "" {
		if _, _, err := netutil.SplitHostPort(cfg.AdminAddr); err != nil {
			return fmt.Errorf("--admin-addr: %w", err)
		}
	}
	if cfg.ReapBatchSize <= 0 {
		return fmt.Errorf("--reap-batch-size must be positive")
	}
	return nil
}
