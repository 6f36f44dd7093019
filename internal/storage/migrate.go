package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// migrate applies schemaDDL and brings redlite_meta's schema_version up to
// CurrentSchemaVersion. Re-opening an up-to-date file is a cheap no-op; the
// DDL is entirely CREATE ... IF NOT EXISTS so applying it twice is harmless.
func (e *Engine) migrate(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	version, err := e.readSchemaVersion(ctx)
	if err != nil {
		return err
	}

	for version < CurrentSchemaVersion {
		version, err = e.migrateStep(ctx, version)
		if err != nil {
			return fmt.Errorf("migrate step from v%d: %w", version, err)
		}
	}
	return nil
}

func (e *Engine) readSchemaVersion(ctx context.Context) (int, error) {
	var raw string
	err := e.db.QueryRowContext(ctx, `SELECT value FROM redlite_meta WHERE key = 'schema_version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		if err := e.writeSchemaVersion(ctx, 0); err != nil {
			return 0, err
		}
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("corrupt schema_version %q: %w", raw, err)
	}
	return v, nil
}

func (e *Engine) writeSchemaVersion(ctx context.Context, v int) error {
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO redlite_meta(key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, strconv.Itoa(v))
	return err
}

// migrateStep applies exactly one version bump. There is only one version
// today (the schema shipped in schema.go is v1), so this only ever runs from
// version 0: for a fresh file, whose schema_version readSchemaVersion has just
// stamped as 0, and for files created before schema_version tracking existed.
func (e *Engine) migrateStep(ctx context.Context, from int) (int, error) {
	switch from {
	case 0:
		// Fresh and pre-versioning files already have every table (schemaDDL
		// is idempotent and was just applied above); just stamp the version.
		if err := e.writeSchemaVersion(ctx, 1); err != nil {
			return from, err
		}
		return 1, nil
	default:
		return from, fmt.Errorf("unknown schema version %d", from)
	}
}
