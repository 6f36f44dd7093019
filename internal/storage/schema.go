package storage

// CurrentSchemaVersion is stored in redlite_meta under key "schema_version".
// Bumping this and adding a branch to migrateStep() is how schema changes ship.
const CurrentSchemaVersion = 1

// schemaDDL creates the canonical table set from spec.md §3. Every table but
// redlite_meta is namespaced implicitly through keys.db; child tables never
// carry db directly, they join through key_id.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS redlite_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS keys (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	db         INTEGER NOT NULL,
	key        BLOB    NOT NULL,
	type       INTEGER NOT NULL,
	expire_at  INTEGER,
	version    INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(db, key)
);
CREATE INDEX IF NOT EXISTS idx_keys_expire_at ON keys(expire_at) WHERE expire_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS strings (
	key_id INTEGER PRIMARY KEY REFERENCES keys(id) ON DELETE CASCADE,
	value  BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS hashes (
	key_id INTEGER NOT NULL REFERENCES keys(id) ON DELETE CASCADE,
	field  BLOB NOT NULL,
	value  BLOB NOT NULL,
	PRIMARY KEY (key_id, field)
);

CREATE TABLE IF NOT EXISTS lists (
	key_id INTEGER NOT NULL REFERENCES keys(id) ON DELETE CASCADE,
	pos    INTEGER NOT NULL,
	value  BLOB NOT NULL,
	PRIMARY KEY (key_id, pos)
);

CREATE TABLE IF NOT EXISTS sets (
	key_id INTEGER NOT NULL REFERENCES keys(id) ON DELETE CASCADE,
	member BLOB NOT NULL,
	PRIMARY KEY (key_id, member)
);

CREATE TABLE IF NOT EXISTS zsets (
	key_id INTEGER NOT NULL REFERENCES keys(id) ON DELETE CASCADE,
	member  BLOB NOT NULL,
	score   REAL NOT NULL,
	PRIMARY KEY (key_id, member)
);
CREATE INDEX IF NOT EXISTS idx_zsets_score ON zsets(key_id, score, member);

CREATE TABLE IF NOT EXISTS streams (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	key_id     INTEGER NOT NULL REFERENCES keys(id) ON DELETE CASCADE,
	entry_ms   INTEGER NOT NULL,
	entry_seq  INTEGER NOT NULL,
	data       BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(key_id, entry_ms, entry_seq)
);

CREATE TABLE IF NOT EXISTS stream_groups (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	key_id   INTEGER NOT NULL REFERENCES keys(id) ON DELETE CASCADE,
	name     TEXT NOT NULL,
	last_ms  INTEGER NOT NULL,
	last_seq INTEGER NOT NULL,
	UNIQUE(key_id, name)
);

CREATE TABLE IF NOT EXISTS stream_pending (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	key_id         INTEGER NOT NULL REFERENCES keys(id) ON DELETE CASCADE,
	group_id       INTEGER NOT NULL REFERENCES stream_groups(id) ON DELETE CASCADE,
	entry_id       INTEGER NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
	consumer       TEXT NOT NULL,
	delivered_at   INTEGER NOT NULL,
	delivery_count INTEGER NOT NULL DEFAULT 1,
	UNIQUE(group_id, entry_id)
);

CREATE TABLE IF NOT EXISTS stream_consumers (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id  INTEGER NOT NULL REFERENCES stream_groups(id) ON DELETE CASCADE,
	name      TEXT NOT NULL,
	seen_time INTEGER NOT NULL,
	UNIQUE(group_id, name)
);
`
