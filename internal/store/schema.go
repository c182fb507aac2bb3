package store

import "database/sql"

// ddl creates the catalog, FTS, and embedding tables. The ANN's
// in-memory copy-on-publish snapshot (see ann.go) is rebuilt from the
// embedding table's BLOB column on startup, or loaded from its own
// ann.bin cache when that cache agrees with the catalog.
const ddl = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS file (
    path     TEXT PRIMARY KEY,
    size     INTEGER NOT NULL,
    mtime_ns INTEGER NOT NULL,
    hash     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS object (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    path           TEXT NOT NULL REFERENCES file(path) ON DELETE CASCADE,
    name           TEXT NOT NULL DEFAULT '',
    language       TEXT NOT NULL DEFAULT '',
    kind           TEXT NOT NULL DEFAULT '',
    byte_start     INTEGER NOT NULL,
    byte_end       INTEGER NOT NULL,
    start_line     INTEGER NOT NULL,
    start_col      INTEGER NOT NULL,
    end_line       INTEGER NOT NULL,
    end_col        INTEGER NOT NULL,
    context_before TEXT NOT NULL DEFAULT '',
    context_after  TEXT NOT NULL DEFAULT '',
    content_hash   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS object_path_idx ON object(path);
CREATE INDEX IF NOT EXISTS object_content_hash_idx ON object(content_hash);

CREATE VIRTUAL TABLE IF NOT EXISTS object_fts USING fts5(
    name, path, body,
    content='',
    contentless_delete=1,
    tokenize='trigram'
);

CREATE TABLE IF NOT EXISTS embedding (
    object_id    INTEGER PRIMARY KEY REFERENCES object(id) ON DELETE CASCADE,
    vector       BLOB NOT NULL,
    dim          INTEGER NOT NULL,
    content_hash TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS embedding_content_hash_idx ON embedding(content_hash);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS failure (
    path  TEXT PRIMARY KEY,
    count INTEGER NOT NULL DEFAULT 0,
    hash  TEXT NOT NULL DEFAULT ''
);
`

// Init creates the schema tables if they do not already exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(ddl)
	return err
}
