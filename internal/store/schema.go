package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS profiles (
    profile_id           TEXT PRIMARY KEY,
    name                 TEXT NOT NULL,
    source_path          TEXT,
    format               TEXT NOT NULL,
    frame_count          INTEGER NOT NULL DEFAULT 0,
    imported_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS frames (
    profile_id           TEXT NOT NULL REFERENCES profiles(profile_id) ON DELETE CASCADE,
    id                   INTEGER NOT NULL,
    parent_id            INTEGER,
    name                 TEXT NOT NULL,
    mapping              TEXT,
    source_file          TEXT,
    line                 INTEGER,
    self_samples         REAL NOT NULL DEFAULT 0,
    self_time            REAL NOT NULL DEFAULT 0,
    self_bytes           REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (profile_id, id)
);

CREATE TABLE IF NOT EXISTS file_tracker (
    file_path            TEXT PRIMARY KEY,
    profile_id           TEXT NOT NULL,
    mtime_ns             INTEGER NOT NULL,
    size_bytes           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_source ON profiles(source_path);
`
