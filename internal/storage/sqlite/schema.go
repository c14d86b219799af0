package sqlite

// schema is applied once at PRAGMA user_version = 0 (fresh database).
// Holds only the entities the Store owns; the FTS tables live in
// internal/index's own database file, since full-text search is derived
// state, rebuildable from the Store, and must work the same way
// regardless of which Storage backend (sqlite, dolt, mysql) is in use.
const schema = `
CREATE TABLE IF NOT EXISTS sources (
    id          TEXT PRIMARY KEY,
    adapter     TEXT NOT NULL,
    path        TEXT NOT NULL,
    workspace   TEXT NOT NULL DEFAULT '',
    enabled     INTEGER NOT NULL DEFAULT 1,
    last_sync   INTEGER NOT NULL DEFAULT 0,
    cursor      BLOB,
    remote_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS remotes (
    name           TEXT PRIMARY KEY,
    connection_str TEXT NOT NULL,
    last_fetch     INTEGER NOT NULL DEFAULT 0,
    snapshot_path  TEXT NOT NULL DEFAULT '',
    enabled        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS conversations (
    id           TEXT PRIMARY KEY,
    external_id  TEXT,
    source_id    TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    workspace    TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL,
    content_hash TEXT NOT NULL,
    metadata     TEXT NOT NULL DEFAULT '{}',
    canonical_id TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_source_external
    ON conversations(source_id, external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_conversations_content_hash ON conversations(content_hash);
CREATE INDEX IF NOT EXISTS idx_conversations_workspace ON conversations(workspace);
CREATE INDEX IF NOT EXISTS idx_conversations_source ON conversations(source_id);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);

CREATE TABLE IF NOT EXISTS messages (
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    seq             INTEGER NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL DEFAULT '',
    parts           TEXT NOT NULL DEFAULT '[]',
    created_at      INTEGER NOT NULL DEFAULT 0,
    model           TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (conversation_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_role ON messages(role);

PRAGMA user_version = 1;
`

const schemaVersion = 1
