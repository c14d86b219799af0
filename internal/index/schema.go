package index

// schema is the FTS5 side-database applied once at PRAGMA user_version
// = 0. Declared without content=/content_rowid=: this package owns
// batched, queue-driven writes into fts_natural/fts_code itself rather
// than relying on insert/delete triggers on the Store's messages table,
// which would race the single writer. Keeping the index in its own
// database file lets it work the same way regardless of which Storage
// backend is active.
const schema = `
-- Natural-language index: porter-stemmed, case-folded; no stop-word
-- list is applied.
CREATE VIRTUAL TABLE IF NOT EXISTS fts_natural USING fts5(
    message_id UNINDEXED,
    conversation_id UNINDEXED,
    content,
    tokenize = 'porter unicode61'
);

-- Code index: preserves _ . / - inside tokens, no stemming. camelCase
-- identifiers are not split; each indexes as one case-folded token.
CREATE VIRTUAL TABLE IF NOT EXISTS fts_code USING fts5(
    message_id UNINDEXED,
    conversation_id UNINDEXED,
    content,
    tokenize = 'unicode61 tokenchars ''_.-/'''
);

-- Tracks the high-water rowid the Index has drained from the Store, so
-- a crash mid-batch resumes without re-scanning already-indexed
-- messages.
CREATE TABLE IF NOT EXISTS index_cursor (
    id            INTEGER PRIMARY KEY CHECK (id = 1),
    last_row_id   INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO index_cursor (id, last_row_id) VALUES (1, 0);

PRAGMA user_version = 1;
`

const schemaVersion = 1
