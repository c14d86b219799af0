// Package rdbms is the shared MySQL-dialect implementation of
// storage.Storage behind the dolt and mysql backends:
// Dolt's embedded and server connection modes and a plain MySQL server
// both speak the same wire dialect over database/sql, so the table
// definitions, upsert statements and query builder live here once and
// the two backend packages (internal/storage/dolt,
// internal/storage/mysql) only resolve a *sql.DB and register it.
//
// Mirrors internal/storage/sqlite in structure; diverges from it
// wherever the MySQL dialect requires it (no PRAGMA user_version, no
// implicit rowid, ON DUPLICATE KEY UPDATE instead of ON CONFLICT).
package rdbms

// schema is applied once against a fresh database. Messages get an
// explicit surrogate key (row_id) since MySQL/Dolt have no implicit
// rowid equivalent to SQLite's, and the Index's batch drain
// (MessagesByRowIDRange) needs a monotonically increasing key to page
// through.
const schema = `
CREATE TABLE IF NOT EXISTS schema_meta (
    id      INT PRIMARY KEY,
    version INT NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
    id          VARCHAR(191) PRIMARY KEY,
    adapter     VARCHAR(191) NOT NULL,
    path        TEXT NOT NULL,
    workspace   VARCHAR(191) NOT NULL DEFAULT '',
    enabled     TINYINT NOT NULL DEFAULT 1,
    last_sync   BIGINT NOT NULL DEFAULT 0,
    cursor      VARBINARY(4096),
    remote_name VARCHAR(191) NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS remotes (
    name           VARCHAR(191) PRIMARY KEY,
    connection_str TEXT NOT NULL,
    last_fetch     BIGINT NOT NULL DEFAULT 0,
    snapshot_path  VARCHAR(1024) NOT NULL DEFAULT '',
    enabled        TINYINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS conversations (
    id           VARCHAR(191) PRIMARY KEY,
    external_id  VARCHAR(191) NULL,
    source_id    VARCHAR(191) NOT NULL,
    workspace    VARCHAR(191) NOT NULL DEFAULT '',
    title        VARCHAR(1024) NOT NULL DEFAULT '',
    created_at   BIGINT NOT NULL,
    updated_at   BIGINT NOT NULL,
    content_hash VARCHAR(64) NOT NULL,
    metadata     TEXT,
    canonical_id VARCHAR(191) NULL,
    UNIQUE KEY uq_conversations_source_external (source_id, external_id)
);

CREATE INDEX idx_conversations_content_hash ON conversations(content_hash);
CREATE INDEX idx_conversations_workspace ON conversations(workspace);
CREATE INDEX idx_conversations_source ON conversations(source_id);
CREATE INDEX idx_conversations_updated ON conversations(updated_at);

CREATE TABLE IF NOT EXISTS messages (
    row_id          BIGINT AUTO_INCREMENT PRIMARY KEY,
    conversation_id VARCHAR(191) NOT NULL,
    seq             INT NOT NULL,
    role            VARCHAR(16) NOT NULL,
    content         LONGTEXT,
    parts           LONGTEXT,
    created_at      BIGINT NOT NULL DEFAULT 0,
    model           VARCHAR(191) NOT NULL DEFAULT '',
    metadata        TEXT,
    UNIQUE KEY uq_messages_conversation_seq (conversation_id, seq)
);

CREATE INDEX idx_messages_conversation ON messages(conversation_id);
CREATE INDEX idx_messages_role ON messages(role);
`

const schemaVersion = 1

// Some dialects (Dolt in particular) choke on a bare CREATE INDEX that
// races table creation inside the same multi-statement Exec; statements
// are applied one at a time by migrate() using this split rather than
// relying on a driver that supports multi-statement strings.
func schemaStatements() []string {
	return splitStatements(schema)
}

func splitStatements(s string) []string {
	var out []string
	var cur []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		cur = append(cur, c)
		if c == ';' {
			stmt := trimSpace(string(cur))
			if stmt != "" {
				out = append(out, stmt)
			}
			cur = cur[:0]
		}
	}
	if stmt := trimSpace(string(cur)); stmt != "" {
		out = append(out, stmt)
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == ';'
}
