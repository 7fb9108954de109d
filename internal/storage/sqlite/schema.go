package sqlite

// schema defines the database tables.
//
// Evidence bundles and solutions are stored as JSON text columns on the
// tracking row. They are written whole on every update (a re-gather replaces
// the previous bundle, it never patches it) so there is no need to normalize
// them into child tables.
const schema = `
CREATE TABLE IF NOT EXISTS issues (
    id             TEXT PRIMARY KEY,
    title          TEXT NOT NULL CHECK(length(title) <= 500),
    description    TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'created',
    source         TEXT NOT NULL DEFAULT 'api',
    correlation_id TEXT NOT NULL DEFAULT '',
    metadata       TEXT NOT NULL DEFAULT '{}',
    created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tracking_records (
    id              TEXT PRIMARY KEY,
    issue_id        TEXT NOT NULL UNIQUE REFERENCES issues(id) ON DELETE CASCADE,
    status          TEXT NOT NULL DEFAULT 'created',
    worker_id       TEXT NOT NULL DEFAULT '',
    cause_context   TEXT,
    history_context TEXT,
    solution        TEXT,
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    issue_id   TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_issues_created ON issues(created_at);
CREATE INDEX IF NOT EXISTS idx_tracking_issue ON tracking_records(issue_id);
CREATE INDEX IF NOT EXISTS idx_messages_issue ON messages(issue_id, seq);
`
