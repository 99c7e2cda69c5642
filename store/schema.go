package store

// schemaSQL is the base schema. Later changes go through migrations.
const schemaSQL = `
-- Finished conversions keyed by input content, target and extraction spec
CREATE TABLE IF NOT EXISTS conversions (
    id INTEGER PRIMARY KEY,
    content_hash TEXT NOT NULL,
    target TEXT NOT NULL,
    strategy TEXT NOT NULL,
    spec_hash TEXT NOT NULL DEFAULT '',
    markdown TEXT,
    json JSON,
    unit_errors JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(content_hash, target, spec_hash)
);

CREATE INDEX IF NOT EXISTS idx_conversions_created ON conversions(created_at);
`
