package storage

// Schema contains the SQL statements to create the database schema.
const Schema = `
-- Tokens table: bearer credentials (secret stored as SHA-256 hash only)
CREATE TABLE IF NOT EXISTS tokens (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    class         TEXT NOT NULL,
    owner_user_id TEXT,
    token_hash    TEXT UNIQUE NOT NULL,
    permissions   TEXT NOT NULL,
    created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
    expires_at    DATETIME,
    max_usage     INTEGER DEFAULT 0,
    usage_count   INTEGER DEFAULT 0,
    active        BOOLEAN DEFAULT TRUE,
    last_used_at  DATETIME
);

-- Links table: short share codes and their redemption settings
CREATE TABLE IF NOT EXISTS links (
    id              TEXT PRIMARY KEY,
    code            TEXT UNIQUE NOT NULL,
    target_kind     TEXT NOT NULL,
    target_refs     TEXT NOT NULL,
    created_by      TEXT NOT NULL,
    title           TEXT,
    description     TEXT,
    max_downloads   INTEGER DEFAULT 0,
    downloads       INTEGER DEFAULT 0,
    expires_at      DATETIME,
    password_hash   TEXT,
    allowed_ips     TEXT,
    bandwidth_limit INTEGER DEFAULT 0,
    webhook_url     TEXT,
    active          BOOLEAN DEFAULT TRUE,
    created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Sessions table: one row per redemption attempt
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT PRIMARY KEY,
    link_code        TEXT NOT NULL,
    file_id          TEXT NOT NULL,
    client_ip        TEXT,
    user_agent       TEXT,
    method           TEXT NOT NULL,
    total_bytes      INTEGER DEFAULT 0,
    downloaded_bytes INTEGER DEFAULT 0,
    status           TEXT NOT NULL,
    error_detail     TEXT,
    started_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
    completed_at     DATETIME
);

-- Cache entries table: metadata for locally staged file copies
CREATE TABLE IF NOT EXISTS cache_entries (
    file_id        TEXT PRIMARY KEY,
    path           TEXT NOT NULL,
    size           INTEGER NOT NULL,
    access_count   INTEGER DEFAULT 0,
    last_access_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
    expires_at     DATETIME,
    valid          BOOLEAN DEFAULT TRUE
);

-- Catalog tables: maintained by the cataloging bot, read-only here
CREATE TABLE IF NOT EXISTS files (
    id          TEXT PRIMARY KEY,
    category_id TEXT,
    name        TEXT NOT NULL,
    size        INTEGER NOT NULL,
    mime_type   TEXT,
    storage_ref TEXT NOT NULL,
    created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS categories (
    id        TEXT PRIMARY KEY,
    parent_id TEXT,
    name      TEXT NOT NULL
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_tokens_hash ON tokens(token_hash);
CREATE INDEX IF NOT EXISTS idx_links_code ON links(code);
CREATE INDEX IF NOT EXISTS idx_sessions_link ON sessions(link_code);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_cache_last_access ON cache_entries(last_access_at);
CREATE INDEX IF NOT EXISTS idx_files_category ON files(category_id);
`
