package db

// Timestamps used for ordering and incremental sync are stored as unix
// milliseconds; published/received dates go through NullTime.
const schema = `
CREATE TABLE IF NOT EXISTS library_items (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    slug TEXT NOT NULL,
    original_url TEXT NOT NULL,
    canonical_url TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    site_name TEXT NOT NULL DEFAULT '',
    site_icon TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    word_count INTEGER NOT NULL DEFAULT 0,
    item_type TEXT NOT NULL DEFAULT 'WEBSITE',
    state TEXT NOT NULL DEFAULT 'PROCESSING',
    subscription TEXT NOT NULL DEFAULT '',
    archived BOOLEAN NOT NULL DEFAULT 0,
    read_at INTEGER,
    published_at DATETIME,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    deleted_at INTEGER
);

-- One row per (user, canonical url), deleted or not: a re-save restores the row.
CREATE UNIQUE INDEX IF NOT EXISTS idx_library_items_user_url ON library_items(user_id, canonical_url);
CREATE UNIQUE INDEX IF NOT EXISTS idx_library_items_user_slug ON library_items(user_id, slug);
CREATE INDEX IF NOT EXISTS idx_library_items_user_updated ON library_items(user_id, updated_at, id);

CREATE TABLE IF NOT EXISTS labels (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    color TEXT NOT NULL DEFAULT '',
    internal BOOLEAN NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    UNIQUE(user_id, name)
);

CREATE TABLE IF NOT EXISTS item_labels (
    item_id TEXT NOT NULL,
    label_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY(item_id, label_id),
    FOREIGN KEY(item_id) REFERENCES library_items(id) ON DELETE CASCADE,
    FOREIGN KEY(label_id) REFERENCES labels(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS newsletter_emails (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    address TEXT UNIQUE NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    newsletter_email_id TEXT NOT NULL DEFAULT '',
    unsubscribe_mail_to TEXT NOT NULL DEFAULT '',
    unsubscribe_http_url TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT '',
    last_fetched_at INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE(user_id, name)
);

CREATE TABLE IF NOT EXISTS received_emails (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL DEFAULT '',
    from_address TEXT NOT NULL DEFAULT '',
    to_address TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL DEFAULT '',
    html TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT 'non-article',
    consumed BOOLEAN NOT NULL DEFAULT 0,
    received_at DATETIME,
    created_at INTEGER NOT NULL
);

-- Uploaded files (PDF attachments) with their data, one per library item
CREATE TABLE IF NOT EXISTS uploaded_files (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    data BLOB,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(item_id) REFERENCES library_items(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS integration_cursors (
    user_id TEXT NOT NULL,
    integration TEXT NOT NULL,
    since_ms INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY(user_id, integration)
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_received_emails_user ON received_emails(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_uploaded_files_item ON uploaded_files(item_id);
`
