package sqlitedb

// Logical schema, SQLite shape: TEXT identifiers, TEXT JSON, epoch-ms
// INTEGER timestamps, 0/1 INTEGER booleans. Mirrors the Postgres schema
// column for column.
const schema = `
-- Issuers table
CREATE TABLE IF NOT EXISTS issuers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    email TEXT,
    description TEXT,
    image TEXT,
    public_key TEXT,
    additional_fields TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issuers_name ON issuers(name);
CREATE INDEX IF NOT EXISTS idx_issuers_url ON issuers(url);

-- Badge classes table
CREATE TABLE IF NOT EXISTS badge_classes (
    id TEXT PRIMARY KEY,
    issuer_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    image TEXT NOT NULL,
    criteria TEXT NOT NULL DEFAULT '{}',
    alignment TEXT,
    tags TEXT,
    version TEXT,
    previous_version TEXT,
    related TEXT,
    endorsement TEXT,
    additional_fields TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (issuer_id) REFERENCES issuers(id) ON DELETE CASCADE,
    FOREIGN KEY (previous_version) REFERENCES badge_classes(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_badge_classes_issuer ON badge_classes(issuer_id);
CREATE INDEX IF NOT EXISTS idx_badge_classes_name ON badge_classes(name);
CREATE INDEX IF NOT EXISTS idx_badge_classes_previous ON badge_classes(previous_version);

-- Assertions table
CREATE TABLE IF NOT EXISTS assertions (
    id TEXT PRIMARY KEY,
    badge_class_id TEXT NOT NULL,
    issuer_id TEXT NOT NULL,
    recipient TEXT NOT NULL,
    issued_on INTEGER NOT NULL,
    expires INTEGER,
    evidence TEXT,
    verification TEXT,
    revoked INTEGER NOT NULL DEFAULT 0,
    revocation_reason TEXT,
    additional_fields TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (badge_class_id) REFERENCES badge_classes(id) ON DELETE CASCADE,
    FOREIGN KEY (issuer_id) REFERENCES issuers(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_assertions_badge_class ON assertions(badge_class_id);
CREATE INDEX IF NOT EXISTS idx_assertions_issuer ON assertions(issuer_id);
CREATE INDEX IF NOT EXISTS idx_assertions_issued_on ON assertions(issued_on);
-- Recipient identity lookups go through json_extract; SQLite supports
-- expression indexes over it.
CREATE INDEX IF NOT EXISTS idx_assertions_recipient_identity ON assertions(json_extract(recipient, '$.identity'));
CREATE INDEX IF NOT EXISTS idx_assertions_recipient_type ON assertions(json_extract(recipient, '$.type'));

-- Status lists table
CREATE TABLE IF NOT EXISTS status_lists (
    id TEXT PRIMARY KEY,
    issuer_id TEXT NOT NULL,
    purpose TEXT NOT NULL CHECK(purpose IN ('revocation', 'suspension', 'refresh', 'message')),
    status_size INTEGER NOT NULL CHECK(status_size IN (1, 2, 4, 8)),
    encoded_list TEXT NOT NULL,
    ttl INTEGER,
    total_entries INTEGER NOT NULL,
    used_entries INTEGER NOT NULL DEFAULT 0 CHECK(used_entries >= 0 AND used_entries <= total_entries),
    metadata TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (issuer_id) REFERENCES issuers(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_status_lists_issuer ON status_lists(issuer_id);
CREATE INDEX IF NOT EXISTS idx_status_lists_lookup ON status_lists(issuer_id, purpose, status_size, used_entries);

-- Credential status entries table
CREATE TABLE IF NOT EXISTS credential_status_entries (
    id TEXT PRIMARY KEY,
    credential_id TEXT NOT NULL,
    status_list_id TEXT NOT NULL,
    status_list_index INTEGER NOT NULL CHECK(status_list_index >= 0),
    status_size INTEGER NOT NULL CHECK(status_size IN (1, 2, 4, 8)),
    purpose TEXT NOT NULL CHECK(purpose IN ('revocation', 'suspension', 'refresh', 'message')),
    current_status INTEGER NOT NULL DEFAULT 0,
    status_reason TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (credential_id) REFERENCES assertions(id) ON DELETE CASCADE,
    FOREIGN KEY (status_list_id) REFERENCES status_lists(id) ON DELETE CASCADE,
    UNIQUE (status_list_id, status_list_index),
    UNIQUE (credential_id, purpose)
);

CREATE INDEX IF NOT EXISTS idx_status_entries_credential ON credential_status_entries(credential_id);
CREATE INDEX IF NOT EXISTS idx_status_entries_list ON credential_status_entries(status_list_id);
`
