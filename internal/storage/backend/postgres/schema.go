package postgres

// Logical schema, PostgreSQL shape: native UUID identifiers, JSONB columns
// with GIN and expression indexes, TIMESTAMPTZ timestamps, BOOLEAN flags.
// Mirrors the SQLite schema column for column.
const schema = `
CREATE TABLE IF NOT EXISTS issuers (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    email TEXT,
    description TEXT,
    image JSONB,
    public_key JSONB,
    additional_fields JSONB,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issuers_name ON issuers(name);
CREATE INDEX IF NOT EXISTS idx_issuers_url ON issuers(url);

CREATE TABLE IF NOT EXISTS badge_classes (
    id UUID PRIMARY KEY,
    issuer_id UUID NOT NULL REFERENCES issuers(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    image JSONB NOT NULL,
    criteria JSONB NOT NULL DEFAULT '{}',
    alignment JSONB,
    tags JSONB,
    version TEXT,
    previous_version UUID REFERENCES badge_classes(id) ON DELETE SET NULL,
    related JSONB,
    endorsement JSONB,
    additional_fields JSONB,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_badge_classes_issuer ON badge_classes(issuer_id);
CREATE INDEX IF NOT EXISTS idx_badge_classes_name ON badge_classes(name);
CREATE INDEX IF NOT EXISTS idx_badge_classes_previous ON badge_classes(previous_version);
CREATE INDEX IF NOT EXISTS idx_badge_classes_related ON badge_classes USING GIN (related);
CREATE INDEX IF NOT EXISTS idx_badge_classes_endorsement ON badge_classes USING GIN (endorsement);

CREATE TABLE IF NOT EXISTS assertions (
    id UUID PRIMARY KEY,
    badge_class_id UUID NOT NULL REFERENCES badge_classes(id) ON DELETE CASCADE,
    issuer_id UUID NOT NULL REFERENCES issuers(id) ON DELETE CASCADE,
    recipient JSONB NOT NULL,
    issued_on TIMESTAMPTZ NOT NULL,
    expires TIMESTAMPTZ,
    evidence JSONB,
    verification JSONB,
    revoked BOOLEAN NOT NULL DEFAULT FALSE,
    revocation_reason TEXT,
    additional_fields JSONB,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assertions_badge_class ON assertions(badge_class_id);
CREATE INDEX IF NOT EXISTS idx_assertions_issuer ON assertions(issuer_id);
CREATE INDEX IF NOT EXISTS idx_assertions_issued_on ON assertions(issued_on);
CREATE INDEX IF NOT EXISTS idx_assertions_recipient_email ON assertions ((recipient->>'email'));
CREATE INDEX IF NOT EXISTS idx_assertions_recipient_identity ON assertions ((recipient->>'identity'));
CREATE INDEX IF NOT EXISTS idx_assertions_recipient_type ON assertions ((recipient->>'type'));

CREATE TABLE IF NOT EXISTS status_lists (
    id UUID PRIMARY KEY,
    issuer_id UUID NOT NULL REFERENCES issuers(id) ON DELETE CASCADE,
    purpose TEXT NOT NULL CHECK (purpose IN ('revocation', 'suspension', 'refresh', 'message')),
    status_size SMALLINT NOT NULL CHECK (status_size IN (1, 2, 4, 8)),
    encoded_list TEXT NOT NULL,
    ttl BIGINT,
    total_entries INTEGER NOT NULL,
    used_entries INTEGER NOT NULL DEFAULT 0 CHECK (used_entries >= 0 AND used_entries <= total_entries),
    metadata JSONB,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_lists_issuer ON status_lists(issuer_id);
CREATE INDEX IF NOT EXISTS idx_status_lists_lookup ON status_lists(issuer_id, purpose, status_size, used_entries);

CREATE TABLE IF NOT EXISTS credential_status_entries (
    id UUID PRIMARY KEY,
    credential_id UUID NOT NULL REFERENCES assertions(id) ON DELETE CASCADE,
    status_list_id UUID NOT NULL REFERENCES status_lists(id) ON DELETE CASCADE,
    status_list_index INTEGER NOT NULL CHECK (status_list_index >= 0),
    status_size SMALLINT NOT NULL CHECK (status_size IN (1, 2, 4, 8)),
    purpose TEXT NOT NULL CHECK (purpose IN ('revocation', 'suspension', 'refresh', 'message')),
    current_status SMALLINT NOT NULL DEFAULT 0,
    status_reason TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (status_list_id, status_list_index),
    UNIQUE (credential_id, purpose)
);

CREATE INDEX IF NOT EXISTS idx_status_entries_credential ON credential_status_entries(credential_id);
CREATE INDEX IF NOT EXISTS idx_status_entries_list ON credential_status_entries(status_list_id);
`
