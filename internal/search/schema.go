package search

// Schema contains SQL schema definitions for the SQLite backend
const Schema = `
-- Emails table, keyed by the normalizer-assigned id
CREATE TABLE IF NOT EXISTS emails (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    folder TEXT NOT NULL,
    from_addr TEXT,
    to_addr TEXT,
    cc_addr TEXT,
    bcc_addr TEXT,
    subject TEXT,
    message_id TEXT,
    header_date DATETIME,
    body_text TEXT,
    body_html TEXT,
    attachments TEXT,
    category TEXT NOT NULL DEFAULT 'Uncategorized',
    is_read INTEGER NOT NULL DEFAULT 0,
    is_flagged INTEGER NOT NULL DEFAULT 0,
    received_date DATETIME NOT NULL,
    synced_at DATETIME NOT NULL
);

-- Create indexes for faster queries
CREATE INDEX IF NOT EXISTS idx_emails_account_id ON emails(account_id);
CREATE INDEX IF NOT EXISTS idx_emails_folder ON emails(folder);
CREATE INDEX IF NOT EXISTS idx_emails_category ON emails(category);
CREATE INDEX IF NOT EXISTS idx_emails_received_date ON emails(received_date);

-- Full-text search index
CREATE VIRTUAL TABLE IF NOT EXISTS emails_fts USING fts5(
    subject,
    from_addr,
    to_addr,
    body_text,
    content='emails',
    content_rowid='rowid'
);

-- Triggers for FTS
CREATE TRIGGER IF NOT EXISTS emails_fts_insert AFTER INSERT ON emails BEGIN
    INSERT INTO emails_fts(rowid, subject, from_addr, to_addr, body_text)
    VALUES (new.rowid, new.subject, new.from_addr, new.to_addr, new.body_text);
END;

CREATE TRIGGER IF NOT EXISTS emails_fts_update AFTER UPDATE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, subject, from_addr, to_addr, body_text)
    VALUES ('delete', old.rowid, old.subject, old.from_addr, old.to_addr, old.body_text);
    INSERT INTO emails_fts(rowid, subject, from_addr, to_addr, body_text)
    VALUES (new.rowid, new.subject, new.from_addr, new.to_addr, new.body_text);
END;

CREATE TRIGGER IF NOT EXISTS emails_fts_delete AFTER DELETE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, subject, from_addr, to_addr, body_text)
    VALUES ('delete', old.rowid, old.subject, old.from_addr, old.to_addr, old.body_text);
END;
`
