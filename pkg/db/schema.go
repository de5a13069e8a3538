// Package db provides SQLite storage for canonical records, reconciliation
// artifacts, import history and run audit rows.
//
// Monetary columns are stored as TEXT holding fixed-point decimal strings;
// REAL is never used for money.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Canonical bank/payroll money movements, normalized by the adapter.
-- Append-only: corrections are new rows, not destructive edits.
CREATE TABLE IF NOT EXISTS transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,              -- 'bank', 'payroll', ...
    external_id TEXT,                  -- ID in the source system, if any
    date TEXT NOT NULL,                -- YYYY-MM-DD
    amount TEXT NOT NULL,              -- signed decimal string
    memo TEXT NOT NULL,                -- original text, for display
    normalized_memo TEXT NOT NULL,     -- lowercased, used for matching
    counterparty_hint TEXT,
    content_hash TEXT NOT NULL,        -- import-guard fingerprint
    verified INTEGER NOT NULL DEFAULT 0,
    locked INTEGER NOT NULL DEFAULT 0,
    UNIQUE(source, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_transactions_date
    ON transactions(date);

CREATE INDEX IF NOT EXISTS idx_transactions_hash
    ON transactions(source, content_hash);

-- Billable units: charter reservations, invoices.
-- balance is recomputed by the ledger balancer, never hand-edited.
CREATE TABLE IF NOT EXISTS obligations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,              -- 'legacy' or 'primary'
    business_key TEXT NOT NULL,        -- reservation number
    date TEXT NOT NULL,
    total_due TEXT NOT NULL,
    paid_amount TEXT NOT NULL DEFAULT '0',
    balance TEXT NOT NULL DEFAULT '0',
    cancelled INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_obligations_key
    ON obligations(business_key);

-- Payments toward obligations. obligation_id is 0 while orphaned.
CREATE TABLE IF NOT EXISTS payments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    business_key TEXT,
    amount TEXT NOT NULL,
    date TEXT NOT NULL,
    method TEXT,
    memo TEXT,
    obligation_id INTEGER NOT NULL DEFAULT 0,
    content_hash TEXT NOT NULL,
    UNIQUE(content_hash)
);

CREATE INDEX IF NOT EXISTS idx_payments_key
    ON payments(business_key);

-- Matching engine output. Derived artifact: regenerable from scratch,
-- deterministic given the same inputs.
CREATE TABLE IF NOT EXISTS reconciliation_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    payment_id INTEGER NOT NULL,
    transaction_id INTEGER NOT NULL DEFAULT 0,
    obligation_id INTEGER NOT NULL DEFAULT 0,
    confidence REAL NOT NULL,
    method TEXT NOT NULL,              -- 'exact', 'amount_date', 'fuzzy'
    rationale TEXT NOT NULL,
    UNIQUE(payment_id)
);

-- Duplicate detector output. Derived artifact.
CREATE TABLE IF NOT EXISTS duplicate_groups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    group_key TEXT NOT NULL,           -- date|amount|counterparty
    member_ids TEXT NOT NULL,          -- comma-separated transaction ids
    keep_id INTEGER NOT NULL,
    verdict TEXT NOT NULL,             -- 'duplicate', 'protected', 'ambiguous'
    reason TEXT
);

-- Source disagreements and how they were settled. The losing value is
-- superseded here, never deleted from its table.
CREATE TABLE IF NOT EXISTS conflicts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id TEXT NOT NULL,
    field TEXT NOT NULL,
    source_values TEXT NOT NULL,       -- 'source=value;source=value'
    winner TEXT NOT NULL,
    reason TEXT NOT NULL,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Import history: one row per processed source file, with counts.
-- Re-running the same import is safe; the guard reports skipped duplicates.
CREATE TABLE IF NOT EXISTS import_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    file_name TEXT NOT NULL,
    imported INTEGER NOT NULL,
    skipped_duplicate INTEGER NOT NULL,
    unrecognized INTEGER NOT NULL,
    imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_import_history_source
    ON import_history(source);

-- Machine-readable before/after audit rows, one set per run.
CREATE TABLE IF NOT EXISTS run_audit (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,              -- UUID
    entity_table TEXT NOT NULL,
    entity_id INTEGER NOT NULL,
    field TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT,
    reason TEXT,
    confidence REAL,
    applied INTEGER NOT NULL DEFAULT 0,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_run_audit_run
    ON run_audit(run_id);
`

// InitializeSchema initializes the database schema.
// It creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.db.Exec(Schema); err != nil {
		return err
	}
	return nil
}
