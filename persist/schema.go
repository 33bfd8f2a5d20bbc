package persist

import "fmt"

// schemaVersion bumps wheneve the base schema changes in a way that needs a
// migration step beyond CREATE TABLE IF NOT EXISTS.
const schemaVersion = 1

// versionTrigger returns the AFTER UPDATE trigger SQL that bumps version and
// last_updated_at on every row update.
func versionTrigger(table string) string {
	return fmt.Sprintf(`
	CREATE TRIGGER IF NOT EXISTS trg_%[1]s_version
	AFTER UPDATE ON %[1]s
	FOR EACH ROW WHEN NEW.version = OLD.version
	BEGIN
		UPDATE %[1]s SET version = OLD.version + 1, last_updated_at = strftime('%%s','now') WHERE id = NEW.id;
	END;
	`, table)
}

const swapTableColumns = `
	id                 TEXT PRIMARY KEY,
	state              TEXT NOT NULL,
	created_at         INTEGER NOT NULL,
	last_updated_at    INTEGER NOT NULL,
	version            INTEGER NOT NULL DEFAULT 1,
	payer_amount_sat   INTEGER NOT NULL DEFAULT 0,
	receiver_amount_sat INTEGER NOT NULL DEFAULT 0,
	timeout_block_height INTEGER NOT NULL DEFAULT 0,
	create_response_json BLOB,
	claim_private_key  BLOB,
	refund_private_key BLOB,
	preimage           BLOB,
	pair_fees_json     BLOB
`

func (p *Persister) migrate() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS schema_meta (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS send_swaps (
		%[1]s,
		invoice      TEXT NOT NULL,
		payment_hash BLOB NOT NULL,
		bolt12_offer TEXT,
		lockup_tx_id TEXT,
		refund_tx_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_send_swaps_state ON send_swaps(state);

	CREATE TABLE IF NOT EXISTS receive_swaps (
		%[1]s,
		invoice        TEXT NOT NULL,
		mrh_address    TEXT NOT NULL,
		lockup_tx_id   TEXT,
		claim_tx_id    TEXT,
		mrh_tx_id      TEXT,
		claim_fees_sat INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_receive_swaps_state ON receive_swaps(state);
	CREATE INDEX IF NOT EXISTS idx_receive_swaps_mrh ON receive_swaps(mrh_address);

	CREATE TABLE IF NOT EXISTS chain_swaps (
		%[1]s,
		direction                   TEXT NOT NULL,
		lockup_address              TEXT NOT NULL,
		claim_address               TEXT,
		user_lockup_tx_id           TEXT,
		server_lockup_tx_id         TEXT,
		claim_tx_id                 TEXT,
		refund_tx_id                TEXT,
		accept_zero_conf            INTEGER NOT NULL DEFAULT 0,
		actual_payer_amount_sat     INTEGER NOT NULL DEFAULT 0,
		accepted_receiver_amount_sat INTEGER NOT NULL DEFAULT 0,
		auto_accepted_fees          INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_chain_swaps_state ON chain_swaps(state);

	CREATE TABLE IF NOT EXISTS payment_tx_data (
		tx_id           TEXT PRIMARY KEY,
		timestamp       INTEGER,
		asset_id        TEXT NOT NULL,
		amount          INTEGER NOT NULL,
		fees_sat        INTEGER NOT NULL DEFAULT 0,
		payment_type    TEXT NOT NULL,
		is_confirmed    INTEGER NOT NULL DEFAULT 0,
		unblinding_data BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_payment_tx_data_asset ON payment_tx_data(asset_id);

	CREATE TABLE IF NOT EXISTS payment_details (
		tx_id         TEXT PRIMARY KEY,
		destination   TEXT,
		description    TEXT,
		lnurl_info    BLOB,
		bip353_address TEXT,
		asset_fees    BLOB,
		FOREIGN KEY (tx_id) REFERENCES payment_tx_data(tx_id)
	);

	CREATE TABLE IF NOT EXISTS reserved_addresses (
		address            TEXT PRIMARY KEY,
		expiry_block_height INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reserved_addresses_expiry ON reserved_addresses(expiry_block_height);

	CREATE TABLE IF NOT EXISTS cached_items (
		key   TEXT PRIMARY KEY,
		value BLOB
	);

	CREATE TABLE IF NOT EXISTS asset_metadata (
		asset_id TEXT PRIMARY KEY,
		ticker   TEXT,
		name     TEXT,
		precision INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		key   TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS sync_settings (
		key   TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS sync_outgoing (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id   TEXT NOT NULL,
		record_type TEXT NOT NULL,
		payload     BLOB NOT NULL,
		created_at  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_incoming (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id   TEXT NOT NULL,
		record_type TEXT NOT NULL,
		payload     BLOB NOT NULL,
		applied_at  INTEGER
	);

	%[2]s
	%[3]s
	%[4]s
	`, swapTableColumns, versionTrigger("send_swaps"), versionTrigger("receive_swaps"), versionTrigger("chain_swaps"))

	if _, err := p.db.Exec(schema); err != nil {
		return wrapPersistErr("initializing schema", err)
	}

	return p.runMigrations()
}

// runMigrations applies any ALTER TABLE steps needed on top of an existing
// database, matching Klingon's "ignore errors, column may already exist"
// idiom. There are none beyond the base schema yet; schemaVersion is
// recorded so a future migration can detect the starting point.
func (p *Persister) runMigrations() error {
	_, _ = p.db.Exec(`INSERT OR IGNORE INTO schema_meta (key, value) VALUES ('version', ?)`, schemaVersion)
	return nil
}
