package persist

import "database/sql"

// GetSyncState reads one key from sync_state, used for the wallet's rotating
// address indices and other small scalar sync bookkeeping.
func (p *Persister) GetSyncState(key string) (string, bool, error) {
	var value string
	err := p.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapPersistErr("reading sync_state", err)
	}
	return value, true, nil
}

// SetSyncState upserts one key/value pair in sync_state.
func (p *Persister) SetSyncState(key, value string) error {
	return p.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sync_state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		return err
	})
}

// QueueOutgoingSync appends a record to sync_outgoing for an opaque
// external sync service, treated as a black box with a merge interface, to
// pick up.
func (p *Persister) QueueOutgoingSync(recordID, recordType string, payload []byte, createdAtUnix int64) error {
	return p.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sync_outgoing (record_id, record_type, payload, created_at) VALUES (?,?,?,?)
		`, recordID, recordType, payload, createdAtUnix)
		return err
	})
}

// PendingOutgoingSync returns every outgoing sync row not yet consumed.
func (p *Persister) PendingOutgoingSync() ([]OutgoingSyncRecord, error) {
	rows, err := p.db.Query(`SELECT id, record_id, record_type, payload, created_at FROM sync_outgoing ORDER BY id ASC`)
	if err != nil {
		return nil, wrapPersistErr("reading sync_outgoing", err)
	}
	defer rows.Close()

	var out []OutgoingSyncRecord
	for rows.Next() {
		var r OutgoingSyncRecord
		if err := rows.Scan(&r.ID, &r.RecordID, &r.RecordType, &r.Payload, &r.CreatedAtUnix); err != nil {
			return nil, wrapPersistErr("scanning sync_outgoing row", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OutgoingSyncRecord is one row of sync_outgoing.
type OutgoingSyncRecord struct {
	ID            int64
	RecordID      string
	RecordType    string
	Payload       []byte
	CreatedAtUnix int64
}

// ApplyIncomingSync records that the opaque SyncService delivered payload
// for recordID, marking it applied.
func (p *Persister) ApplyIncomingSync(recordID, recordType string, payload []byte, appliedAtUnix int64) error {
	return p.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sync_incoming (record_id, record_type, payload, applied_at) VALUES (?,?,?,?)
		`, recordID, recordType, payload, appliedAtUnix)
		return err
	})
}
