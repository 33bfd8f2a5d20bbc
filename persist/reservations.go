package persist

import "database/sql"

// ErrAddressAlreadyReserved is returned by ReserveAddress when the address
// is already present and unexpired, enforcing that a reserved address is
// unique.
var ErrAddressAlreadyReserved = wrapPersistErr("reserve address", sql.ErrTxDone)

// ReserveAddress records address as claimed until expiryBlockHeight so
// concurrent swaps don't collide on the same claim/refund destination.
func (p *Persister) ReserveAddress(address string, expiryBlockHeight, currentHeight uint32) error {
	return p.withTx(func(tx *sql.Tx) error {
		var existingExpiry uint32
		err := tx.QueryRow(`SELECT expiry_block_height FROM reserved_addresses WHERE address = ?`, address).Scan(&existingExpiry)
		if err == nil && existingExpiry > currentHeight {
			return ErrAddressAlreadyReserved
		}
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO reserved_addresses (address, expiry_block_height) VALUES (?, ?)
			ON CONFLICT(address) DO UPDATE SET expiry_block_height=excluded.expiry_block_height
		`, address, expiryBlockHeight)
		return err
	})
}

// IsAddressReserved reports whether address is currently reserved, given
// the caller's view of the current block height (reservations past their
// expiry are treated as free without needing a separate sweep).
func (p *Persister) IsAddressReserved(address string, currentHeight uint32) (bool, error) {
	var expiry uint32
	err := p.db.QueryRow(`SELECT expiry_block_height FROM reserved_addresses WHERE address = ?`, address).Scan(&expiry)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapPersistErr("reading reserved_addresses", err)
	}
	return expiry > currentHeight, nil
}

// ExpireReservations deletes every reservation whose expiry has passed,
// called from the periodic tick.
func (p *Persister) ExpireReservations(currentHeight uint32) (int64, error) {
	var affected int64
	err := p.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM reserved_addresses WHERE expiry_block_height <= ?`, currentHeight)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}
