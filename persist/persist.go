// Package persist is the durable store for swap records, payment metadata,
// address reservations, and sync bookkeeping. It is sqlite-backed, one
// connection shared across operations with multi-row writes wrapped in a
// transaction.
package persist

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	logging "github.com/ipfs/go-log"

	"github.com/breez/breez-sdk-liquid-core/errs"
)

var log = logging.Logger("persist")

// Persister owns the sqlite connection backing every durable table except
// wallet_updates: the Liquid wallet's encrypted scan log is its own
// separate on-disk store of encrypted binary update blobs, opened directly
// by wallet.OpenScanCache.
type Persister struct {
	mu sync.Mutex
	db *sql.DB
}

// New opens (creating if absent) the sqlite database at
// <dataDir>/swaps.db and applies the schema/migrations.
func New(dataDir string) (*Persister, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating persist dir: %s", errs.ErrPersist, err)
	}
	dbPath := filepath.Join(dataDir, "swaps.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: opening persist db: %s", errs.ErrPersist, err)
	}
	db.SetMaxOpenConns(1)

	p := &Persister{db: db}
	if err := p.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Persister) Close() error {
	return p.db.Close()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic, wrapping every multi-row write in a single
// transaction.
func (p *Persister) withTx(fn func(tx *sql.Tx) error) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %s", errs.ErrPersist, err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %s", errs.ErrPersist, err)
	}
	return nil
}
