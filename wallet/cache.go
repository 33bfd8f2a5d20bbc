package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/breez/breez-sdk-liquid-core/errs"
)

// ScanCache is the wallet's LWK-style encrypted on-disk scan state: a log of
// update blobs addressed by a monotonically increasing index, plus the
// materialized view (transactions, utxos, next-unused indices) rebuilt
// from that log at load time.
type ScanCache struct {
	mu  sync.Mutex
	db  *sql.DB
	gcm cipher.AEAD

	txs    map[string]WalletTx
	utxos  map[string]WalletUtxo // keyed by "txid:vout"
	nextExternal uint32
	nextInternal uint32
	tipHeight    uint32
}

// OpenScanCache opens (creating if absent) the encrypted scan cache at
// <dataDir>/wallet_cache.db. key must be 32 bytes, normally derived from the
// BIP39 seed via HKDF (DeriveScanCacheKey) so the cache can only be decrypted by the
// wallet that wrote it.
func OpenScanCache(dataDir string, key [32]byte) (*ScanCache, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating wallet cache dir: %s", errs.ErrPersist, err)
	}
	dbPath := filepath.Join(dataDir, "wallet_cache.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: opening wallet cache: %s", errs.ErrPersist, err)
	}
	db.SetMaxOpenConns(1)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: building cache cipher: %s", errs.ErrPersist, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: building cache cipher: %s", errs.ErrPersist, err)
	}

	c := &ScanCache{
		db:    db,
		gcm:   gcm,
		txs:   make(map[string]WalletTx),
		utxos: make(map[string]WalletUtxo),
	}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := c.replay(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *ScanCache) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS wallet_updates (
		idx       INTEGER PRIMARY KEY AUTOINCREMENT,
		nonce     BLOB NOT NULL,
		payload   BLOB NOT NULL,
		tip_only  INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("%w: initializing wallet cache schema: %s", errs.ErrPersist, err)
	}
	return nil
}

// update is the decrypted payload shape stored in one wallet_updates row.
type update struct {
	TipHeight    uint32               `json:"tip_height,omitempty"`
	NextExternal uint32               `json:"next_external,omitempty"`
	NextInternal uint32               `json:"next_internal,omitempty"`
	Txs          map[string]WalletTx  `json:"txs,omitempty"`
	Utxos        map[string]WalletUtxo `json:"utxos,omitempty"`
	TipOnly      bool                 `json:"-"`
}

// replay decrypts and applies every stored update in index order to rebuild
// the in-memory materialized view.
func (c *ScanCache) replay() error {
	rows, err := c.db.Query(`SELECT nonce, payload FROM wallet_updates ORDER BY idx ASC`)
	if err != nil {
		return fmt.Errorf("%w: reading wallet cache log: %s", errs.ErrPersist, err)
	}
	defer rows.Close()

	for rows.Next() {
		var nonce, payload []byte
		if err := rows.Scan(&nonce, &payload); err != nil {
			return fmt.Errorf("%w: scanning wallet cache row: %s", errs.ErrPersist, err)
		}
		plaintext, err := c.gcm.Open(nil, nonce, payload, nil)
		if err != nil {
			return fmt.Errorf("%w: decrypting wallet cache entry (wrong key?): %s", errs.ErrPersist, err)
		}
		var u update
		if err := json.Unmarshal(plaintext, &u); err != nil {
			return fmt.Errorf("%w: unmarshalling wallet cache entry: %s", errs.ErrPersist, err)
		}
		c.apply(u)
	}
	return rows.Err()
}

func (c *ScanCache) apply(u update) {
	if u.TipHeight > c.tipHeight {
		c.tipHeight = u.TipHeight
	}
	if u.NextExternal > c.nextExternal {
		c.nextExternal = u.NextExternal
	}
	if u.NextInternal > c.nextInternal {
		c.nextInternal = u.NextInternal
	}
	for k, v := range u.Txs {
		c.txs[k] = v
	}
	for k, v := range u.Utxos {
		c.utxos[k] = v
	}
}

// Append encrypts and appends one update to the log, applying it to the
// in-memory view. Consecutive tip-only updates (no tx/utxo delta) are merged
// in place instead of appended, so the log stays bounded across a
// long-running wallet's many empty-poll ticks.
func (c *ScanCache) Append(u update) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	plaintext, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("%w: marshalling wallet cache entry: %s", errs.ErrPersist, err)
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("%w: generating cache nonce: %s", errs.ErrPersist, err)
	}
	ciphertext := c.gcm.Seal(nil, nonce, plaintext, nil)

	if u.TipOnly {
		if compacted, err := c.compactTipOnly(nonce, ciphertext); err != nil {
			return err
		} else if compacted {
			c.apply(u)
			return nil
		}
	}

	if _, err := c.db.Exec(
		`INSERT INTO wallet_updates (nonce, payload, tip_only) VALUES (?, ?, ?)`,
		nonce, ciphertext, u.TipOnly,
	); err != nil {
		return fmt.Errorf("%w: appending wallet cache entry: %s", errs.ErrPersist, err)
	}
	c.apply(u)
	return nil
}

// compactTipOnly overwrites the most recent row in place if it was itself a
// tip-only update, rather than appending a new one.
func (c *ScanCache) compactTipOnly(nonce, ciphertext []byte) (bool, error) {
	var lastIdx int64
	var lastTipOnly bool
	err := c.db.QueryRow(
		`SELECT idx, tip_only FROM wallet_updates ORDER BY idx DESC LIMIT 1`,
	).Scan(&lastIdx, &lastTipOnly)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: checking wallet cache tail: %s", errs.ErrPersist, err)
	}
	if !lastTipOnly {
		return false, nil
	}
	if _, err := c.db.Exec(
		`UPDATE wallet_updates SET nonce = ?, payload = ? WHERE idx = ?`,
		nonce, ciphertext, lastIdx,
	); err != nil {
		return false, fmt.Errorf("%w: compacting wallet cache tail: %s", errs.ErrPersist, err)
	}
	return true, nil
}

func (c *ScanCache) Transactions() []WalletTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]WalletTx, 0, len(c.txs))
	for _, tx := range c.txs {
		out = append(out, tx)
	}
	return out
}

func (c *ScanCache) TransactionByTxID(txID string) (WalletTx, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txs[txID]
	return tx, ok
}

func (c *ScanCache) Utxos() []WalletUtxo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]WalletUtxo, 0, len(c.utxos))
	for _, u := range c.utxos {
		out = append(out, u)
	}
	return out
}

func (c *ScanCache) TipHeight() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipHeight
}

func (c *ScanCache) NextExternalIndex() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextExternal
}

func (c *ScanCache) NextInternalIndex() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextInternal
}

func (c *ScanCache) Close() error {
	return c.db.Close()
}

func utxoKey(txID string, vout uint32) string {
	return fmt.Sprintf("%s:%d", txID, vout)
}
