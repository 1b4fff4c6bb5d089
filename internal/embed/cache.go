package embed

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Cache is the embedded on-disk key/value store for computed vectors.
// Keys are 8-byte big-endian xxh3 hashes of the canonical text; values
// pack float32s big-endian. Entries are immutable once written; the
// metadata table pins the model identifier so a cache written by one
// model is refused by another.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the cache under dir, stamping it with the
// model identifier. A model mismatch is an EmbedFailed condition: the
// user must delete the cache when changing models.
func OpenCache(dir, model string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	c := &Cache{db: db}
	if err := c.init(model); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init(model string) error {
	for _, q := range []string{
		`CREATE TABLE IF NOT EXISTS vectors (
			key BLOB PRIMARY KEY,
			vec BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		);`,
	} {
		if _, err := c.db.Exec(q); err != nil {
			return fmt.Errorf("init cache schema: %w", err)
		}
	}

	var stored string
	err := c.db.QueryRow(`SELECT v FROM meta WHERE k = 'model'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if _, err := c.db.Exec(`INSERT INTO meta (k, v) VALUES ('model', ?)`, model); err != nil {
			return fmt.Errorf("stamp cache model: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read cache metadata: %w", err)
	case stored != model:
		return fmt.Errorf("%w: cache was written by model %q, not %q; delete the cache dir to switch models",
			ErrEmbedFailed, stored, model)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Has reports whether key is cached without decoding its vector.
func (c *Cache) Has(key uint64) (bool, error) {
	var one int
	err := c.db.QueryRow(`SELECT 1 FROM vectors WHERE key = ?`, keyBytes(key)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe cache: %w", err)
	}
	return true, nil
}

// Get returns the cached vector for key.
func (c *Cache) Get(key uint64) ([]float32, bool, error) {
	var blob []byte
	err := c.db.QueryRow(`SELECT vec FROM vectors WHERE key = ?`, keyBytes(key)).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache: %w", err)
	}
	return unpackVector(blob), true, nil
}

// PutBatch stores one inference batch atomically; each flush point is a
// durability point.
func (c *Cache) PutBatch(keys []uint64, vecs [][]float32) error {
	if len(keys) != len(vecs) {
		return fmt.Errorf("cache batch mismatch: %d keys, %d vectors", len(keys), len(vecs))
	}
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO vectors (key, vec) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	defer stmt.Close()

	for i, key := range keys {
		if _, err := stmt.Exec(keyBytes(key), packVector(vecs[i])); err != nil {
			return fmt.Errorf("cache write: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Len counts cached vectors.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func keyBytes(key uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], key)
	return b[:]
}

func packVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func unpackVector(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(blob[i*4:]))
	}
	return out
}
