// Package cache stores lowering results keyed by a hash of everything that
// determines them, so that unchanged inputs are not lowered twice.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	key        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL
)`

// Cache is a sqlite database of lowering results. It is safe for
// concurrent use.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at path. The special path
// ":memory:" keeps the cache in memory.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY and
	// keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key hashes the parts that determine a result: tool version, options,
// input language and source text.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get decodes the entry stored under key into v. It reports false when
// there is none.
func (c *Cache) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM results WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cache: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false, fmt.Errorf("decoding cache entry: %w", err)
	}
	return true, nil
}

// Put stores v under key, replacing an older entry.
func (c *Cache) Put(ctx context.Context, key, name string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO results (key, name, payload, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET name = excluded.name, payload = excluded.payload, created_at = excluded.created_at`,
		key, name, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// Len returns the number of entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// Prune removes entries older than maxAge.
func (c *Cache) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := c.db.ExecContext(ctx, `DELETE FROM results WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning cache: %w", err)
	}
	return res.RowsAffected()
}
