package store

import (
	"database/sql"
	"fmt"
	"time"
)

// rpcCacheTTL is the 12-hour lazy-eviction window from spec.md §3.
const rpcCacheTTL = 12 * time.Hour

// GetRPCCache returns the cached response bytes for key if present and
// fresh. A stale entry is deleted and treated as absent.
func (s *Store) GetRPCCache(key string) ([]byte, bool, error) {
	var data []byte
	var cachedAt time.Time

	row := s.conn.QueryRow(`SELECT response_data, cached_at FROM rpc_cache WHERE key = ?`, key)
	err := row.Scan(&data, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get rpc cache %s: %w", key, err)
	}

	if s.now().Sub(cachedAt) >= rpcCacheTTL {
		if _, delErr := s.conn.Exec(`DELETE FROM rpc_cache WHERE key = ?`, key); delErr != nil {
			return nil, false, fmt.Errorf("evict stale rpc cache %s: %w", key, delErr)
		}
		return nil, false, nil
	}

	return data, true, nil
}

// PutRPCCache upserts the cached response bytes for key.
func (s *Store) PutRPCCache(key string, data []byte) error {
	_, err := s.conn.Exec(`
		INSERT INTO rpc_cache (key, response_data, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET response_data = excluded.response_data, cached_at = excluded.cached_at
	`, key, data, s.now())
	if err != nil {
		return fmt.Errorf("put rpc cache %s: %w", key, err)
	}
	return nil
}
