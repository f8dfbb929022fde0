package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RecordFetch implements spec.md §4.1's record_fetch: insert-or-update the
// package row, bumping fetch_count and refreshing fetched_at/ttl_hours.
func (s *Store) RecordFetch(name string, ttlHours int) error {
	now := s.now()
	_, err := s.conn.Exec(`
		INSERT INTO packages (name, fetched_at, last_accessed, last_meaningful_access, ttl_hours, fetch_count, total_requests)
		VALUES (?, ?, ?, ?, ?, 1, 1)
		ON CONFLICT(name) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			ttl_hours = excluded.ttl_hours,
			fetch_count = fetch_count + 1
	`, name, now, now, now, ttlHours)
	if err != nil {
		return fmt.Errorf("record_fetch(%s): %w", name, err)
	}
	return nil
}

// TouchAccess implements touch_access: bump total_requests and
// last_accessed. No-op if the package has no record yet.
func (s *Store) TouchAccess(name string) error {
	_, err := s.conn.Exec(`
		UPDATE packages SET last_accessed = ?, total_requests = total_requests + 1
		WHERE name = ?
	`, s.now(), name)
	if err != nil {
		return fmt.Errorf("touch_access(%s): %w", name, err)
	}
	return nil
}

// TouchMeaningful implements touch_meaningful: bump last_meaningful_access
// only, for pack/object traffic. No-op if absent.
func (s *Store) TouchMeaningful(name string) error {
	_, err := s.conn.Exec(`
		UPDATE packages SET last_meaningful_access = ? WHERE name = ?
	`, s.now(), name)
	if err != nil {
		return fmt.Errorf("touch_meaningful(%s): %w", name, err)
	}
	return nil
}

// IncrementFetch implements increment_fetch: used when a request hits an
// already-materialized repository without a fresh clone/pull.
func (s *Store) IncrementFetch(name string) error {
	_, err := s.conn.Exec(`UPDATE packages SET fetch_count = fetch_count + 1 WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("increment_fetch(%s): %w", name, err)
	}
	return nil
}

// ShouldRefresh implements should_refresh: true if absent, or if the TTL
// has elapsed since fetched_at.
func (s *Store) ShouldRefresh(name string) (bool, error) {
	rec, err := s.GetRecord(name)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return true, nil
	}
	elapsed := s.now().Sub(rec.FetchedAt)
	return elapsed >= time.Duration(rec.TTLHours)*time.Hour, nil
}

// fixZeroCounts implements fix_zero_counts: one-shot repair at startup.
func (s *Store) fixZeroCounts() error {
	_, err := s.conn.Exec(`UPDATE packages SET fetch_count = 1 WHERE fetch_count IS NULL OR fetch_count <= 0`)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(`UPDATE packages SET total_requests = 1 WHERE total_requests IS NULL OR total_requests <= 0`)
	return err
}

// GetRecord fetches a single package's row, or nil if absent.
func (s *Store) GetRecord(name string) (*PackageRecord, error) {
	row := s.conn.QueryRow(`
		SELECT name, fetched_at, last_accessed, last_meaningful_access, ttl_hours, fetch_count, total_requests
		FROM packages WHERE name = ?
	`, name)

	var rec PackageRecord
	err := row.Scan(&rec.Name, &rec.FetchedAt, &rec.LastAccessed, &rec.LastMeaningfulAccess, &rec.TTLHours, &rec.FetchCount, &rec.TotalRequests)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get_record(%s): %w", name, err)
	}
	return &rec, nil
}

// TopFetched returns the limit packages with the highest fetch_count.
func (s *Store) TopFetched(limit int) ([]PackageRecord, error) {
	return s.queryOrdered("fetch_count DESC", limit)
}

// TopRequested returns the limit packages with the highest total_requests.
func (s *Store) TopRequested(limit int) ([]PackageRecord, error) {
	return s.queryOrdered("total_requests DESC", limit)
}

// RecentlyFetched returns the limit most recently fetched packages.
func (s *Store) RecentlyFetched(limit int) ([]PackageRecord, error) {
	return s.queryOrdered("fetched_at DESC", limit)
}

func (s *Store) queryOrdered(orderBy string, limit int) ([]PackageRecord, error) {
	rows, err := s.conn.Query(fmt.Sprintf(`
		SELECT name, fetched_at, last_accessed, last_meaningful_access, ttl_hours, fetch_count, total_requests
		FROM packages ORDER BY %s LIMIT ?
	`, orderBy), limit)
	if err != nil {
		return nil, fmt.Errorf("query ordered by %s: %w", orderBy, err)
	}
	defer rows.Close()

	var out []PackageRecord
	for rows.Next() {
		var rec PackageRecord
		if err := rows.Scan(&rec.Name, &rec.FetchedAt, &rec.LastAccessed, &rec.LastMeaningfulAccess, &rec.TTLHours, &rec.FetchCount, &rec.TotalRequests); err != nil {
			return nil, fmt.Errorf("scan package row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StatsSummary implements stats(): aggregate counters plus top lists.
func (s *Store) StatsSummary(cacheRoot string) (*Stats, error) {
	var totalPackages, totalRequests, totalFetches int

	row := s.conn.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(total_requests), 0), COALESCE(SUM(fetch_count), 0)
		FROM packages
	`)
	if err := row.Scan(&totalPackages, &totalRequests, &totalFetches); err != nil {
		return nil, fmt.Errorf("stats(): %w", err)
	}

	mostFetched, err := s.TopFetched(10)
	if err != nil {
		return nil, err
	}
	mostRequested, err := s.TopRequested(10)
	if err != nil {
		return nil, err
	}
	recentlyFetched, err := s.RecentlyFetched(10)
	if err != nil {
		return nil, err
	}

	// lastUpdated is taken from the newest row rather than MAX(fetched_at):
	// an aggregate loses the column's DATETIME type and scans back as text.
	var lastUpdated time.Time
	if len(recentlyFetched) > 0 {
		lastUpdated = recentlyFetched[0].FetchedAt
	}

	size, err := s.CacheSize(cacheRoot)
	if err != nil {
		slog.Warn("failed to compute cache size", "err", err)
		size = "0 B"
	}

	return &Stats{
		TotalPackages:   totalPackages,
		TotalRequests:   totalRequests,
		TotalFetches:    totalFetches,
		CacheSize:       size,
		LastUpdated:     lastUpdated,
		MostFetched:     mostFetched,
		MostRequested:   mostRequested,
		RecentlyFetched: recentlyFetched,
	}, nil
}

// CacheSize implements cache_size(): sum of on-disk sizes for each package
// directory, formatted in powers of 1024 with a unit suffix.
func (s *Store) CacheSize(cacheRoot string) (string, error) {
	rows, err := s.conn.Query(`SELECT name FROM packages`)
	if err != nil {
		return "", fmt.Errorf("cache_size(): %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	var total int64
	for _, name := range names {
		total += dirSize(filepath.Join(cacheRoot, name))
	}

	return formatBytes(total), nil
}

// formatBytes renders n in powers of 1024 with a B/KB/MB/GB/TB suffix and
// two-decimal precision, per spec.md §4.1. go-humanize's IBytes produces a
// one-decimal "KiB"-suffixed rendering, which doesn't match the spec's
// exact precision/suffix requirements, so the final formatting step here is
// hand-rolled; humanize itself is used elsewhere (config.MaxUploadBytes).
func formatBytes(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(n)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}

func dirSize(root string) int64 {
	var size int64
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
