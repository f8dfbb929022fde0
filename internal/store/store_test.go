package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Config{DatabasePath: filepath.Join(dir, "packages.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordFetchCreatesAndUpdates(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordFetch("pkgfoo", 12))
	rec, err := s.GetRecord("pkgfoo")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.FetchCount)
	assert.Equal(t, 1, rec.TotalRequests)
	assert.Equal(t, 12, rec.TTLHours)

	require.NoError(t, s.RecordFetch("pkgfoo", 12))
	rec, err = s.GetRecord("pkgfoo")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.FetchCount)
}

func TestIncrementFetchBumpsExistingRecordOnly(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.IncrementFetch("ghost"))
	rec, err := s.GetRecord("ghost")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, s.RecordFetch("pkgfoo", 12))
	require.NoError(t, s.IncrementFetch("pkgfoo"))
	rec, err = s.GetRecord("pkgfoo")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.FetchCount)
}

func TestTouchAccessNoOpIfAbsent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.TouchAccess("ghost"))
	rec, err := s.GetRecord("ghost")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestInvariantFetchedAtLessEqualLastAccessed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordFetch("pkgfoo", 12))
	require.NoError(t, s.TouchAccess("pkgfoo"))

	rec, err := s.GetRecord("pkgfoo")
	require.NoError(t, err)
	assert.True(t, !rec.FetchedAt.After(rec.LastAccessed))
	assert.GreaterOrEqual(t, rec.FetchCount, 1)
	assert.GreaterOrEqual(t, rec.TotalRequests, 1)
}

func TestShouldRefreshTTLBoundary(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NoError(t, s.RecordFetch("pkgfoo", 12))

	s.now = func() time.Time { return base.Add(11*time.Hour + 59*time.Minute + 59*time.Second) }
	refresh, err := s.ShouldRefresh("pkgfoo")
	require.NoError(t, err)
	assert.False(t, refresh)

	s.now = func() time.Time { return base.Add(12 * time.Hour) }
	refresh, err = s.ShouldRefresh("pkgfoo")
	require.NoError(t, err)
	assert.True(t, refresh)
}

func TestShouldRefreshAbsentPackage(t *testing.T) {
	s := newTestStore(t)
	refresh, err := s.ShouldRefresh("never-seen")
	require.NoError(t, err)
	assert.True(t, refresh)
}

func TestFixZeroCountsRepairsAtStartup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "packages.db")

	s, err := Open(Config{DatabasePath: path})
	require.NoError(t, err)
	require.NoError(t, s.RecordFetch("pkgfoo", 12))
	_, err = s.conn.Exec(`UPDATE packages SET fetch_count = 0, total_requests = -3`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(Config{DatabasePath: path})
	require.NoError(t, err)
	defer s2.Close()

	rec, err := s2.GetRecord("pkgfoo")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.FetchCount)
	assert.Equal(t, 1, rec.TotalRequests)
}

func TestRPCCacheRoundTripAndExpiry(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NoError(t, s.PutRPCCache("k1", []byte(`{"a":1}`)))

	data, ok, err := s.GetRPCCache("k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(data))

	s.now = func() time.Time { return base.Add(12*time.Hour + time.Second) }
	_, ok, err = s.GetRPCCache("k1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Row should have been deleted by the lazy eviction.
	var count int
	require.NoError(t, s.conn.QueryRow(`SELECT COUNT(*) FROM rpc_cache WHERE key = 'k1'`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestTopFetchedOrdering(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordFetch("a", 12))
	require.NoError(t, s.RecordFetch("b", 12))
	require.NoError(t, s.RecordFetch("b", 12))

	top, err := s.TopFetched(10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].Name)
}

func TestCacheSizeFormatsBytes(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	require.NoError(t, s.RecordFetch("pkgfoo", 12))

	pkgDir := filepath.Join(root, "pkgfoo")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "data"), make([]byte, 2048), 0o644))

	size, err := s.CacheSize(root)
	require.NoError(t, err)
	assert.Equal(t, "2.00 KB", size)
}
