package rpctranslator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurcache/aurcache/internal/apperr"
	"github.com/aurcache/aurcache/internal/packagecache"
	"github.com/aurcache/aurcache/internal/recipe"
	"github.com/aurcache/aurcache/internal/runner"
	"github.com/aurcache/aurcache/internal/store"
)

func TestCanonicalKeyPermutationInvariant(t *testing.T) {
	q1 := url.Values{"type": {"info"}, "arg[]": {"pkgfoo", "pkgbar"}}
	q2 := url.Values{"type": {"info"}, "arg[]": {"pkgbar", "pkgfoo"}}

	assert.Equal(t, CanonicalKey("/rpc", "", q1), CanonicalKey("/rpc", "", q2))
}

func TestCanonicalKeySearchUsesSingleArg(t *testing.T) {
	q := url.Values{"type": {"search"}, "arg": {"foo"}}
	assert.Equal(t, "/rpc?type=search&arg=foo", CanonicalKey("/rpc", "type=search&arg=foo", q))
}

// fakeManager serves packages already under root; if upstream is set, a
// package missing from root is "materialized" from upstream instead.
type fakeManager struct {
	root     string
	upstream string
}

func (f *fakeManager) EnsurePackage(ctx context.Context, name string) (*packagecache.RepositoryInfo, error) {
	path := filepath.Join(f.root, name)
	if _, err := os.Stat(path); err != nil {
		if f.upstream == "" {
			return nil, apperr.ErrNotFound
		}
		path = filepath.Join(f.upstream, name)
		if _, err := os.Stat(path); err != nil {
			return nil, apperr.ErrNotFound
		}
	}
	return &packagecache.RepositoryInfo{Name: name, Path: path, GitDir: filepath.Join(path, ".git")}, nil
}

func writePackage(t *testing.T, root, name, pkgbuild string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PKGBUILD"), []byte(pkgbuild), 0o644))
}

func newTestTranslator(t *testing.T, root string) (*Translator, *store.Store) {
	t.Helper()
	dbDir := t.TempDir()
	st, err := store.Open(store.Config{DatabasePath: filepath.Join(dbDir, "packages.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	parser := recipe.New(runner.New(nil), false, nil)
	return New(&fakeManager{root: root}, st, parser, root, nil), st
}

func TestServeHTTPInfoResolvesNamedPackages(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "pkgfoo", "pkgname=pkgfoo\npkgver=1.0\npkgrel=2\n")
	writePackage(t, root, "pkgbar", "pkgname=pkgbar\npkgver=2.0\npkgrel=1\n")

	tr, _ := newTestTranslator(t, root)

	req := httptest.NewRequest(http.MethodGet, "/rpc/?v=5&type=info&arg[]=pkgfoo&arg[]=pkgbar", nil)
	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, req)

	var resp InfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.ResultCount)
	assert.Equal(t, "multiinfo", resp.Type)
	assert.Equal(t, 5, resp.Version)

	names := []string{resp.Results[0].Name, resp.Results[1].Name}
	assert.Contains(t, names, "pkgfoo")
	assert.Contains(t, names, "pkgbar")
}

func TestServeHTTPInfoNoArgsReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	tr, _ := newTestTranslator(t, root)

	req := httptest.NewRequest(http.MethodGet, "/rpc/?v=5&type=info", nil)
	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, req)

	var resp EmptyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.ResultCount)
	assert.Equal(t, "info", resp.Type)
	assert.Equal(t, 5, resp.Version)
}

func TestServeHTTPUnknownTypeReturnsEmptyWithUnknownType(t *testing.T) {
	root := t.TempDir()
	tr, _ := newTestTranslator(t, root)

	req := httptest.NewRequest(http.MethodGet, "/rpc/", nil)
	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, req)

	var resp EmptyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unknown", resp.Type)
	assert.Equal(t, 5, resp.Version)
}

func TestServeHTTPSearchFallsBackToLiteralName(t *testing.T) {
	// The cache root is empty, so no directory matches and only the
	// literal-name materialization can produce the result.
	root := t.TempDir()
	upstream := t.TempDir()
	writePackage(t, upstream, "exactname", "pkgname=exactname\npkgver=1\npkgrel=1\n")
	tr, _ := newTestTranslator(t, root)
	tr.manager = &fakeManager{root: root, upstream: upstream}

	req := httptest.NewRequest(http.MethodGet, "/rpc/?v=5&type=search&arg=exactname", nil)
	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, req)

	var resp InfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "exactname", resp.Results[0].Name)
}

func TestServeHTTPSearchMatchesSubstring(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "my-cool-tool", "pkgname=my-cool-tool\npkgver=1\npkgrel=1\n")
	tr, _ := newTestTranslator(t, root)

	req := httptest.NewRequest(http.MethodGet, "/rpc/?v=5&type=search&arg=cool", nil)
	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, req)

	var resp InfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "my-cool-tool", resp.Results[0].Name)
}

func TestServeHTTPCachesResponseAcrossRequests(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "pkgfoo", "pkgname=pkgfoo\npkgver=1\npkgrel=1\n")
	tr, st := newTestTranslator(t, root)

	req := httptest.NewRequest(http.MethodGet, "/rpc/?v=5&type=info&arg[]=pkgfoo", nil)
	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, req)

	key := CanonicalKey("/rpc/", "v=5&type=info&arg[]=pkgfoo", url.Values{"v": {"5"}, "type": {"info"}, "arg[]": {"pkgfoo"}})
	data, ok, err := st.GetRPCCache(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Body.Bytes(), data)
}
