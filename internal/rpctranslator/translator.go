// Package rpctranslator implements the RPC translator (C6): it answers
// info/multiinfo/search queries against the cache, materializing and
// parsing build recipes as needed and synthesizing upstream-compatible
// JSON, per spec.md §4.6.
package rpctranslator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aurcache/aurcache/internal/apperr"
	"github.com/aurcache/aurcache/internal/packagecache"
	"github.com/aurcache/aurcache/internal/recipe"
	"github.com/aurcache/aurcache/internal/store"
)

// hotCacheSize bounds the in-process read-through layer sitting in front
// of C1's rpc_cache table.
const hotCacheSize = 256

// Manager is the subset of *packagecache.Manager the translator needs.
type Manager interface {
	EnsurePackage(ctx context.Context, name string) (*packagecache.RepositoryInfo, error)
}

// Translator answers RPC queries.
type Translator struct {
	manager   Manager
	store     *store.Store
	parser    *recipe.Parser
	cacheRoot string
	hotCache  *lru.Cache[string, []byte]
	logger    *slog.Logger
}

// New creates a Translator.
func New(manager Manager, st *store.Store, parser *recipe.Parser, cacheRoot string, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	hot, _ := lru.New[string, []byte](hotCacheSize)
	return &Translator{
		manager:   manager,
		store:     st,
		parser:    parser,
		cacheRoot: cacheRoot,
		hotCache:  hot,
		logger:    logger,
	}
}

// ServeHTTP answers an RPC request, consulting the hot cache and C1's
// rpc_cache before running the materialize/parse pipeline.
func (t *Translator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	key := CanonicalKey(r.URL.Path, r.URL.RawQuery, query)

	if data, ok := t.hotCache.Get(key); ok {
		writeJSON(w, data)
		return
	}

	if data, ok, err := t.store.GetRPCCache(key); err != nil {
		t.logger.Warn("rpc cache read failed", "key", key, "err", err)
	} else if ok {
		t.hotCache.Add(key, data)
		writeJSON(w, data)
		return
	}

	data, err := t.resolve(r.Context(), query)
	if err != nil {
		t.logger.Error("rpc translation failed", "err", err)
		errBytes, _ := marshalIndented(newErrorResponse())
		writeJSON(w, errBytes)
		return
	}

	t.hotCache.Add(key, data)
	if err := t.store.PutRPCCache(key, data); err != nil {
		t.logger.Warn("failed to persist rpc cache entry", "key", key, "err", err)
	}
	writeJSON(w, data)
}

func (t *Translator) resolve(ctx context.Context, query url.Values) ([]byte, error) {
	version := versionParam(query)
	queryType := query.Get("type")

	switch queryType {
	case "info", "multiinfo":
		names := query["arg[]"]
		if len(names) == 0 {
			return marshalIndented(newEmptyResponse(queryType, version))
		}
		results := t.resolveNames(ctx, names)
		return marshalIndented(newInfoResponse(results, version))
	case "search":
		results, err := t.search(ctx, query.Get("arg"))
		if err != nil {
			return nil, err
		}
		return marshalIndented(newInfoResponse(results, version))
	default:
		return marshalIndented(newEmptyResponse(queryType, version))
	}
}

func (t *Translator) resolveNames(ctx context.Context, names []string) []*recipe.Record {
	results := make([]*recipe.Record, 0, len(names))
	for _, name := range names {
		rec, err := t.resolveOne(ctx, name)
		if err != nil {
			t.logger.Warn("failed to materialize or parse package for rpc", "package", name, "err", err)
			continue
		}
		if rec != nil {
			results = append(results, rec)
		}
	}
	return results
}

func (t *Translator) resolveOne(ctx context.Context, name string) (*recipe.Record, error) {
	info, err := t.manager.EnsurePackage(ctx, name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("ensure_package(%s): %w", name, err)
	}

	data, err := readRecipe(info.Path)
	if err != nil {
		return nil, err
	}

	return t.parser.Parse(ctx, name, data), nil
}

// search implements spec.md §4.6's type=search: substring-match against
// cached directory names, falling back to literal materialization if
// nothing matched.
func (t *Translator) search(ctx context.Context, term string) ([]*recipe.Record, error) {
	entries, err := os.ReadDir(t.cacheRoot)
	if err != nil {
		return nil, fmt.Errorf("list cache root: %w", err)
	}

	lowerTerm := strings.ToLower(term)
	var results []*recipe.Record
	matched := false

	for _, entry := range entries {
		if !entry.IsDir() || !strings.Contains(strings.ToLower(entry.Name()), lowerTerm) {
			continue
		}
		matched = true

		data, err := readRecipe(filepath.Join(t.cacheRoot, entry.Name()))
		if err != nil {
			t.logger.Warn("failed to read recipe during search", "package", entry.Name(), "err", err)
			continue
		}
		results = append(results, t.parser.Parse(ctx, entry.Name(), data))
	}

	if !matched {
		if rec, err := t.resolveOne(ctx, term); err == nil && rec != nil {
			results = append(results, rec)
		}
	}

	if results == nil {
		results = []*recipe.Record{}
	}
	return results, nil
}

func readRecipe(repoPath string) ([]byte, error) {
	for _, name := range []string{"PKGBUILD", ".SRCINFO"} {
		data, err := os.ReadFile(filepath.Join(repoPath, name))
		if err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("no recipe file found under %s", repoPath)
}

func writeJSON(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
