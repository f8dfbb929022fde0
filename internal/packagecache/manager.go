// Package packagecache implements the package cache manager (C4): the
// sole owner of on-disk repository materialization, TTL-driven refresh,
// and concurrency control for a single package name.
package packagecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/singleflight"

	"github.com/aurcache/aurcache/internal/apperr"
	"github.com/aurcache/aurcache/internal/runner"
	"github.com/aurcache/aurcache/internal/store"
)

// defaultTTLHours is the constant TTL passed to record_fetch everywhere
// it's called, per spec.md §9's open-question decision (the per-call ttl
// parameter always overwrites, and the only caller-supplied value is 12).
const defaultTTLHours = 12

// cloneTimeout is the mandatory clone deadline from spec.md §4.2.
const cloneTimeout = 30 * time.Second

// Executor is the subset of *runner.Runner that the cache manager needs.
// Tests inject a fake to exercise the clone/mirror/validate protocol
// without shelling out to a real git binary.
type Executor interface {
	Run(ctx context.Context, name string, args []string, opts ...runner.Option) (*runner.Result, error)
}

// Manager owns the cache root directory and coordinates materialization.
type Manager struct {
	cacheRoot      string
	upstreamIndex  string
	upstreamMirror string
	store          *store.Store
	runner         Executor
	logger         *slog.Logger

	inflight singleflight.Group
}

// Config configures a Manager.
type Config struct {
	CacheRoot      string
	UpstreamIndex  string // e.g. "aur.archlinux.org"
	UpstreamMirror string // e.g. "github.com/archlinux/aur-mirror"
}

// New creates a Manager.
func New(cfg Config, st *store.Store, r Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cacheRoot:      cfg.CacheRoot,
		upstreamIndex:  cfg.UpstreamIndex,
		upstreamMirror: cfg.UpstreamMirror,
		store:          st,
		runner:         r,
		logger:         logger,
	}
}

// EnsurePackage implements spec.md §4.4's materialization protocol:
// compute the repo path; if present, validate and possibly refresh; if
// absent, clone (with mirror fallback), validate, and mark bare. Returns
// apperr.ErrNotFound (checkable with errors.Is) if the package could not be
// materialized from any upstream; any other non-nil error is an internal
// failure unrelated to the package's existence.
func (m *Manager) EnsurePackage(ctx context.Context, name string) (*RepositoryInfo, error) {
	v, err, _ := m.inflight.Do(name, func() (interface{}, error) {
		return m.ensureLocked(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RepositoryInfo), nil
}

func (m *Manager) ensureLocked(ctx context.Context, name string) (*RepositoryInfo, error) {
	repoPath := filepath.Join(m.cacheRoot, name)

	if dirExists(repoPath) {
		shouldRefresh, err := m.store.ShouldRefresh(name)
		switch {
		case err != nil:
			m.logger.Warn("failed to check refresh status, serving stale cache", "package", name, "err", err)
		case shouldRefresh:
			m.refresh(ctx, name, repoPath)
		default:
			// Warm hit: no clone/pull happened this call, but spec.md §4.1's
			// data model still counts it as a fetch.
			if err := m.store.IncrementFetch(name); err != nil {
				m.logger.Warn("failed to increment fetch count", "package", name, "err", err)
			}
		}
		return newRepositoryInfo(name, repoPath), nil
	}

	if err := m.clone(ctx, name, repoPath); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			m.logger.Info("package could not be materialized from any upstream", "package", name, "err", err)
		} else {
			m.logger.Warn("clone aborted without trying both upstreams", "package", name, "err", err)
		}
		return nil, err
	}

	if err := m.markBare(ctx, repoPath); err != nil {
		m.logger.Warn("failed to mark repository bare", "package", name, "err", err)
	}

	if err := m.store.RecordFetch(name, defaultTTLHours); err != nil {
		m.logger.Warn("failed to record fetch", "package", name, "err", err)
	}

	return newRepositoryInfo(name, repoPath), nil
}

// refresh implements spec.md §4.4's refresh protocol: git pull, and on
// success, record_fetch. Failures are logged and swallowed.
func (m *Manager) refresh(ctx context.Context, name, repoPath string) {
	result, err := m.runner.Run(ctx, "git", []string{"pull"}, runner.WithDir(repoPath))
	if err != nil || !result.OK {
		m.logger.Warn("refresh failed, serving stale cache", "package", name, "err", err)
		return
	}
	if err := m.store.RecordFetch(name, defaultTTLHours); err != nil {
		m.logger.Warn("failed to record fetch after refresh", "package", name, "err", err)
	}
}

// clone implements spec.md §4.4 step 3: clean any partial directory, clone
// from the primary, validate, and fall back to the mirror on failure. A
// non-retryable primary failure (the request context was cancelled) skips
// the mirror attempt entirely, since retrying would fail the same way.
func (m *Manager) clone(ctx context.Context, name, repoPath string) error {
	if dirExists(repoPath) {
		if err := os.RemoveAll(repoPath); err != nil {
			return fmt.Errorf("remove partial clone of %s: %w", name, err)
		}
	}

	primaryURL := fmt.Sprintf("https://%s/%s.git", m.upstreamIndex, name)
	err := m.nonRetryable(ctx, m.attemptClone(ctx, []string{"clone", primaryURL, repoPath}, repoPath))
	if err == nil {
		return nil
	}
	os.RemoveAll(repoPath)
	if apperr.IsNonRetryable(err) {
		return err
	}

	mirrorURL := fmt.Sprintf("https://%s", m.upstreamMirror)
	err = m.nonRetryable(ctx, m.attemptClone(ctx, []string{"clone", "--branch", name, "--single-branch", mirrorURL, repoPath}, repoPath))
	if err == nil {
		return nil
	}
	os.RemoveAll(repoPath)
	if apperr.IsNonRetryable(err) {
		return err
	}

	return apperr.ErrNotFound
}

// nonRetryable marks err as non-retryable when ctx was cancelled before the
// attempt completed, so clone() skips the fallback instead of trying a
// second upstream that would fail identically.
func (m *Manager) nonRetryable(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperr.NonRetryable(err)
	}
	return err
}

func (m *Manager) attemptClone(ctx context.Context, args []string, repoPath string) error {
	return retry.Do(func() error {
		result, err := m.runner.Run(ctx, "git", args, runner.WithTimeout(cloneTimeout))
		if err != nil {
			return err
		}
		if !result.OK {
			return fmt.Errorf("git %v: exit %d: %s", args, result.ExitCode, result.Stderr)
		}
		if !validateClone(repoPath) {
			return fmt.Errorf("clone of %v failed validation", args)
		}
		return nil
	}, retry.Attempts(1), retry.Context(ctx))
}

// validateClone implements spec.md §4.4 step (c): the repository's
// internal Git directory and the recipe file must both be present at the
// repository root.
func validateClone(repoPath string) bool {
	gitDir := gitDirFor(repoPath)
	if !dirExists(gitDir) {
		return false
	}
	return recipeFileExists(repoPath)
}

func recipeFileExists(repoPath string) bool {
	for _, name := range []string{"PKGBUILD", ".SRCINFO"} {
		if _, err := os.Stat(filepath.Join(repoPath, name)); err == nil {
			return true
		}
	}
	return false
}

// markBare implements spec.md §4.4 step (e): flip core.bare without
// touching the directory layout.
func (m *Manager) markBare(ctx context.Context, repoPath string) error {
	result, err := m.runner.Run(ctx, "git", []string{"config", "core.bare", "true"}, runner.WithDir(repoPath))
	if err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("git config core.bare true: exit %d: %s", result.ExitCode, result.Stderr)
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
