package packagecache

import (
	"os"
	"path/filepath"
	"strings"
)

// RepositoryInfo is the in-memory record of a materialized package
// repository, returned by EnsurePackage.
type RepositoryInfo struct {
	Name string
	Path string
	Bare bool
	// GitDir is the directory Git operations should target: the
	// repository root itself if bare, or Path/.git otherwise.
	GitDir string
}

// isBare reports whether dir looks like a bare repository per spec.md
// §4.4: a HEAD file at its root and no internal .git directory.
func isBare(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "HEAD")); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return false
	}
	return true
}

func gitDirFor(repoPath string) string {
	if isBare(repoPath) {
		return repoPath
	}
	return filepath.Join(repoPath, ".git")
}

func newRepositoryInfo(name, repoPath string) *RepositoryInfo {
	return &RepositoryInfo{
		Name:   name,
		Path:   repoPath,
		Bare:   isBare(repoPath),
		GitDir: gitDirFor(repoPath),
	}
}

// ResolveGitFile implements spec.md §4.4's Git file path resolution for the
// Git gateway (C5): maps a request's path tail to an absolute file under
// the repository's Git directory.
func (info *RepositoryInfo) ResolveGitFile(tail string) string {
	tail = strings.TrimPrefix(tail, "/")

	switch {
	case tail == "info/refs":
		return filepath.Join(info.GitDir, "info", "refs")
	case tail == "HEAD":
		return filepath.Join(info.GitDir, "HEAD")
	case strings.HasPrefix(tail, "objects/"), strings.HasPrefix(tail, "refs/"):
		return filepath.Join(info.GitDir, tail)
	case strings.Contains(tail, ".git/"):
		idx := strings.Index(tail, ".git/")
		return filepath.Join(info.GitDir, tail[idx+len(".git/"):])
	default:
		return filepath.Join(info.GitDir, tail)
	}
}
