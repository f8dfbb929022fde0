// Package gitgateway implements the Git smart-HTTP gateway (C5): it
// classifies inbound requests, ensures the target package is materialized,
// and dispatches to the subprocess runner or to a static file stream,
// framing responses per Git's packet-line protocol.
package gitgateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aurcache/aurcache/internal/apperr"
	"github.com/aurcache/aurcache/internal/packagecache"
	"github.com/aurcache/aurcache/internal/runner"
	"github.com/aurcache/aurcache/internal/store"
)

const notFoundBody = "Repository not found in cache and could not be fetched from upstream"

const (
	uploadPackAdvertiseHeader  = "001e# service=git-upload-pack\n0000"
	receivePackAdvertiseHeader = "001f# service=git-receive-pack\n0000"
)

// Executor is the subset of *runner.Runner the gateway needs. Tests inject
// a fake to exercise dispatch without a real git binary.
type Executor interface {
	Run(ctx context.Context, name string, args []string, opts ...runner.Option) (*runner.Result, error)
	StartStream(ctx context.Context, name string, args []string, opts ...runner.Option) (*runner.Stream, error)
}

// Manager is the subset of *packagecache.Manager the gateway needs.
type Manager interface {
	EnsurePackage(ctx context.Context, name string) (*packagecache.RepositoryInfo, error)
}

// Gateway dispatches classified Git requests.
type Gateway struct {
	manager Manager
	store   *store.Store
	runner  Executor
	logger  *slog.Logger
}

// New creates a Gateway.
func New(manager Manager, st *store.Store, r Executor, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{manager: manager, store: st, runner: r, logger: logger}
}

// ServeHTTP implements the dispatch table from spec.md §4.5.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := PackageName(r.URL.Path)

	// Detach from the request's cancellation: per spec.md §5, client
	// disconnects must not cascade into killing in-flight subprocess work.
	ctx := context.WithoutCancel(r.Context())

	info, err := g.manager.EnsurePackage(ctx, name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(notFoundBody))
			return
		}
		g.logger.Error("ensure_package failed", "package", name, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	switch {
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "git-upload-pack"):
		g.handlePack(w, r, ctx, info, name, "git-upload-pack", "application/x-git-upload-pack-result")
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "git-receive-pack"):
		g.handlePack(w, r, ctx, info, name, "git-receive-pack", "application/x-git-receive-pack-result")
	case r.Method == http.MethodGet && r.URL.Query().Get("service") == "git-upload-pack":
		g.handleAdvertise(w, ctx, info, name, "git-upload-pack", uploadPackAdvertiseHeader, "application/x-git-upload-pack-advertisement")
	case r.Method == http.MethodGet && r.URL.Query().Get("service") == "git-receive-pack":
		g.handleAdvertise(w, ctx, info, name, "git-receive-pack", receivePackAdvertiseHeader, "application/x-git-receive-pack-advertisement")
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/info/refs"):
		g.handleStaticRefs(w, info, name, r.URL.Path)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/HEAD"):
		g.handleStaticHead(w, info, name, r.URL.Path)
	case r.Method == http.MethodGet && (strings.Contains(r.URL.Path, "/objects/") || strings.Contains(r.URL.Path, "/refs/") || strings.Contains(r.URL.Path, ".git/")):
		g.handleStaticObject(w, info, name, r.URL.Path)
	case r.Method == http.MethodGet:
		http.Redirect(w, r, r.URL.String()+"/info/refs?service=git-upload-pack", http.StatusFound)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handlePack runs a batched upload-pack/receive-pack invocation with the
// request body as stdin, per spec.md §4.5's POST rows.
func (g *Gateway) handlePack(w http.ResponseWriter, r *http.Request, ctx context.Context, info *packagecache.RepositoryInfo, name, program, contentType string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	result, err := g.runner.Run(ctx, program, []string{"--stateless-rpc", info.GitDir}, runner.WithStdin(body))
	if err != nil || !result.OK {
		g.logger.Error("pack subprocess failed", "package", name, "program", program, "err", err)
		http.Error(w, string(result.Stderr), http.StatusInternalServerError)
		return
	}

	g.touchAccess(name)
	g.touchMeaningful(name)

	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(result.Stdout)
}

// handleAdvertise streams a --advertise-refs response, prepending the
// packet-line service header.
func (g *Gateway) handleAdvertise(w http.ResponseWriter, ctx context.Context, info *packagecache.RepositoryInfo, name, program, header, contentType string) {
	stream, err := g.runner.StartStream(ctx, program, []string{"--stateless-rpc", "--advertise-refs", info.GitDir})
	if err != nil {
		g.logger.Error("advertise-refs subprocess failed to start", "package", name, "program", program, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache, max-age=0, must-revalidate")
	_, _ = io.WriteString(w, header)
	_, _ = io.Copy(w, stream.Stdout)

	if err := stream.Wait(); err != nil {
		g.logger.Warn("advertise-refs subprocess exited with error", "package", name, "program", program, "err", err)
	}

	g.touchAccess(name)
}

func (g *Gateway) handleStaticRefs(w http.ResponseWriter, info *packagecache.RepositoryInfo, name, path string) {
	file := info.ResolveGitFile(gitFileTail(path))
	if !g.streamFile(w, file, "text/plain") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	g.touchAccess(name)
}

func (g *Gateway) handleStaticHead(w http.ResponseWriter, info *packagecache.RepositoryInfo, name, path string) {
	file := info.ResolveGitFile(gitFileTail(path))
	if !g.streamFile(w, file, "text/plain") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	g.touchAccess(name)
}

func (g *Gateway) handleStaticObject(w http.ResponseWriter, info *packagecache.RepositoryInfo, name, path string) {
	file := info.ResolveGitFile(gitFileTail(path))
	if !g.streamFile(w, file, "application/octet-stream") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	g.touchAccess(name)
	g.touchMeaningful(name)
}

func (g *Gateway) streamFile(w http.ResponseWriter, path, contentType string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, f); err != nil {
		g.logger.Warn("failed to stream static git file", "path", path, "err", err)
	}
	return true
}

func (g *Gateway) touchAccess(name string) {
	if err := g.store.TouchAccess(name); err != nil {
		g.logger.Warn("touch_access failed", "package", name, "err", err)
	}
}

func (g *Gateway) touchMeaningful(name string) {
	if err := g.store.TouchMeaningful(name); err != nil {
		g.logger.Warn("touch_meaningful failed", "package", name, "err", err)
	}
}
