// Package httpapi implements the HTTP router (C7): it classifies inbound
// requests into the stats, RPC, and Git lanes per spec.md §6, and answers
// anything unmatched with a plain-text echo.
package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aurcache/aurcache/internal/gitgateway"
	"github.com/aurcache/aurcache/internal/store"
)

const welcomeText = "aurcache: caching Git proxy for a package repository\n"

// Router builds the top-level mux and owns the lane handlers.
type Router struct {
	store          *store.Store
	cacheRoot      string
	gateway        http.Handler
	translator     http.Handler
	maxUploadBytes int64
	logger         *slog.Logger

	mux *http.ServeMux
}

// New builds the HTTP router. gateway and translator are the handlers for
// the Git (C5) and RPC (C6) lanes respectively.
func New(st *store.Store, cacheRoot string, gateway, translator http.Handler, maxUploadBytes int64, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	rt := &Router{
		store:          st,
		cacheRoot:      cacheRoot,
		gateway:        gateway,
		translator:     translator,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
	rt.routes()
	return rt
}

func (rt *Router) routes() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", rt.handleWelcome)
	mux.HandleFunc("GET /stats", rt.handleStats)
	mux.HandleFunc("GET /stats/top-fetched", rt.handleTopFetched)
	mux.HandleFunc("GET /stats/top-requested", rt.handleTopRequested)

	mux.Handle("/rpc", rt.translator)
	mux.Handle("/rpc/", rt.translator)

	// Least specific: anything not matched above is classified by the
	// Git predicate or echoed back, per spec.md §6's final table row.
	mux.HandleFunc("/", rt.handleCatchAll)

	rt.mux = mux
}

// ServeHTTP implements http.Handler, applying recovery and access logging
// around the route table.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	RecoveryMiddleware(rt.logger)(LoggingMiddleware(rt.logger)(rt.mux)).ServeHTTP(w, r)
}

func (rt *Router) handleWelcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprint(w, welcomeText)
}

func (rt *Router) handleCatchAll(w http.ResponseWriter, r *http.Request) {
	if gitgateway.IsGitRequest(r.URL.Path) {
		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
		}
		rt.gateway.ServeHTTP(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "%s %s\n", r.Method, r.URL.String())
}
