package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const defaultStatsLimit = 10

func (rt *Router) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.store.StatsSummary(rt.cacheRoot)
	if err != nil {
		rt.logger.Error("stats() failed", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, stats)
}

func (rt *Router) handleTopFetched(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultStatsLimit)
	top, err := rt.store.TopFetched(limit)
	if err != nil {
		rt.logger.Error("top_fetched() failed", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, top)
}

func (rt *Router) handleTopRequested(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultStatsLimit)
	top, err := rt.store.TopRequested(limit)
	if err != nil {
		rt.logger.Error("top_requested() failed", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, top)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSONResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
