package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/l0p7/aquacache/internal/cache"
	"github.com/l0p7/aquacache/internal/client"
	"github.com/l0p7/aquacache/internal/collection"
	"github.com/l0p7/aquacache/internal/config"
)

// ListView pairs a declared view with the indexed structures serving it.
type ListView struct {
	Path string
	View *collection.View[collection.Record]
}

// BuildViews materializes the configured list views.
func BuildViews(views []config.ViewConfig) map[string]*ListView {
	out := make(map[string]*ListView, len(views))
	for _, vc := range views {
		out[vc.Name] = &ListView{
			Path: vc.Path,
			View: collection.NewView(
				collection.FieldKey(vc.KeyField),
				collection.FieldStrings(vc.SearchFields...),
			),
		}
	}
	return out
}

// Router serves the caching proxy surface: /api reads and mutations,
// /views search and selection, and /cache/stats.
type Router struct {
	client   *client.Client
	upstream *client.Upstream
	views    map[string]*ListView
	logger   *slog.Logger
}

// NewRouter wires the HTTP surface over the client facade.
func NewRouter(c *client.Client, upstream *client.Upstream, views map[string]*ListView, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	router := &Router{
		client:   c,
		upstream: upstream,
		views:    views,
		logger:   logger.With(slog.String("component", "router")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/", router.handleRead)
	mux.HandleFunc("POST /api/", router.handleMutation)
	mux.HandleFunc("PUT /api/", router.handleMutation)
	mux.HandleFunc("DELETE /api/", router.handleMutation)
	mux.HandleFunc("GET /views/{name}", router.handleViewSearch)
	mux.HandleFunc("GET /views/{name}/selection", router.handleSelectionList)
	mux.HandleFunc("POST /views/{name}/selection", router.handleSelectionToggle)
	mux.HandleFunc("DELETE /views/{name}/selection", router.handleSelectionClear)
	mux.HandleFunc("GET /cache/stats", router.handleStats)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// handleRead proxies a GET through the strategy engine and labels the
// response with how the cache served it.
func (rt *Router) handleRead(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	params := flattenQuery(r.URL.Query())

	result, err := rt.client.Get(r.Context(), path, params, rt.upstream.Fetch(http.MethodGet, path, params, nil))
	if err != nil {
		rt.writeFetchError(w, path, err)
		return
	}
	w.Header().Set("X-Cache", cacheLabel(result))
	writeJSON(w, http.StatusOK, result.Value)
}

// handleMutation forwards the write upstream and lets the client purge
// related cache entries afterwards.
func (rt *Router) handleMutation(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		http.Error(w, "unreadable request body", http.StatusBadRequest)
		return
	}

	fetch := rt.upstream.Fetch(r.Method, path, nil, body)
	var value any
	switch r.Method {
	case http.MethodPost:
		value, err = rt.client.Post(r.Context(), path, fetch)
	case http.MethodPut:
		value, err = rt.client.Put(r.Context(), path, fetch)
	default:
		value, err = rt.client.Delete(r.Context(), path, fetch)
	}
	if err != nil {
		rt.writeFetchError(w, path, err)
		return
	}
	if value == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

// handleViewSearch refreshes the view from the cached list endpoint and
// serves the search result. The list fetch rides the same strategy
// engine as /api reads, so repeated searches cost no network calls
// while the entry stays fresh.
func (rt *Router) handleViewSearch(w http.ResponseWriter, r *http.Request) {
	lv, ok := rt.views[r.PathValue("name")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	result, err := rt.client.Get(r.Context(), lv.Path, nil, rt.upstream.Fetch(http.MethodGet, lv.Path, nil, nil))
	if err != nil {
		rt.writeFetchError(w, lv.Path, err)
		return
	}
	lv.View.Replace(toRecords(result.Value))

	records := lv.View.Search(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
		"stale":   result.Stale,
	})
}

func (rt *Router) handleSelectionList(w http.ResponseWriter, r *http.Request) {
	lv, ok := rt.views[r.PathValue("name")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": lv.View.Selected()})
}

func (rt *Router) handleSelectionToggle(w http.ResponseWriter, r *http.Request) {
	lv, ok := rt.views[r.PathValue("name")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Get("all") == "true" {
		lv.View.SelectAll()
		writeJSON(w, http.StatusOK, map[string]any{"selected": lv.View.Selected()})
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key or all=true required", http.StatusBadRequest)
		return
	}
	if !lv.View.Toggle(key) {
		http.Error(w, "unknown record key", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": lv.View.Selected()})
}

func (rt *Router) handleSelectionClear(w http.ResponseWriter, r *http.Request) {
	lv, ok := rt.views[r.PathValue("name")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	lv.View.DeselectAll()
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.client.Stats(r.Context())
	if err != nil {
		rt.logger.Error("stats unavailable", slog.Any("error", err))
		http.Error(w, "stats unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeFetchError relays upstream HTTP failures verbatim and maps
// transport failures to 502, so callers see real errors rather than
// silently empty results.
func (rt *Router) writeFetchError(w http.ResponseWriter, path string, err error) {
	if statusErr, ok := client.IsStatusError(err); ok {
		rt.logger.Warn("upstream rejected request",
			slog.String("path", path), slog.Int("status", statusErr.StatusCode))
		http.Error(w, statusErr.Body, statusErr.StatusCode)
		return
	}
	rt.logger.Error("upstream fetch failed", slog.String("path", path), slog.Any("error", err))
	http.Error(w, "upstream unavailable", http.StatusBadGateway)
}

func cacheLabel(result cache.Result) string {
	switch {
	case result.Stale:
		return "stale"
	case result.FromCache:
		return "hit"
	default:
		return "miss"
	}
}

func toRecords(value any) []collection.Record {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	records := make([]collection.Record, 0, len(items))
	for _, item := range items {
		if record, ok := item.(collection.Record); ok {
			records = append(records, record)
		}
	}
	return records
}

func flattenQuery(values map[string][]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	params := make(map[string]string, len(values))
	for name, list := range values {
		if len(list) > 0 {
			params[name] = list[0]
		}
	}
	return params
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
