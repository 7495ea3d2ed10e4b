package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/discordwell/vibariant/resultcache"
)

// CacheHandler handles result-cache admin REST endpoints.
type CacheHandler struct {
	cache  *resultcache.Cache
	logger zerolog.Logger
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(cache *resultcache.Cache, logger zerolog.Logger) *CacheHandler {
	return &CacheHandler{
		cache:  cache,
		logger: logger.With().Str("handler", "cache").Logger(),
	}
}

// Stats handles GET /v1/cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// FlushNamespace handles DELETE /v1/cache/{namespace}.
func (h *CacheHandler) FlushNamespace(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	count := h.cache.FlushNamespace(namespace)
	h.logger.Info().Str("namespace", namespace).Int("evicted", count).Msg("cache namespace flushed")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"flushed":   true,
		"namespace": namespace,
		"evicted":   count,
	})
}

// FlushAll handles DELETE /v1/cache.
func (h *CacheHandler) FlushAll(w http.ResponseWriter, r *http.Request) {
	count := h.cache.FlushAll()
	h.logger.Info().Int("evicted", count).Msg("full cache flush")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"flushed": true,
		"evicted": count,
	})
}

// InvalidateEntry handles DELETE /v1/cache/{namespace}/{fingerprint}.
func (h *CacheHandler) InvalidateEntry(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	fingerprint := chi.URLParam(r, "fingerprint")

	found := h.cache.Invalidate(namespace, fingerprint)
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "cache entry not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invalidated": true,
		"namespace":   namespace,
		"fingerprint": fingerprint,
	})
}
