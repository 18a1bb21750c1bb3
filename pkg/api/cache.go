package api

import (
	"net/http"
	"strings"

	"github.com/txn2/bi-proxy/pkg/metabase"
)

// invalidateResponse reports how many cache entries were removed.
type invalidateResponse struct {
	CardID      int    `json:"card_id,omitempty"`
	Tenant      string `json:"tenant,omitempty"`
	Invalidated int    `json:"invalidated"`
}

// invalidateCard drops cached results for a card.
//
// @Summary      Invalidate a card
// @Description  Removes every cached result for the card. With tenant, only that tenant's results are removed.
// @Tags         Cache
// @Produce      json
// @Param        cardId  path      integer  true   "Card ID"
// @Param        tenant  query     string   false  "Restrict to one tenant"
// @Success      200     {object}  invalidateResponse
// @Failure      400     {object}  errorResponse
// @Failure      500     {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /bi/cache/cards/{cardId} [delete]
func (h *Handler) invalidateCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := parseCardID(r, "cardId")
	if !ok {
		writeError(w, http.StatusBadRequest, "card id must be a positive integer")
		return
	}
	tenant := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if !authorizeTenant(w, r, tenant) {
		return
	}

	n, err := h.deps.BI.InvalidateCard(r.Context(), cardID, tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, invalidateResponse{CardID: cardID, Tenant: tenant, Invalidated: n})
}

// invalidateTenant drops every cached result for a tenant.
//
// @Summary      Invalidate a tenant
// @Tags         Cache
// @Produce      json
// @Param        tenant  path      string  true  "Tenant"
// @Success      200     {object}  invalidateResponse
// @Failure      500     {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /bi/cache/tenants/{tenant} [delete]
func (h *Handler) invalidateTenant(w http.ResponseWriter, r *http.Request) {
	tenant := strings.TrimSpace(r.PathValue("tenant"))
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "tenant is required")
		return
	}
	if !authorizeTenant(w, r, tenant) {
		return
	}

	n, err := h.deps.BI.InvalidateTenant(r.Context(), tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, invalidateResponse{Tenant: tenant, Invalidated: n})
}

// flushCache drops everything.
//
// @Summary      Flush the cache
// @Tags         Cache
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure      403  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /bi/cache [delete]
func (h *Handler) flushCache(w http.ResponseWriter, r *http.Request) {
	if !authorizeTenant(w, r, "") {
		return
	}
	if err := h.deps.BI.FlushCache(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"flushed": true})
}

// cacheStats reports cache counters.
//
// @Summary      Cache statistics
// @Tags         Cache
// @Produce      json
// @Success      200  {object}  cache.Stats
// @Failure      500  {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /bi/cache/stats [get]
func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.BI.CacheStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// warmupRequest lists the cards to prefetch.
type warmupRequest struct {
	Tenant     string              `json:"tenant,omitempty"`
	CardIDs    []int               `json:"card_ids"`
	Parameters metabase.Parameters `json:"parameters,omitempty"`
}

// warmupCache prefetches cards into the cache.
//
// @Summary      Warm up the cache
// @Description  Fetches the cards fresh from Metabase and stores the results for the tenant.
// @Tags         Cache
// @Accept       json
// @Produce      json
// @Param        body  body      warmupRequest  true  "Cards to prefetch"
// @Success      200   {object}  biproxy.BatchResult
// @Failure      400   {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /bi/cache/warmup [post]
func (h *Handler) warmupCache(w http.ResponseWriter, r *http.Request) {
	var req warmupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if len(req.CardIDs) == 0 {
		writeError(w, http.StatusBadRequest, "card_ids is required")
		return
	}
	for _, id := range req.CardIDs {
		if id <= 0 {
			writeError(w, http.StatusBadRequest, "card ids must be positive integers")
			return
		}
	}

	tenant := h.resolveTenant(r, req.Tenant)
	if !authorizeTenant(w, r, tenant) {
		return
	}
	writeJSON(w, http.StatusOK, h.deps.BI.WarmupCache(r.Context(), req.CardIDs, tenant, req.Parameters))
}
