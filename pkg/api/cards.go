package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/txn2/bi-proxy/pkg/biproxy"
	"github.com/txn2/bi-proxy/pkg/metabase"
)

// Query keys that control a GET card request rather than fill a parameter.
var reservedQueryKeys = map[string]bool{
	"tenant":      true,
	"use_cache":   true,
	"force_fresh": true,
	"ttl":         true,
}

// cardRequest is the POST body for a single card.
type cardRequest struct {
	Tenant     string              `json:"tenant,omitempty"`
	Parameters metabase.Parameters `json:"parameters,omitempty"`
	UseCache   *bool               `json:"use_cache,omitempty"`
	ForceFresh bool                `json:"force_fresh,omitempty"`
	// TTLSeconds overrides the cache TTL for this result.
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

func (c cardRequest) cacheOptions() biproxy.CacheOptions {
	opts := biproxy.DefaultCacheOptions()
	if c.UseCache != nil {
		opts.UseCache = *c.UseCache
	}
	opts.ForceFresh = c.ForceFresh
	if c.TTLSeconds > 0 {
		opts.CustomTTL = time.Duration(c.TTLSeconds) * time.Second
	}
	return opts
}

// cardRequestFromQuery builds a request from query parameters. Keys other
// than the reserved ones become card parameters.
func cardRequestFromQuery(q url.Values) (cardRequest, error) {
	var req cardRequest
	if v := q.Get("use_cache"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, errors.New("use_cache must be a boolean")
		}
		req.UseCache = &b
	}
	if v := q.Get("force_fresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, errors.New("force_fresh must be a boolean")
		}
		req.ForceFresh = b
	}
	if v := q.Get("ttl"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, errors.New("ttl must be a non-negative number of seconds")
		}
		req.TTLSeconds = n
	}
	for k, vs := range q {
		if reservedQueryKeys[k] || len(vs) == 0 {
			continue
		}
		if req.Parameters == nil {
			req.Parameters = metabase.Parameters{}
		}
		req.Parameters[k] = vs[0]
	}
	return req, nil
}

// executeCard runs one card.
//
// @Summary      Execute a card
// @Description  Runs a Metabase card for a tenant, serving from cache when possible. GET requests take parameters from the query string.
// @Tags         Cards
// @Accept       json
// @Produce      json
// @Param        cardId  path      integer      true   "Card ID"
// @Param        tenant  query     string       false  "Tenant (default: X-Tenant header or configured default)"
// @Param        body    body      cardRequest  false  "Parameters and cache options (POST only)"
// @Success      200     {object}  biproxy.Result
// @Failure      400     {object}  errorResponse
// @Failure      502     {object}  biproxy.Result
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /bi/cards/{cardId} [get]
// @Router       /bi/cards/{cardId} [post]
func (h *Handler) executeCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := parseCardID(r, "cardId")
	if !ok {
		writeError(w, http.StatusBadRequest, "card id must be a positive integer")
		return
	}

	var (
		req cardRequest
		err error
	)
	if r.Method == http.MethodGet {
		req, err = cardRequestFromQuery(r.URL.Query())
	} else {
		err = decodeBody(r, &req)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	tenant := h.resolveTenant(r, req.Tenant)
	if !authorizeTenant(w, r, tenant) {
		return
	}

	id := requestID(w, r)
	res := h.deps.BI.ExecuteCard(r.Context(), cardID, req.Parameters, tenant, req.cacheOptions())
	res.RequestID = id
	if !res.Success {
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// batchCard is one entry of a batch request.
type batchCard struct {
	RequestID  string              `json:"request_id,omitempty"`
	CardID     int                 `json:"card_id"`
	Parameters metabase.Parameters `json:"parameters,omitempty"`
	TTLSeconds int                 `json:"ttl_seconds,omitempty"`
}

// batchRequest is the body of a batch execution.
type batchRequest struct {
	Tenant        string      `json:"tenant,omitempty"`
	Cards         []batchCard `json:"cards"`
	UseCache      *bool       `json:"use_cache,omitempty"`
	ForceFresh    bool        `json:"force_fresh,omitempty"`
	MaxConcurrent int         `json:"max_concurrent,omitempty"`
}

// executeBatch runs several cards.
//
// @Summary      Execute cards in batch
// @Description  Runs cards in bounded concurrent chunks. One card failing does not affect the others.
// @Tags         Cards
// @Accept       json
// @Produce      json
// @Param        body  body      batchRequest  true  "Cards to execute"
// @Success      200   {object}  biproxy.BatchResult
// @Failure      400   {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /bi/cards/batch [post]
func (h *Handler) executeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if len(req.Cards) == 0 {
		writeError(w, http.StatusBadRequest, "cards is required")
		return
	}

	reqs := make([]biproxy.CardRequest, 0, len(req.Cards))
	for i, c := range req.Cards {
		if c.CardID <= 0 {
			writeError(w, http.StatusBadRequest, "cards["+strconv.Itoa(i)+"].card_id must be a positive integer")
			return
		}
		reqs = append(reqs, biproxy.CardRequest{
			RequestID:  c.RequestID,
			CardID:     c.CardID,
			Parameters: c.Parameters,
			CustomTTL:  time.Duration(c.TTLSeconds) * time.Second,
		})
	}

	tenant := h.resolveTenant(r, req.Tenant)
	if !authorizeTenant(w, r, tenant) {
		return
	}

	opts := biproxy.DefaultBatchOptions()
	if req.UseCache != nil {
		opts.UseCache = *req.UseCache
	}
	opts.ForceFresh = req.ForceFresh
	opts.MaxConcurrent = req.MaxConcurrent

	requestID(w, r)
	writeJSON(w, http.StatusOK, h.deps.BI.ExecuteMultipleCards(r.Context(), reqs, tenant, opts))
}

// cardInfo returns card metadata.
//
// @Summary      Get card info
// @Description  Returns the card's metadata from Metabase. Not cached.
// @Tags         Cards
// @Produce      json
// @Param        cardId  path      integer  true  "Card ID"
// @Success      200     {object}  metabase.CardInfo
// @Failure      400     {object}  errorResponse
// @Failure      404     {object}  errorResponse
// @Failure      502     {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /bi/cards/{cardId}/info [get]
func (h *Handler) cardInfo(w http.ResponseWriter, r *http.Request) {
	cardID, ok := parseCardID(r, "cardId")
	if !ok {
		writeError(w, http.StatusBadRequest, "card id must be a positive integer")
		return
	}

	info, err := h.deps.BI.CardInfo(r.Context(), cardID)
	if err != nil {
		writeError(w, engineStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// embedCard returns a browser link for a card.
//
// @Summary      Get card embed URL
// @Description  Returns a signed embed URL when an embedding secret is configured, else a plain question link. Query parameters other than tenant are locked into the link.
// @Tags         Cards
// @Produce      json
// @Param        cardId  path      integer  true   "Card ID"
// @Param        tenant  query     string   false  "Tenant"
// @Success      200     {object}  metabase.EmbedLink
// @Failure      400     {object}  errorResponse
// @Failure      501     {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /bi/cards/{cardId}/embed [get]
func (h *Handler) embedCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := parseCardID(r, "cardId")
	if !ok {
		writeError(w, http.StatusBadRequest, "card id must be a positive integer")
		return
	}
	req, err := cardRequestFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	tenant := h.resolveTenant(r, "")
	if !authorizeTenant(w, r, tenant) {
		return
	}

	link, err := h.deps.BI.EmbedURL(cardID, req.Parameters, tenant)
	switch {
	case errors.Is(err, biproxy.ErrEmbeddingDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, link)
	}
}
