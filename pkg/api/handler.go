// Package api provides the REST surface of the BI proxy.
//
//	@title						BI Proxy API
//	@version					1.0
//	@description				Tenant-scoped, cached access to Metabase cards, KPIs and CSV ingestion.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/txn2/bi-proxy/pkg/auth"
	"github.com/txn2/bi-proxy/pkg/biproxy"
	"github.com/txn2/bi-proxy/pkg/cache"
	"github.com/txn2/bi-proxy/pkg/ingest"
	"github.com/txn2/bi-proxy/pkg/metabase"
)

const (
	// TenantHeader names the tenant when neither query nor body does.
	TenantHeader = "X-Tenant"
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"

	maxBodyBytes   = 1 << 20
	maxUploadBytes = 32 << 20
)

// BIService is the orchestrator surface used by the handler.
type BIService interface {
	DefaultTenant() string
	ExecuteCard(ctx context.Context, cardID int, params metabase.Parameters, tenant string, opts biproxy.CacheOptions) *biproxy.Result
	ExecuteMultipleCards(ctx context.Context, reqs []biproxy.CardRequest, tenant string, opts biproxy.BatchOptions) *biproxy.BatchResult
	WarmupCache(ctx context.Context, cardIDs []int, tenant string, params metabase.Parameters) *biproxy.BatchResult
	InvalidateCard(ctx context.Context, cardID int, tenant string) (int, error)
	InvalidateTenant(ctx context.Context, tenant string) (int, error)
	FlushCache(ctx context.Context) error
	CacheStats(ctx context.Context) (*cache.Stats, error)
	Status(ctx context.Context) *biproxy.Status
	TestConnection(ctx context.Context) *biproxy.ConnectionStatus
	CardInfo(ctx context.Context, cardID int) (*metabase.CardInfo, error)
	EmbedURL(cardID int, params metabase.Parameters, tenant string) (*metabase.EmbedLink, error)
	KPIs() []biproxy.KPI
	KPI(ctx context.Context, slug, tenant string) (*biproxy.KPIResult, error)
}

var _ BIService = (*biproxy.Service)(nil)

// Ingester is the CSV ingestion surface used by the handler.
type Ingester interface {
	Ingest(ctx context.Context, dataset, tenant string, r io.Reader) (*ingest.Report, error)
	IngestObject(ctx context.Context, dataset, tenant, bucket, key string) (*ingest.Report, error)
	Jobs(ctx context.Context, tenant string, limit int) ([]ingest.Job, error)
}

var _ Ingester = (*ingest.Service)(nil)

// Deps holds the handler's collaborators. Ingest is optional.
type Deps struct {
	BI     BIService
	Ingest Ingester
}

// Handler serves the REST API.
type Handler struct {
	mux        *http.ServeMux
	deps       Deps
	authMiddle func(http.Handler) http.Handler
}

// NewHandler creates the API handler. authMiddle may be nil.
func NewHandler(deps Deps, authMiddle func(http.Handler) http.Handler) *Handler {
	h := &Handler{
		mux:        http.NewServeMux(),
		deps:       deps,
		authMiddle: authMiddle,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.authMiddle != nil {
		h.authMiddle(h.mux).ServeHTTP(w, r)
		return
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /api/v1/bi/cards/{cardId}", h.executeCard)
	h.mux.HandleFunc("POST /api/v1/bi/cards/{cardId}", h.executeCard)
	h.mux.HandleFunc("POST /api/v1/bi/cards/batch", h.executeBatch)
	h.mux.HandleFunc("GET /api/v1/bi/cards/{cardId}/info", h.cardInfo)
	h.mux.HandleFunc("GET /api/v1/bi/cards/{cardId}/embed", h.embedCard)

	h.mux.HandleFunc("DELETE /api/v1/bi/cache/cards/{cardId}", h.invalidateCard)
	h.mux.HandleFunc("DELETE /api/v1/bi/cache/tenants/{tenant}", h.invalidateTenant)
	h.mux.HandleFunc("DELETE /api/v1/bi/cache", h.flushCache)
	h.mux.HandleFunc("GET /api/v1/bi/cache/stats", h.cacheStats)
	h.mux.HandleFunc("POST /api/v1/bi/cache/warmup", h.warmupCache)

	h.mux.HandleFunc("GET /api/v1/bi/status", h.status)
	h.mux.HandleFunc("GET /api/v1/bi/health", h.health)

	h.mux.HandleFunc("GET /api/v1/kpi", h.listKPIs)
	h.mux.HandleFunc("GET /api/v1/kpi/{slug}", h.kpi)

	if h.deps.Ingest != nil {
		h.mux.HandleFunc("GET /api/v1/uploads/jobs", h.listJobs)
		h.mux.HandleFunc("POST /api/v1/uploads/{dataset}", h.upload)
		h.mux.HandleFunc("POST /api/v1/uploads/{dataset}/s3", h.uploadFromS3)
	}
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody decodes an optional JSON body into v. An empty body is not an error.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// parseCardID reads a positive card id from the named path value.
func parseCardID(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(r.PathValue(name))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// resolveTenant picks the tenant from the query, then the body, then the
// X-Tenant header, then the service default.
func (h *Handler) resolveTenant(r *http.Request, bodyTenant string) string {
	if t := strings.TrimSpace(r.URL.Query().Get("tenant")); t != "" {
		return t
	}
	if t := strings.TrimSpace(bodyTenant); t != "" {
		return t
	}
	if t := strings.TrimSpace(r.Header.Get(TenantHeader)); t != "" {
		return t
	}
	return h.deps.BI.DefaultTenant()
}

// authorizeTenant writes 403 and returns false when the caller's key is
// restricted to other tenants. An empty tenant means every tenant.
func authorizeTenant(w http.ResponseWriter, r *http.Request, tenant string) bool {
	user := auth.GetUserContext(r.Context())
	if tenant == "" {
		if user != nil && len(user.Tenants) > 0 {
			writeError(w, http.StatusForbidden, "api key is restricted to specific tenants")
			return false
		}
		return true
	}
	if !user.AllowsTenant(tenant) {
		writeError(w, http.StatusForbidden, "api key is not allowed for tenant "+tenant)
		return false
	}
	return true
}

// requestID returns the caller's X-Request-ID or a new uuid, and echoes it.
func requestID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	return id
}

// engineStatus maps an engine error to an HTTP status.
func engineStatus(err error) int {
	var qe *metabase.QueryError
	switch {
	case errors.As(err, &qe) && qe.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	case errors.Is(err, metabase.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
