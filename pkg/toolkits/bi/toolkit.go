// Package bi exposes the BI proxy to MCP clients as tools and a card
// resource template.
package bi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yosida95/uritemplate/v3"

	"github.com/txn2/bi-proxy/pkg/auth"
	"github.com/txn2/bi-proxy/pkg/biproxy"
	"github.com/txn2/bi-proxy/pkg/cache"
	"github.com/txn2/bi-proxy/pkg/metabase"
)

// Tool names.
const (
	toolExecuteCard     = "bi_execute_card"
	toolExecuteCards    = "bi_execute_cards"
	toolInvalidateCache = "bi_invalidate_cache"
	toolCacheStats      = "bi_cache_stats"
	toolStatus          = "bi_status"
	toolWarmupCache     = "bi_warmup_cache"
	toolKPI             = "bi_kpi"
)

// CardTemplateURI addresses a cached card result for a tenant.
const CardTemplateURI = "bi-card://{tenant}/{card_id}"

// Invalidation scopes.
const (
	scopeCard   = "card"
	scopeTenant = "tenant"
	scopeAll    = "all"
)

// Service is the orchestrator surface used by the toolkit.
type Service interface {
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
	KPIs() []biproxy.KPI
	KPI(ctx context.Context, slug, tenant string) (*biproxy.KPIResult, error)
}

var _ Service = (*biproxy.Service)(nil)

// Toolkit registers the BI tools on an MCP server.
type Toolkit struct {
	name string
	svc  Service
	tmpl *uritemplate.Template
}

// New creates a BI toolkit.
func New(name string, svc Service) (*Toolkit, error) {
	if svc == nil {
		return nil, errors.New("bi toolkit requires a service")
	}
	tmpl, err := uritemplate.New(CardTemplateURI)
	if err != nil {
		return nil, fmt.Errorf("invalid template %q: %w", CardTemplateURI, err)
	}
	return &Toolkit{name: name, svc: svc, tmpl: tmpl}, nil
}

// Kind returns the toolkit kind.
func (*Toolkit) Kind() string {
	return "bi"
}

// Name returns the toolkit instance name.
func (t *Toolkit) Name() string {
	return t.name
}

// Tools returns the tool names provided by this toolkit.
func (*Toolkit) Tools() []string {
	return []string{
		toolExecuteCard, toolExecuteCards, toolInvalidateCache, toolCacheStats,
		toolStatus, toolWarmupCache, toolKPI,
	}
}

// Close releases resources.
func (*Toolkit) Close() error {
	return nil
}

type executeCardInput struct {
	CardID     int            `json:"card_id" jsonschema:"Metabase card (saved question) id"`
	Tenant     string         `json:"tenant,omitempty" jsonschema:"tenant to run the card for; defaults to the configured tenant"`
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"template tag values keyed by tag name"`
	UseCache   *bool          `json:"use_cache,omitempty" jsonschema:"read and write the cache (default true)"`
	ForceFresh bool           `json:"force_fresh,omitempty" jsonschema:"skip the cache lookup but store the fresh result"`
	TTLSeconds int            `json:"ttl_seconds,omitempty" jsonschema:"cache lifetime for this result in seconds"`
}

type batchCardInput struct {
	RequestID  string         `json:"request_id,omitempty"`
	CardID     int            `json:"card_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type executeCardsInput struct {
	Tenant        string           `json:"tenant,omitempty"`
	Cards         []batchCardInput `json:"cards" jsonschema:"cards to execute"`
	UseCache      *bool            `json:"use_cache,omitempty"`
	ForceFresh    bool             `json:"force_fresh,omitempty"`
	MaxConcurrent int              `json:"max_concurrent,omitempty" jsonschema:"cards executed at once (default 5)"`
}

type invalidateInput struct {
	Scope  string `json:"scope" jsonschema:"card, tenant or all"`
	CardID int    `json:"card_id,omitempty" jsonschema:"card to invalidate when scope is card"`
	Tenant string `json:"tenant,omitempty" jsonschema:"tenant to invalidate; with scope card, limits the card invalidation to this tenant"`
}

type invalidateOutput struct {
	Scope       string `json:"scope"`
	CardID      int    `json:"card_id,omitempty"`
	Tenant      string `json:"tenant,omitempty"`
	Invalidated int    `json:"invalidated"`
}

type emptyInput struct{}

type statusInput struct {
	TestConnection bool `json:"test_connection,omitempty" jsonschema:"also check that Metabase answers its health endpoint"`
}

type statusOutput struct {
	*biproxy.Status
	Connection *biproxy.ConnectionStatus `json:"connection,omitempty"`
}

type warmupInput struct {
	Tenant     string         `json:"tenant,omitempty"`
	CardIDs    []int          `json:"card_ids" jsonschema:"cards to prefetch"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type kpiInput struct {
	Slug   string `json:"slug,omitempty" jsonschema:"KPI slug; omit to list the configured KPIs"`
	Tenant string `json:"tenant,omitempty"`
}

// RegisterTools registers the BI tools with the MCP server.
func (t *Toolkit) RegisterTools(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: toolExecuteCard,
		Description: "Runs a Metabase card for a tenant and returns its rows as records keyed by column display name. " +
			"Results are cached per card, parameters and tenant.",
	}, t.handleExecuteCard)

	mcp.AddTool(s, &mcp.Tool{
		Name:        toolExecuteCards,
		Description: "Runs several Metabase cards for one tenant. Each card succeeds or fails on its own; the summary counts both.",
	}, t.handleExecuteCards)

	mcp.AddTool(s, &mcp.Tool{
		Name:        toolInvalidateCache,
		Description: "Removes cached card results for one card, one tenant, or everything.",
	}, t.handleInvalidate)

	mcp.AddTool(s, &mcp.Tool{
		Name:        toolCacheStats,
		Description: "Returns cache hit and miss counters, size, and the cached entries with their remaining lifetime.",
	}, t.handleCacheStats)

	mcp.AddTool(s, &mcp.Tool{
		Name:        toolStatus,
		Description: "Reports whether the proxy holds a Metabase session, cache statistics and uptime.",
	}, t.handleStatus)

	mcp.AddTool(s, &mcp.Tool{
		Name:        toolWarmupCache,
		Description: "Fetches cards fresh from Metabase and stores the results so later requests hit the cache.",
	}, t.handleWarmup)

	mcp.AddTool(s, &mcp.Tool{
		Name:        toolKPI,
		Description: "Returns a configured KPI normalized as a scalar, table or timeseries. Without a slug, lists the KPIs.",
	}, t.handleKPI)
}

// RegisterResources registers the card resource template.
func (t *Toolkit) RegisterResources(s *mcp.Server) {
	s.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: CardTemplateURI,
		Name:        "BI Card Result",
		Description: "Cached result of a Metabase card for a tenant, executed on a miss",
		MIMEType:    "application/json",
	}, t.handleCardResource)
}

func (t *Toolkit) handleExecuteCard(ctx context.Context, _ *mcp.CallToolRequest, in executeCardInput) (*mcp.CallToolResult, any, error) {
	if in.CardID <= 0 {
		return errorResult("card_id must be a positive integer"), nil, nil
	}
	tenant, err := t.tenant(ctx, in.Tenant)
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}

	opts := biproxy.DefaultCacheOptions()
	if in.UseCache != nil {
		opts.UseCache = *in.UseCache
	}
	opts.ForceFresh = in.ForceFresh
	if in.TTLSeconds > 0 {
		opts.CustomTTL = time.Duration(in.TTLSeconds) * time.Second
	}

	res := t.svc.ExecuteCard(ctx, in.CardID, in.Parameters, tenant, opts)
	return jsonResult(res, !res.Success)
}

func (t *Toolkit) handleExecuteCards(ctx context.Context, _ *mcp.CallToolRequest, in executeCardsInput) (*mcp.CallToolResult, any, error) {
	if len(in.Cards) == 0 {
		return errorResult("cards is required"), nil, nil
	}
	reqs := make([]biproxy.CardRequest, 0, len(in.Cards))
	for i, c := range in.Cards {
		if c.CardID <= 0 {
			return errorResult(fmt.Sprintf("cards[%d].card_id must be a positive integer", i)), nil, nil
		}
		reqs = append(reqs, biproxy.CardRequest{RequestID: c.RequestID, CardID: c.CardID, Parameters: c.Parameters})
	}
	tenant, err := t.tenant(ctx, in.Tenant)
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}

	opts := biproxy.DefaultBatchOptions()
	if in.UseCache != nil {
		opts.UseCache = *in.UseCache
	}
	opts.ForceFresh = in.ForceFresh
	opts.MaxConcurrent = in.MaxConcurrent

	return jsonResult(t.svc.ExecuteMultipleCards(ctx, reqs, tenant, opts), false)
}

func (t *Toolkit) handleInvalidate(ctx context.Context, _ *mcp.CallToolRequest, in invalidateInput) (*mcp.CallToolResult, any, error) {
	out := invalidateOutput{Scope: in.Scope, CardID: in.CardID, Tenant: in.Tenant}
	var err error

	switch in.Scope {
	case scopeCard:
		if in.CardID <= 0 {
			return errorResult("card_id must be a positive integer"), nil, nil
		}
		if !auth.GetUserContext(ctx).AllowsTenant(in.Tenant) {
			return errorResult("api key is not allowed for this tenant"), nil, nil
		}
		out.Invalidated, err = t.svc.InvalidateCard(ctx, in.CardID, in.Tenant)
	case scopeTenant:
		out.Tenant, err = t.tenant(ctx, in.Tenant)
		if err != nil {
			return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
		}
		out.Invalidated, err = t.svc.InvalidateTenant(ctx, out.Tenant)
	case scopeAll:
		if restricted(ctx) {
			return errorResult("api key is restricted to specific tenants"), nil, nil
		}
		err = t.svc.FlushCache(ctx)
	default:
		return errorResult(fmt.Sprintf("scope must be %q, %q or %q", scopeCard, scopeTenant, scopeAll)), nil, nil
	}
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(out, false)
}

func (t *Toolkit) handleCacheStats(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	stats, err := t.svc.CacheStats(ctx)
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(stats, false)
}

func (t *Toolkit) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, in statusInput) (*mcp.CallToolResult, any, error) {
	out := statusOutput{Status: t.svc.Status(ctx)}
	if in.TestConnection {
		out.Connection = t.svc.TestConnection(ctx)
	}
	return jsonResult(out, false)
}

func (t *Toolkit) handleWarmup(ctx context.Context, _ *mcp.CallToolRequest, in warmupInput) (*mcp.CallToolResult, any, error) {
	if len(in.CardIDs) == 0 {
		return errorResult("card_ids is required"), nil, nil
	}
	for _, id := range in.CardIDs {
		if id <= 0 {
			return errorResult("card ids must be positive integers"), nil, nil
		}
	}
	tenant, err := t.tenant(ctx, in.Tenant)
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(t.svc.WarmupCache(ctx, in.CardIDs, tenant, in.Parameters), false)
}

func (t *Toolkit) handleKPI(ctx context.Context, _ *mcp.CallToolRequest, in kpiInput) (*mcp.CallToolResult, any, error) {
	if in.Slug == "" {
		return jsonResult(t.svc.KPIs(), false)
	}
	tenant, err := t.tenant(ctx, in.Tenant)
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	res, err := t.svc.KPI(ctx, in.Slug, tenant)
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(res, false)
}

// handleCardResource handles bi-card://{tenant}/{card_id} requests.
func (t *Toolkit) handleCardResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	match := t.tmpl.Match(uri)
	if match == nil {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}

	tenant := match.Get("tenant").String()
	cardID, err := strconv.Atoi(match.Get("card_id").String())
	if err != nil || cardID <= 0 || tenant == "" {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}
	if !auth.GetUserContext(ctx).AllowsTenant(tenant) {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}

	res := t.svc.ExecuteCard(ctx, cardID, nil, tenant, biproxy.DefaultCacheOptions())
	if !res.Success {
		return nil, fmt.Errorf("reading %s: %s", uri, res.Error)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling resource %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(data)},
		},
	}, nil
}

// tenant resolves the tenant for a call and checks the caller may use it.
func (t *Toolkit) tenant(ctx context.Context, requested string) (string, error) {
	tenant := requested
	if tenant == "" {
		tenant = t.svc.DefaultTenant()
	}
	if !auth.GetUserContext(ctx).AllowsTenant(tenant) {
		return "", fmt.Errorf("api key is not allowed for tenant %s", tenant)
	}
	return tenant, nil
}

func restricted(ctx context.Context) bool {
	uc := auth.GetUserContext(ctx)
	return uc != nil && len(uc.Tenants) > 0
}

// errorResult creates an error CallToolResult.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(`{"error": %q}`, msg)},
		},
		IsError: true,
	}
}

// jsonResult wraps v as JSON text content.
func jsonResult(v any, isError bool) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult("internal error marshaling response"), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: isError,
	}, nil, nil
}
