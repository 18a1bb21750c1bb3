package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/bi-proxy/pkg/auth"
	"github.com/txn2/bi-proxy/pkg/biproxy"
	"github.com/txn2/bi-proxy/pkg/cache"
	"github.com/txn2/bi-proxy/pkg/metabase"
	"github.com/txn2/bi-proxy/pkg/metabase/metabasetest"
)

const (
	apiTestCard    = 5
	apiTestBadCard = 9
	apiTestTenant  = "acme"
	apiTestOther   = "globex"
	apiTestKey     = "acme-key"
)

type testEnv struct {
	handler *Handler
	engine  *metabasetest.Server
	bi      *biproxy.Service
	ingest  *fakeIngester
}

func newTestEnv(t *testing.T, opts ...biproxy.Option) *testEnv {
	t.Helper()

	srv := metabasetest.New(t)
	srv.SetCard(apiTestCard,
		[]metabasetest.Column{{Name: "total", DisplayName: "Total"}},
		[][]any{{1250.5}},
	)
	srv.FailCard(apiTestBadCard, http.StatusInternalServerError, "query timed out")

	client, err := metabase.NewClient(metabase.Config{
		URL:      srv.URL,
		Username: metabasetest.Username,
		Password: metabasetest.Password,
	})
	require.NoError(t, err)

	bi := biproxy.New(client, cache.NewMemoryCache(cache.Config{}), biproxy.Config{
		KPIs: []biproxy.KPI{{Slug: "revenue", CardID: apiTestCard, Shape: biproxy.ShapeScalar, Label: "Revenue"}},
	}, opts...)
	ing := &fakeIngester{}

	return &testEnv{
		handler: NewHandler(Deps{BI: bi, Ingest: ing}, nil),
		engine:  srv,
		bi:      bi,
		ingest:  ing,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestExecuteCard_MissThenHit(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/bi/cards/5?tenant=acme&region=south", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	first := decode[biproxy.Result](t, w)
	assert.True(t, first.Success)
	assert.False(t, first.Metadata.FromCache)
	assert.Equal(t, apiTestTenant, first.Metadata.Tenant)
	assert.Equal(t, metabase.Parameters{"region": "south"}, first.Metadata.Parameters)
	assert.Equal(t, []metabase.Record{{"Total": 1250.5}}, first.Data)
	assert.Equal(t, w.Header().Get(RequestIDHeader), first.RequestID)

	w = env.do(t, http.MethodGet, "/api/v1/bi/cards/5?tenant=acme&region=south", nil, RequestIDHeader, "req-42")
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[biproxy.Result](t, w)
	assert.True(t, second.Metadata.FromCache)
	assert.Equal(t, "req-42", second.RequestID)

	assert.Equal(t, 1, env.engine.Queries(apiTestCard))
}

func TestExecuteCard_Post(t *testing.T) {
	env := newTestEnv(t)

	noCache := false
	w := env.do(t, http.MethodPost, "/api/v1/bi/cards/5", cardRequest{
		Tenant:     apiTestOther,
		Parameters: metabase.Parameters{"year": 2024},
		UseCache:   &noCache,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[biproxy.Result](t, w)
	assert.Equal(t, apiTestOther, res.Metadata.Tenant)

	stats, err := env.bi.CacheStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.CurrentSize, "use_cache=false must not write")
}

func TestExecuteCard_BadInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "non numeric id", method: http.MethodGet, target: "/api/v1/bi/cards/abc"},
		{name: "zero id", method: http.MethodGet, target: "/api/v1/bi/cards/0"},
		{name: "negative id", method: http.MethodPost, target: "/api/v1/bi/cards/-3"},
		{name: "bad use_cache", method: http.MethodGet, target: "/api/v1/bi/cards/5?use_cache=maybe"},
		{name: "bad ttl", method: http.MethodGet, target: "/api/v1/bi/cards/5?ttl=-1"},
		{name: "malformed body", method: http.MethodPost, target: "/api/v1/bi/cards/5", body: "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode[errorResponse](t, w).Error)
		})
	}
	assert.Equal(t, 0, env.engine.Queries(apiTestCard))
}

func TestExecuteCard_EngineFailure(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/bi/cards/9", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	res := decode[biproxy.Result](t, w)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "query timed out")
	assert.Equal(t, biproxy.SourceError, res.Metadata.Source)
}

func TestResolveTenant(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		target string
		body   string
		header string
		want   string
	}{
		{name: "query wins", target: "/?tenant=q", body: "b", header: "h", want: "q"},
		{name: "body next", target: "/", body: "b", header: "h", want: "b"},
		{name: "header next", target: "/", header: "h", want: "h"},
		{name: "default last", target: "/", want: cache.DefaultTenant},
		{name: "blank query ignored", target: "/?tenant=%20", header: "h", want: "h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			if tt.header != "" {
				r.Header.Set(TenantHeader, tt.header)
			}
			assert.Equal(t, tt.want, env.handler.resolveTenant(r, tt.body))
		})
	}
}

func TestExecuteBatch(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/bi/cards/batch", batchRequest{
		Tenant: apiTestTenant,
		Cards: []batchCard{
			{RequestID: "kpi", CardID: apiTestCard},
			{CardID: apiTestBadCard},
			{CardID: apiTestCard, Parameters: metabase.Parameters{"region": "north"}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decode[biproxy.BatchResult](t, w)
	assert.False(t, res.Success)
	assert.Equal(t, biproxy.BatchSummary{Total: 3, Successful: 2, Failed: 1}, res.Summary)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "kpi", res.Results[0].RequestID)
	assert.Equal(t, "card_9", res.Results[1].RequestID)
	assert.False(t, res.Results[1].Success)
}

func TestExecuteBatch_BadInput(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/bi/cards/batch", batchRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/bi/cards/batch", batchRequest{Cards: []batchCard{{CardID: 5}, {CardID: 0}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorResponse](t, w).Error, "cards[1]")
}

func TestCardInfo(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/bi/cards/5/info", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	info := decode[metabase.CardInfo](t, w)
	assert.Equal(t, apiTestCard, info.ID)
	assert.Equal(t, "Card 5", info.Name)

	w = env.do(t, http.MethodGet, "/api/v1/bi/cards/404/info", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEmbedCard(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(t, http.MethodGet, "/api/v1/bi/cards/5/embed", nil)
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("simple link", func(t *testing.T) {
		env := newTestEnv(t, biproxy.WithEmbedder(metabase.NewEmbedder("https://bi.example.com", "", 0)))
		w := env.do(t, http.MethodGet, "/api/v1/bi/cards/5/embed?region=south", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		link := decode[metabase.EmbedLink](t, w)
		assert.Equal(t, metabase.EmbedSimple, link.Type)
		assert.Equal(t, "https://bi.example.com/question/5?region=south", link.URL)
	})
}

func TestCacheEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/api/v1/bi/cards/5?tenant=acme",
		"/api/v1/bi/cards/5?tenant=acme&region=south",
		"/api/v1/bi/cards/5?tenant=globex",
	} {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, target, nil).Code)
	}

	w := env.do(t, http.MethodGet, "/api/v1/bi/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[cache.Stats](t, w).CurrentSize)

	w = env.do(t, http.MethodDelete, "/api/v1/bi/cache/cards/5?tenant=acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, invalidateResponse{CardID: 5, Tenant: apiTestTenant, Invalidated: 2}, decode[invalidateResponse](t, w))

	w = env.do(t, http.MethodDelete, "/api/v1/bi/cache/tenants/globex", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[invalidateResponse](t, w).Invalidated)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/bi/cards/5", nil).Code)
	w = env.do(t, http.MethodDelete, "/api/v1/bi/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/bi/cache/stats", nil)
	assert.Equal(t, 0, decode[cache.Stats](t, w).CurrentSize)

	w = env.do(t, http.MethodDelete, "/api/v1/bi/cache/cards/x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWarmupCache(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/bi/cache/warmup", warmupRequest{Tenant: apiTestTenant, CardIDs: []int{apiTestCard}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[biproxy.BatchResult](t, w)
	assert.True(t, res.Success)

	w = env.do(t, http.MethodGet, "/api/v1/bi/cards/5?tenant=acme", nil)
	assert.True(t, decode[biproxy.Result](t, w).Metadata.FromCache)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/bi/cache/warmup", warmupRequest{}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/bi/cache/warmup", warmupRequest{CardIDs: []int{-1}}).Code)
}

func TestStatusAndHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/bi/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[biproxy.Status](t, w)
	assert.True(t, st.Initialized)
	assert.False(t, st.EngineConnected)
	require.NotNil(t, st.Cache)

	w = env.do(t, http.MethodGet, "/api/v1/bi/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, biproxy.ConnectionHealthy, decode[biproxy.ConnectionStatus](t, w).Status)

	env.engine.SetHealthStatus(http.StatusServiceUnavailable)
	w = env.do(t, http.MethodGet, "/api/v1/bi/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, biproxy.ConnectionUnhealthy, decode[biproxy.ConnectionStatus](t, w).Status)
}

func TestKPI(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/kpi", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]biproxy.KPI](t, w), 1)

	w = env.do(t, http.MethodGet, "/api/v1/kpi/revenue?tenant=acme", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[map[string]any](t, w)
	assert.Equal(t, "revenue", res["slug"])
	assert.Equal(t, map[string]any{"value": 1250.5}, res["data"])

	w = env.do(t, http.MethodGet, "/api/v1/kpi/churn", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenantRestrictedKey(t *testing.T) {
	env := newTestEnv(t)
	a := auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{Keys: []auth.APIKey{
		{Name: "acme", Key: apiTestKey, Tenants: []string{apiTestTenant}},
	}})
	env.handler = NewHandler(Deps{BI: env.bi, Ingest: env.ingest}, auth.Middleware(a))

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{name: "own tenant", method: http.MethodGet, target: "/api/v1/bi/cards/5?tenant=acme", want: http.StatusOK},
		{name: "other tenant", method: http.MethodGet, target: "/api/v1/bi/cards/5?tenant=globex", want: http.StatusForbidden},
		{name: "flush all", method: http.MethodDelete, target: "/api/v1/bi/cache", want: http.StatusForbidden},
		{name: "card across tenants", method: http.MethodDelete, target: "/api/v1/bi/cache/cards/5", want: http.StatusForbidden},
		{name: "own tenant cache", method: http.MethodDelete, target: "/api/v1/bi/cache/tenants/acme", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.target, nil, auth.APIKeyHeader, apiTestKey)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := env.do(t, http.MethodGet, "/api/v1/bi/status", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
