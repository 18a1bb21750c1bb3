package bi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/bi-proxy/pkg/auth"
	"github.com/txn2/bi-proxy/pkg/biproxy"
	"github.com/txn2/bi-proxy/pkg/cache"
	"github.com/txn2/bi-proxy/pkg/metabase"
	"github.com/txn2/bi-proxy/pkg/metabase/metabasetest"
)

const (
	testCard    = 5
	testBadCard = 9
	testTenant  = "acme"
)

func newTestService(t *testing.T) (*biproxy.Service, *metabasetest.Server) {
	t.Helper()

	srv := metabasetest.New(t)
	srv.SetCard(testCard,
		[]metabasetest.Column{{Name: "total", DisplayName: "Total"}},
		[][]any{{1250.5}},
	)
	srv.FailCard(testBadCard, http.StatusInternalServerError, "query timed out")

	client, err := metabase.NewClient(metabase.Config{
		URL:      srv.URL,
		Username: metabasetest.Username,
		Password: metabasetest.Password,
	})
	require.NoError(t, err)

	svc := biproxy.New(client, cache.NewMemoryCache(cache.Config{}), biproxy.Config{
		DefaultTenant: testTenant,
		KPIs:          []biproxy.KPI{{Slug: "revenue", CardID: testCard, Shape: biproxy.ShapeScalar}},
	})
	return svc, srv
}

func connectTestClient(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	t1, t2 := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, t1, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func newTestSession(t *testing.T) (*mcp.ClientSession, *metabasetest.Server) {
	t.Helper()
	svc, srv := newTestService(t)
	tk, err := New("primary", svc)
	require.NoError(t, err)

	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "1.0"}, nil)
	tk.RegisterTools(server)
	tk.RegisterResources(server)
	return connectTestClient(t, server), srv
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (*mcp.CallToolResult, map[string]any) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)

	var out map[string]any
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		out = nil
	}
	return res, out
}

func TestNew(t *testing.T) {
	_, err := New("x", nil)
	require.Error(t, err)

	svc, _ := newTestService(t)
	tk, err := New("primary", svc)
	require.NoError(t, err)
	assert.Equal(t, "bi", tk.Kind())
	assert.Equal(t, "primary", tk.Name())
	assert.Len(t, tk.Tools(), 7)
	assert.NoError(t, tk.Close())
}

func TestRegisterTools_Listed(t *testing.T) {
	session, _ := newTestSession(t)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"bi_execute_card", "bi_execute_cards", "bi_invalidate_cache", "bi_cache_stats",
		"bi_status", "bi_warmup_cache", "bi_kpi",
	}, names)
}

func TestExecuteCard(t *testing.T) {
	session, srv := newTestSession(t)

	res, out := callTool(t, session, toolExecuteCard, map[string]any{"card_id": testCard})
	assert.False(t, res.IsError)
	assert.Equal(t, true, out["success"])
	meta := out["metadata"].(map[string]any)
	assert.Equal(t, false, meta["from_cache"])
	assert.Equal(t, testTenant, meta["tenant"])

	_, out = callTool(t, session, toolExecuteCard, map[string]any{"card_id": testCard})
	assert.Equal(t, true, out["metadata"].(map[string]any)["from_cache"])
	assert.Equal(t, 1, srv.Queries(testCard))

	_, out = callTool(t, session, toolExecuteCard, map[string]any{"card_id": testCard, "force_fresh": true})
	assert.Equal(t, false, out["metadata"].(map[string]any)["from_cache"])
	assert.Equal(t, 2, srv.Queries(testCard))
}

func TestExecuteCard_Errors(t *testing.T) {
	session, _ := newTestSession(t)

	res, out := callTool(t, session, toolExecuteCard, map[string]any{"card_id": 0})
	assert.True(t, res.IsError)
	assert.Contains(t, out["error"], "card_id")

	res, out = callTool(t, session, toolExecuteCard, map[string]any{"card_id": testBadCard})
	assert.True(t, res.IsError)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "query timed out")
}

func TestExecuteCards(t *testing.T) {
	session, _ := newTestSession(t)

	res, out := callTool(t, session, toolExecuteCards, map[string]any{
		"cards": []map[string]any{
			{"request_id": "a", "card_id": testCard},
			{"request_id": "b", "card_id": testBadCard},
		},
	})
	assert.False(t, res.IsError)
	summary := out["summary"].(map[string]any)
	assert.InDelta(t, 2, summary["total"], 0)
	assert.InDelta(t, 1, summary["successful"], 0)
	assert.InDelta(t, 1, summary["failed"], 0)

	res, _ = callTool(t, session, toolExecuteCards, map[string]any{"cards": []map[string]any{}})
	assert.True(t, res.IsError)

	res, out = callTool(t, session, toolExecuteCards, map[string]any{
		"cards": []map[string]any{{"card_id": -1}},
	})
	assert.True(t, res.IsError)
	assert.Contains(t, out["error"], "cards[0]")
}

func TestInvalidateCache(t *testing.T) {
	session, srv := newTestSession(t)

	callTool(t, session, toolExecuteCard, map[string]any{"card_id": testCard})
	callTool(t, session, toolExecuteCard, map[string]any{"card_id": testCard, "tenant": "globex"})

	_, out := callTool(t, session, toolInvalidateCache, map[string]any{"scope": "card", "card_id": testCard, "tenant": testTenant})
	assert.InDelta(t, 1, out["invalidated"], 0)

	_, out = callTool(t, session, toolInvalidateCache, map[string]any{"scope": "tenant", "tenant": "globex"})
	assert.InDelta(t, 1, out["invalidated"], 0)

	callTool(t, session, toolExecuteCard, map[string]any{"card_id": testCard})
	assert.Equal(t, 3, srv.Queries(testCard))

	res, _ := callTool(t, session, toolInvalidateCache, map[string]any{"scope": "all"})
	assert.False(t, res.IsError)

	_, out = callTool(t, session, toolCacheStats, map[string]any{})
	assert.InDelta(t, 0, out["current_size"], 0)

	res, out = callTool(t, session, toolInvalidateCache, map[string]any{"scope": "bogus"})
	assert.True(t, res.IsError)
	assert.Contains(t, out["error"], "scope")

	res, _ = callTool(t, session, toolInvalidateCache, map[string]any{"scope": "card"})
	assert.True(t, res.IsError)
}

func TestStatus(t *testing.T) {
	session, srv := newTestSession(t)

	_, out := callTool(t, session, toolStatus, map[string]any{})
	assert.Contains(t, out, "uptime_seconds")
	assert.NotContains(t, out, "connection")

	srv.SetHealthStatus(http.StatusServiceUnavailable)
	_, out = callTool(t, session, toolStatus, map[string]any{"test_connection": true})
	conn := out["connection"].(map[string]any)
	assert.Equal(t, false, conn["success"])
}

func TestWarmupCache(t *testing.T) {
	session, srv := newTestSession(t)

	res, out := callTool(t, session, toolWarmupCache, map[string]any{"card_ids": []int{testCard}})
	assert.False(t, res.IsError)
	assert.InDelta(t, 1, out["summary"].(map[string]any)["successful"], 0)

	_, out = callTool(t, session, toolExecuteCard, map[string]any{"card_id": testCard})
	assert.Equal(t, true, out["metadata"].(map[string]any)["from_cache"])
	assert.Equal(t, 1, srv.Queries(testCard))

	res, _ = callTool(t, session, toolWarmupCache, map[string]any{"card_ids": []int{}})
	assert.True(t, res.IsError)
	res, _ = callTool(t, session, toolWarmupCache, map[string]any{"card_ids": []int{0}})
	assert.True(t, res.IsError)
}

func TestKPI(t *testing.T) {
	session, _ := newTestSession(t)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: toolKPI, Arguments: map[string]any{}})
	require.NoError(t, err)
	text := res.Content[0].(*mcp.TextContent).Text
	var list []biproxy.KPI
	require.NoError(t, json.Unmarshal([]byte(text), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "revenue", list[0].Slug)

	_, out := callTool(t, session, toolKPI, map[string]any{"slug": "revenue"})
	assert.Equal(t, map[string]any{"value": 1250.5}, out["data"])

	res, out = callTool(t, session, toolKPI, map[string]any{"slug": "missing"})
	assert.True(t, res.IsError)
	assert.NotEmpty(t, out["error"])
}

func TestCardResource(t *testing.T) {
	session, _ := newTestSession(t)
	ctx := context.Background()

	templates, err := session.ListResourceTemplates(ctx, nil)
	require.NoError(t, err)
	require.Len(t, templates.ResourceTemplates, 1)
	assert.Equal(t, CardTemplateURI, templates.ResourceTemplates[0].URITemplate)

	res, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "bi-card://acme/5"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)

	var envelope biproxy.Result
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, testTenant, envelope.Metadata.Tenant)
	require.Len(t, envelope.Data, 1)
	assert.InDelta(t, 1250.5, envelope.Data[0]["Total"], 0)

	_, err = session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "bi-card://acme/abc"})
	require.Error(t, err)

	_, err = session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "bi-card://acme/9"})
	require.Error(t, err)
}

func TestTenantRestriction(t *testing.T) {
	svc, _ := newTestService(t)
	tk, err := New("primary", svc)
	require.NoError(t, err)

	ctx := auth.WithUserContext(context.Background(), &auth.UserContext{KeyName: "acme", Tenants: []string{testTenant}})

	res, _, err := tk.handleExecuteCard(ctx, nil, executeCardInput{CardID: testCard, Tenant: "globex"})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, _, err = tk.handleExecuteCard(ctx, nil, executeCardInput{CardID: testCard})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, _, err = tk.handleInvalidate(ctx, nil, invalidateInput{Scope: scopeAll})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, _, err = tk.handleInvalidate(ctx, nil, invalidateInput{Scope: scopeCard, CardID: testCard})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, _, err = tk.handleInvalidate(ctx, nil, invalidateInput{Scope: scopeCard, CardID: testCard, Tenant: testTenant})
	require.NoError(t, err)
	assert.False(t, res.IsError)
}
