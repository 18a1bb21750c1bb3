package platform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/bi-proxy/pkg/ingest"
)

// Info describes this deployment to MCP clients.
type Info struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Description   string   `json:"description,omitempty"`
	DefaultTenant string   `json:"default_tenant"`
	Tools         []string `json:"tools"`
	KPIs          []string `json:"kpis,omitempty"`
	Datasets      []string `json:"datasets,omitempty"`
	Features      Features `json:"features"`
}

// Features describes enabled features.
type Features struct {
	CacheBackend    string `json:"cache_backend"`
	TenantParameter string `json:"tenant_parameter,omitempty"`
	SignedEmbeds    bool   `json:"signed_embeds"`
	Ingestion       bool   `json:"ingestion"`
	ObjectIngestion bool   `json:"object_ingestion"`
	Authentication  bool   `json:"authentication"`
}

type platformInfoInput struct{}

// registerInfoTool registers the platform_info tool with the MCP server.
func (p *Platform) registerInfoTool() {
	mcp.AddTool(p.mcpServer, &mcp.Tool{
		Name:        "platform_info",
		Description: p.buildInfoToolDescription(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ platformInfoInput) (*mcp.CallToolResult, any, error) {
		return p.handleInfo(ctx, req)
	})
}

func (p *Platform) buildInfoToolDescription() string {
	base := "Get information about this BI proxy"
	if p.config.Server.Name != "" && p.config.Server.Name != "bi-proxy" {
		base = fmt.Sprintf("Get information about %s", p.config.Server.Name)
	}
	return base + ", including the default tenant, configured KPIs, uploadable datasets and enabled features. " +
		"Call this first to learn which tools and KPIs are available."
}

// buildInfo collects the deployment description.
func (p *Platform) buildInfo() Info {
	info := Info{
		Name:          p.config.Server.Name,
		Version:       p.config.Server.Version,
		Description:   p.config.Server.Description,
		DefaultTenant: p.bi.DefaultTenant(),
		Tools:         append(p.toolkit.Tools(), "platform_info"),
		Features: Features{
			CacheBackend:    p.config.Cache.Backend,
			TenantParameter: p.config.Metabase.TenantParameter,
			SignedEmbeds:    p.config.Metabase.EmbedSecret != "",
			Ingestion:       p.ingest != nil,
			ObjectIngestion: p.objectIngest,
			Authentication:  p.authenticator != nil,
		},
	}
	for _, k := range p.bi.KPIs() {
		info.KPIs = append(info.KPIs, k.Slug)
	}
	if p.ingest != nil {
		for _, d := range ingest.Datasets() {
			info.Datasets = append(info.Datasets, d.Name)
		}
	}
	return info
}

// handleInfo handles the platform_info tool call.
func (p *Platform) handleInfo(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(p.buildInfo(), "", "  ")
	if err != nil {
		return &mcp.CallToolResult{ //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError, not as Go errors
			Content: []mcp.Content{
				&mcp.TextContent{Text: "Error: " + err.Error()},
			},
			IsError: true,
		}, nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}
