package auth

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPMiddleware authenticates tools/call and resources/read requests that
// arrive over HTTP and stores the caller in the handler context, so tenant
// restrictions apply to MCP clients too. Requests without HTTP headers
// (stdio) pass through unrestricted.
func MCPMiddleware(a Authenticator) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if a == nil || (method != "tools/call" && method != "resources/read") {
				return next(ctx, method, req)
			}
			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return next(ctx, method, req)
			}

			if token := tokenFromHeader(extra.Header); token != "" {
				ctx = WithToken(ctx, token)
			}
			user, err := a.Authenticate(ctx)
			if err != nil {
				if method == "tools/call" {
					return &mcp.CallToolResult{
						IsError: true,
						Content: []mcp.Content{&mcp.TextContent{Text: "authentication failed: " + err.Error()}},
					}, nil
				}
				return nil, err
			}
			return next(WithUserContext(ctx, user), method, req)
		}
	}
}
