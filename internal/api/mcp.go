package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/tools"
)

// MCPPath is where the streamable-HTTP MCP endpoint is served.
const MCPPath = "/api/mcp/rpc"

// NewMCPServer exposes the tool catalog over MCP. Calls go through the executor with
// the caller found on the request context.
func (s *Server) NewMCPServer() *server.MCPServer {
	srv := server.NewMCPServer("wagroups", Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, t := range tools.All() {
		schema, err := json.Marshal(t.Parameters)
		if err != nil {
			s.log.Warn("mcp: skip tool with unserializable schema", zap.String("tool", t.Name), zap.Error(err))
			continue
		}
		srv.AddTool(mcp.NewToolWithRawSchema(t.Name, t.Description, schema), s.mcpTool(t.Name))
	}
	return srv
}

func (s *Server) mcpTool(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		caller, found := CallerFrom(ctx)
		if !found {
			return mcp.NewToolResultError("unauthenticated"), nil
		}
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError("arguments must be a JSON object"), nil
		}
		res := s.deps.Executor.Execute(ctx, caller, name, args)
		if !res.Success {
			return mcp.NewToolResultError(res.JSON()), nil
		}
		return mcp.NewToolResultText(res.JSON()), nil
	}
}

func (s *Server) mountMCP(g *echo.Group) {
	if s.deps.Executor == nil {
		return
	}
	handler := server.NewStreamableHTTPServer(s.NewMCPServer(),
		server.WithEndpointPath(MCPPath),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if caller, found := CallerFrom(r.Context()); found {
				return WithCaller(ctx, caller)
			}
			return ctx
		}),
	)
	g.Any("/mcp/rpc", echo.WrapHandler(handler))
}
