package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/tools"
	"github.com/wagroups/wagroups/internal/tools/builtin"
)

const maxToolBody = 1 << 20

// mountTools registers POST <route> for every catalog tool that has a handler.
func (s *Server) mountTools(g *echo.Group) {
	for _, t := range tools.All() {
		h, found := s.deps.Tools.Handler(t.Name)
		if !found {
			s.log.Warn("tool has no handler", zap.String("tool", t.Name))
			continue
		}
		g.POST(strings.TrimPrefix(tools.Route(t.Name), "/api"), s.toolEndpoint(t.Name, h))
	}
}

func (s *Server) toolEndpoint(name string, h builtin.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxToolBody))
		if err != nil {
			return fail(c, http.StatusBadRequest, "could not read request body")
		}
		data, err := h(c.Request().Context(), callerOf(c), json.RawMessage(body))
		if err != nil {
			return err
		}
		return ok(c, map[string]any{"data": data})
	}
}

type discoveredTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	Endpoint    string                 `json:"endpoint"`
}

// discovery describes the tool endpoints to external clients.
func (s *Server) discovery(c echo.Context) error {
	base := strings.TrimRight(s.deps.PublicURL, "/")
	list := make([]discoveredTool, 0, len(tools.All()))
	for _, t := range tools.All() {
		list = append(list, discoveredTool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			Endpoint:    base + tools.Route(t.Name),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"name":    "wagroups",
		"version": Version,
		"authentication": map[string]any{
			"type":    "api_key",
			"header":  HeaderAPIKey,
			"format":  "<id>.<secret>",
			"session": "Authorization: Bearer <supabase access token> with " + HeaderOrganization,
		},
		"mcp":   base + MCPPath,
		"tools": list,
	})
}
