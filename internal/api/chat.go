package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type chatRequest struct {
	Message   string `json:"message" validate:"required,max=8000"`
	SessionID string `json:"sessionId" validate:"omitempty,uuid"`
}

type renameRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	Title     string `json:"title" validate:"required,max=200"`
}

// chatTurn runs one agent turn. Any failure inside the turn is reported with
// a generic message; tool failures never get here.
func (s *Server) chatTurn(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := c.Validate(&req); err != nil {
		return err
	}
	caller := callerOf(c)
	res, err := s.deps.Agent.RunOneTurn(c.Request().Context(), caller, req.SessionID, req.Message)
	if err != nil {
		s.log.Error("chat turn failed",
			zap.String("user_id", caller.UserID),
			zap.String("organization_id", caller.OrganizationID),
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return fail(c, http.StatusInternalServerError, "Failed to process message")
	}
	body := map[string]any{
		"message":   res.Message,
		"sessionId": res.SessionID,
	}
	if len(res.ToolCalls) > 0 {
		body["toolCalls"] = res.ToolCalls
		body["toolResults"] = res.ToolResults
	}
	return ok(c, body)
}

// chatGet returns one owned session, or the caller's most recent sessions.
func (s *Server) chatGet(c echo.Context) error {
	ctx := c.Request().Context()
	caller := callerOf(c)
	if id := c.QueryParam("sessionId"); id != "" {
		session, err := s.deps.DB.GetChatSession(ctx, id, caller)
		if err != nil {
			return err
		}
		return ok(c, map[string]any{"session": session})
	}
	sessions, err := s.deps.DB.ListChatSessions(ctx, caller, s.deps.SessionListLimit)
	if err != nil {
		return err
	}
	return ok(c, map[string]any{"sessions": sessions})
}

func (s *Server) chatDelete(c echo.Context) error {
	id := c.QueryParam("sessionId")
	if id == "" {
		return fail(c, http.StatusBadRequest, "sessionId is required")
	}
	if err := s.deps.DB.DeleteChatSession(c.Request().Context(), id, callerOf(c)); err != nil {
		return err
	}
	return ok(c, nil)
}

func (s *Server) chatRename(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := s.deps.DB.RenameChatSession(c.Request().Context(), req.SessionID, callerOf(c), req.Title); err != nil {
		return err
	}
	return ok(c, map[string]any{"sessionId": req.SessionID, "title": req.Title})
}
