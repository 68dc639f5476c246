package api

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/uazapi"
)

const maxWebhookBody = 1 << 20

// uazapiWebhook receives provider events for one instance. The per-instance
// secret in the query string authenticates the sender. Processing errors are
// logged and acknowledged so the provider does not redeliver and reply twice.
func (s *Server) uazapiWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	log := s.log.Named("webhook").With(zap.String("instance_id", c.Param("instanceId")))

	inst, err := s.deps.DB.GetInstanceByID(ctx, c.Param("instanceId"))
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, http.StatusNotFound, "unknown instance")
	}
	if err != nil {
		return err
	}
	secret := c.QueryParam("secret")
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(inst.WebhookSecret)) != 1 {
		log.Warn("webhook secret mismatch", zap.String("remote_ip", c.RealIP()))
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return fail(c, http.StatusBadRequest, "could not read request body")
	}
	ev, err := uazapi.ParseEvent(body)
	if err != nil {
		log.Warn("undecodable webhook", zap.Error(err))
		return fail(c, http.StatusBadRequest, "invalid payload")
	}

	switch ev.Kind {
	case uazapi.EventConnection:
		if ev.Status == "" {
			break
		}
		if err := s.deps.WhatsApp.RecordStatus(ctx, inst, ev.Status); err != nil {
			log.Error("record connection status", zap.String("status", ev.Status), zap.Error(err))
		} else {
			log.Info("connection status", zap.String("status", ev.Status))
		}
	case uazapi.EventMessage:
		if err := s.deps.Automation.HandleMessage(ctx, inst, ev); err != nil {
			log.Error("handle message", zap.String("chat_id", ev.ChatID), zap.Error(err))
		}
	}
	return ok(c, map[string]any{"event": ev.Kind})
}
