// Package api serves the HTTP surface: the chat agent, one endpoint per tool,
// the MCP bridge and the UAZAPI webhook.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/agent"
	"github.com/wagroups/wagroups/internal/automation"
	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/health"
	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/tools/builtin"
	"github.com/wagroups/wagroups/internal/whatsapp"
)

// Version is reported by discovery and the MCP handshake.
const Version = "1.0.0"

// Deps are the services behind the routes.
type Deps struct {
	DB         *store.DB
	Agent      *agent.Loop
	Tools      *builtin.Registry
	Executor   core.ToolExecutor
	WhatsApp   *whatsapp.Service
	Automation *automation.Engine
	Health     *health.Registry
	Auth       *Authenticator
	// PublicURL prefixes tool endpoints in discovery; empty means relative.
	PublicURL        string
	SessionListLimit int
	Log              *zap.Logger
}

// Server owns the echo instance.
type Server struct {
	echo *echo.Echo
	deps Deps
	log  *zap.Logger
}

// New builds the router.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Health == nil {
		d.Health = health.NewRegistry()
	}
	s := &Server{echo: echo.New(), deps: d, log: d.Log.Named("api")}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: builtin.Validate}
	e.HTTPErrorHandler = errorHandler(s.log)

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.log.Error("panic recovered", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())

	e.GET("/health", s.health)

	authed := e.Group("/api", d.Auth.RequireCaller)
	authed.POST("/chat/agent", s.chatTurn)
	authed.GET("/chat/agent", s.chatGet)
	authed.DELETE("/chat/agent", s.chatDelete)
	authed.PATCH("/chat/agent", s.chatRename)

	e.GET("/api/mcp", s.discovery)
	s.mountTools(authed)
	s.mountMCP(authed)

	e.POST("/api/webhooks/uazapi/:instanceId", s.uazapiWebhook)
	return s
}

// ServeHTTP exposes the router as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done, then shuts down within grace.
func (s *Server) Run(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: s.echo, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	s.log.Info("http server shutting down")
	return errors.Wrap(srv.Shutdown(shutdownCtx), "http shutdown")
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if caller, ok := CallerFrom(c.Request().Context()); ok {
				fields = append(fields, zap.String("user_id", caller.UserID), zap.String("organization_id", caller.OrganizationID))
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			s.log.Info("request", fields...)
			return nil
		},
	})
}

func (s *Server) health(c echo.Context) error {
	report := s.deps.Health.Check(c.Request().Context())
	status := http.StatusOK
	if report.Status == "error" {
		status = http.StatusServiceUnavailable
	}
	database := "unknown"
	if db, ok := report.Components["database"]; ok {
		database = db.Status
	}
	return c.JSON(status, map[string]any{
		"status":     report.Status,
		"database":   database,
		"components": report.Components,
		"timestamp":  report.Timestamp,
	})
}
