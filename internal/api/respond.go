package api

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/automation"
	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/tools/builtin"
	"github.com/wagroups/wagroups/internal/uazapi"
	"github.com/wagroups/wagroups/internal/whatsapp"
)

// errorBody is the shape of every failed response.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// requestValidator plugs the shared validator into echo's c.Validate.
type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	if err := rv.v.Struct(i); err != nil {
		return errors.Wrap(builtin.ErrInvalidArgs, builtin.FormatValidation(err))
	}
	return nil
}

func ok(c echo.Context, body map[string]any) error {
	if body == nil {
		body = map[string]any{}
	}
	body["success"] = true
	return c.JSON(http.StatusOK, body)
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorBody{Success: false, Error: msg})
}

// classify maps an error to its HTTP status and the message shown to the client.
func classify(err error) (int, string) {
	var he *echo.HTTPError
	var pe *uazapi.Error
	switch {
	case errors.As(err, &he):
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return he.Code, msg
	case errors.Is(err, builtin.ErrInvalidArgs):
		return http.StatusBadRequest, strings.TrimSuffix(err.Error(), ": "+builtin.ErrInvalidArgs.Error())
	case errors.Is(err, automation.ErrInvalidExpression):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrNotPending), errors.Is(err, whatsapp.ErrNotConnected):
		return http.StatusConflict, err.Error()
	case errors.As(err, &pe):
		return http.StatusBadGateway, "whatsapp provider error: " + pe.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// errorHandler renders handler errors as {success:false, error}.
func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = fail(c, status, msg)
	}
}
