package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tenantauth/auth-backend/internal/api/middleware"
	"github.com/tenantauth/auth-backend/internal/api/response"
)

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain errors to their status code and message key.
//   - Renders echo's own errors (unknown route, bad method) in the same envelope.
//   - Logs unexpected errors without leaking details to the client.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, env := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, env)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, response.Envelope) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		// Domain errors returned through echo.NewHTTPError keep their mapping.
		if inner, ok := he.Internal.(error); ok && response.Resolve(inner).Known {
			return resolveError(inner, log, c)
		}
		return he.Code, response.Envelope{
			Code:    he.Code,
			Message: httpMessage(he),
			Type:    "http",
			Payload: response.ErrorDetail{},
		}
	}

	code, env := response.Error(err)
	event := log.Debug()
	if !response.Resolve(err).Known {
		event = log.Error()
	}
	event = event.Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Int("status", code)
	if org := middleware.OrganizationFrom(c); org != nil && org.User != nil {
		event = event.Str("organization_id", org.User.ID)
	}
	event.Msg("request failed")
	return code, env
}

// httpMessage turns echo's status text into a message key ("Not Found" → "not_found").
func httpMessage(he *echo.HTTPError) string {
	text := http.StatusText(he.Code)
	if msg, ok := he.Message.(string); ok && msg != "" {
		text = msg
	}
	if text == "" {
		return fmt.Sprintf("http_%d", he.Code)
	}
	key := make([]rune, 0, len(text))
	for _, r := range text {
		switch {
		case r >= 'A' && r <= 'Z':
			key = append(key, r+('a'-'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			key = append(key, r)
		default:
			if len(key) > 0 && key[len(key)-1] != '_' {
				key = append(key, '_')
			}
		}
	}
	for len(key) > 0 && key[len(key)-1] == '_' {
		key = key[:len(key)-1]
	}
	return string(key)
}
